package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ragcore/internal/config"
)

const sseQueueDepth = 64

// sseSession is one open /sse stream: an outbound event queue drained by
// the stream goroutine, and a last-activity timestamp the reaper checks
// against the configured idle timeout.
type sseSession struct {
	events     chan []byte
	lastActive time.Time
}

// SSEServer is the HTTP+SSE MCP transport (§4.K): a GET /sse opens a
// session and receives its id as the first event; POSTs to
// /message?sessionId=... are dispatched and their responses pushed onto
// the originating session's stream. Session channel sends are
// non-blocking — a full queue drops the event, matching the MCP session
// policy described alongside the realtime hub's backpressure rule.
type SSEServer struct {
	Server         *Server
	Cors           config.CorsConfig
	SessionTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*sseSession
}

// NewSSEServer builds an SSE transport over server. sessionTimeout <= 0
// defaults to 30 minutes per §6.
func NewSSEServer(server *Server, cors config.CorsConfig, sessionTimeout time.Duration) *SSEServer {
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Minute
	}
	return &SSEServer{
		Server:         server,
		Cors:           cors,
		SessionTimeout: sessionTimeout,
		sessions:       make(map[string]*sseSession),
	}
}

// ServeHTTP applies CORS before routing, mirroring the REST API's
// requirement that the allow-list be declared ahead of any route match.
func (s *SSEServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/sse":
		s.handleSSE(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/message":
		s.handleMessage(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *SSEServer) applyCORS(w http.ResponseWriter, r *http.Request) {
	if !s.Cors.Enabled {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, o := range s.Cors.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if s.Cors.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			return
		}
	}
}

func (s *SSEServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionId := uuid.NewString()
	session := &sseSession{events: make(chan []byte, sseQueueDepth), lastActive: time.Now()}
	s.mu.Lock()
	s.sessions[sessionId] = session
	s.mu.Unlock()
	defer s.closeSession(sessionId)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial, _ := json.Marshal(map[string]string{"sessionId": sessionId})
	w.Write([]byte("event: session\ndata: " + string(initial) + "\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-session.events:
			if !open {
				return
			}
			w.Write([]byte("data: " + string(event) + "\n\n"))
			flusher.Flush()
		}
	}
}

func (s *SSEServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionId := r.URL.Query().Get("sessionId")
	s.mu.Lock()
	session, ok := s.sessions[sessionId]
	if ok {
		session.lastActive = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown sessionId", http.StatusNotFound)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON-RPC request", http.StatusBadRequest)
		return
	}

	resp := s.Server.Dispatch(r.Context(), req)
	b, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	select {
	case session.events <- b:
	default:
		log.Warn().Str("sessionId", sessionId).Msg("mcpserver_sse_queue_full_dropped_event")
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *SSEServer) closeSession(sessionId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionId]; ok {
		close(session.events)
		delete(s.sessions, sessionId)
	}
}

// ReapIdleSessions closes every session idle longer than SessionTimeout.
// Callers run this on a ticker for the life of the process.
func (s *SSEServer) ReapIdleSessions(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var expired []string
	for id, session := range s.sessions {
		if now.Sub(session.lastActive) > s.SessionTimeout {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()
	for _, id := range expired {
		s.closeSession(id)
	}
}
