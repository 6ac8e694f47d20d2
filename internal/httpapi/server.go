// Package httpapi implements the §6 HTTP API surface: knowledge base
// management, chat, health, Ollama model administration, and analytics.
package httpapi

import (
	"net/http"
	"strings"

	"ragcore/internal/analytics"
	"ragcore/internal/chat"
	"ragcore/internal/config"
	"ragcore/internal/health"
	"ragcore/internal/metadatastore"
	"ragcore/internal/ollamaadmin"
	"ragcore/internal/rag/ingest"
)

// Server wires every HTTP handler to its backing component. Every field is
// a capability already owned elsewhere; Server does no storage of its own.
type Server struct {
	Store        *metadatastore.Store
	Ingest       *ingest.Pipeline
	Orchestrator *chat.Orchestrator
	Health       *health.Registry
	Analytics    *analytics.Reader
	Ollama       *ollamaadmin.Client
	Cors         config.CorsConfig

	mux *http.ServeMux
}

// NewServer builds the HTTP handler tree over the given components.
func NewServer(store *metadatastore.Store, pipeline *ingest.Pipeline, orchestrator *chat.Orchestrator,
	healthRegistry *health.Registry, analyticsReader *analytics.Reader, ollama *ollamaadmin.Client, cors config.CorsConfig) *Server {
	s := &Server{
		Store:        store,
		Ingest:       pipeline,
		Orchestrator: orchestrator,
		Health:       healthRegistry,
		Analytics:    analyticsReader,
		Ollama:       ollama,
		Cors:         cors,
		mux:          http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler, applying CORS before any route
// dispatch, mirroring the MCP transport's requirement that the allow-list
// be declared before routing (§4.K).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	if !s.Cors.Enabled {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range s.Cors.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	if s.Cors.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/knowledge", s.handleCreateKnowledge)
	s.mux.HandleFunc("GET /api/knowledge", s.handleListKnowledge)
	s.mux.HandleFunc("GET /api/knowledge/{id}", s.handleGetKnowledge)
	s.mux.HandleFunc("DELETE /api/knowledge/{id}", s.handleDeleteKnowledge)

	s.mux.HandleFunc("POST /api/chat", s.handleChat)

	s.mux.HandleFunc("GET /api/ping", s.handlePing)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/ollama/models", s.handleListModels)
	s.mux.HandleFunc("POST /api/ollama/models/pull", s.handlePullModel)
	s.mux.HandleFunc("DELETE /api/ollama/models/{name}", s.handleDeleteModel)

	s.mux.HandleFunc("GET /api/analytics/models", s.handleAnalyticsModels)
	s.mux.HandleFunc("GET /api/analytics/aggregates", s.handleAnalyticsAggregates)
}
