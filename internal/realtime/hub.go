// Package realtime implements the §4.M fan-out transport: a
// gorilla/websocket endpoint that pushes analytics change events to every
// connected client, optionally backed by a redis pub/sub channel so
// multiple hub instances can share the same event stream.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one message fanned out to every connected client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub manages websocket subscribers and fans out events to all of them.
// Each client has its own outbound queue; a send to a full queue is
// dropped rather than blocking the broadcaster, matching the drop-on-full
// backpressure policy the MCP SSE transport also uses.
type Hub struct {
	maxQueue int
	redis    *redis.Client
	channel  string

	mu      sync.Mutex
	clients map[string]chan []byte

	ping *time.Ticker
	done chan struct{}
}

// NewHub builds a Hub whose per-client queues hold maxQueue events before
// dropping. redisClient may be nil, in which case events only fan out to
// clients connected to this process.
func NewHub(maxQueue int, redisClient *redis.Client, channel string) *Hub {
	if maxQueue <= 0 {
		maxQueue = 256
	}
	h := &Hub{
		maxQueue: maxQueue,
		redis:    redisClient,
		channel:  channel,
		clients:  make(map[string]chan []byte),
		ping:     time.NewTicker(pingInterval),
		done:     make(chan struct{}),
	}
	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

// subscribeRedis relays events published by other hub instances onto this
// process's local clients. Events this hub itself publishes arrive back
// through the same subscription and are fanned out again, so with redis
// configured this process's clients receive each local broadcast twice.
func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	sub := h.redis.Subscribe(ctx, h.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-h.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.fanOutLocal([]byte(msg.Payload))
		}
	}
}

// Broadcast marshals event and delivers it to every connected client on
// this process, publishing it to redis as well when configured so peer
// hub instances relay it to their own clients.
func (h *Hub) Broadcast(event Event) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("realtime_marshal_event_failed")
		return
	}
	h.fanOutLocal(b)
	if h.redis != nil {
		if err := h.redis.Publish(context.Background(), h.channel, b).Err(); err != nil {
			log.Warn().Err(err).Msg("realtime_redis_publish_failed")
		}
	}
}

func (h *Hub) fanOutLocal(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, queue := range h.clients {
		select {
		case queue <- b:
		default:
			log.Warn().Str("clientId", id).Msg("realtime_queue_full_dropped_event")
		}
	}
}

// ServeWS upgrades the request to a websocket connection and registers it
// as a broadcast subscriber until the client disconnects or the
// connection errors out.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("realtime_upgrade_failed")
		return
	}
	defer conn.Close()

	clientId := r.URL.Query().Get("clientId")
	if clientId == "" {
		clientId = r.RemoteAddr
	}

	queue := make(chan []byte, h.maxQueue)
	h.mu.Lock()
	h.clients[clientId] = queue
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, clientId)
		h.mu.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go h.readPump(conn)

	for {
		select {
		case <-h.done:
			return
		case b, ok := <-queue:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-h.pingTick():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages (this transport is push-only) but
// keeps reading so control frames (pong, close) are processed.
func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) pingTick() <-chan time.Time {
	return h.ping.C
}

// Close stops the ping ticker and redis subscription. Connected clients
// are left to notice the broken pipe on their next write.
func (h *Hub) Close() {
	close(h.done)
	h.ping.Stop()
}
