package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(4, nil, "")
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func TestHubBroadcastDeliversToConnectedClient(t *testing.T) {
	h, srv := newTestHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give ServeWS a moment to register the client before broadcasting.
	waitUntil(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.clients) == 1
	})

	h.Broadcast(Event{Type: "analytics.updated", Data: map[string]int{"count": 3}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var got Event
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Type != "analytics.updated" {
		t.Fatalf("unexpected event type: %+v", got)
	}
}

func TestHubDropsEventsWhenQueueIsFull(t *testing.T) {
	h := NewHub(1, nil, "")
	defer h.Close()

	h.mu.Lock()
	queue := make(chan []byte, 1)
	h.clients["client-a"] = queue
	h.mu.Unlock()

	// Fill the queue, then broadcast again; the second send must be
	// dropped rather than block.
	h.Broadcast(Event{Type: "first"})
	h.Broadcast(Event{Type: "second"})

	select {
	case b := <-queue:
		var got Event
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != "first" {
			t.Fatalf("expected the first event to survive, got %+v", got)
		}
	default:
		t.Fatalf("expected a queued event")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
