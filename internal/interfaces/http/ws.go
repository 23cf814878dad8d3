package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/regimed/regimed/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Read-only broadcast endpoint; origin checks belong to the proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts regime-change notifications to websocket subscribers.
// It implements notify.Notifier; a slow or dead subscriber is dropped
// rather than allowed to stall the cycle.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan notify.Change
	closed  bool
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan notify.Change)}
}

// RegimeChanged implements notify.Notifier.
func (h *Hub) RegimeChanged(_ context.Context, c notify.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- c:
		default:
			log.Warn().Str("remote", conn.RemoteAddr().String()).
				Msg("dropping slow websocket subscriber")
			h.dropLocked(conn)
		}
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := make(chan notify.Change, 8)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = ch
	h.mu.Unlock()

	go h.writeLoop(conn, ch)
}

func (h *Hub) writeLoop(conn *websocket.Conn, ch chan notify.Change) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(conn)
		h.mu.Unlock()
	}()

	for change := range ch {
		if err := conn.WriteJSON(change); err != nil {
			log.Debug().Err(err).Msg("websocket write failed, dropping subscriber")
			return
		}
	}
}

func (h *Hub) dropLocked(conn *websocket.Conn) {
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
		conn.Close()
	}
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		h.dropLocked(conn)
	}
}
