package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/cvfighter/internal/app"
)

const (
	writeWait    = 2 * time.Second
	clientBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// eventMessage is the JSON frame pushed to WebSocket clients.
type eventMessage struct {
	Type        string  `json:"type"`
	Gesture     string  `json:"gesture"`
	Confidence  float64 `json:"confidence"`
	TimestampMS int64   `json:"timestamp_ms"`
	LatencyMS   float64 `json:"latency_ms"`
	At          string  `json:"at"`
}

// EventsHandler pushes confirmed gestures to WebSocket clients. Slow clients
// lose messages rather than stalling the pipeline.
type EventsHandler struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
}

// NewEventsHandler creates a handler subscribed to session events.
func NewEventsHandler(session Session, logger *slog.Logger) *EventsHandler {
	h := &EventsHandler{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan []byte),
	}
	session.Subscribe(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	send := make(chan []byte, clientBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = send
	h.mu.Unlock()

	go h.writePump(conn, send)

	// Read until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *EventsHandler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.remove(conn)
	}
}

func (h *EventsHandler) remove(conn *websocket.Conn) {
	h.mu.Lock()
	send, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		close(send)
	}
	conn.Close()
}

func (h *EventsHandler) writePump(conn *websocket.Conn, send <-chan []byte) {
	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			conn.Close()
			return
		}
	}
}

func (h *EventsHandler) broadcast(n app.Notice) {
	msg, err := json.Marshal(eventMessage{
		Type:        "gesture",
		Gesture:     n.Event.Gesture.String(),
		Confidence:  n.Event.Confidence,
		TimestampMS: n.Event.TimestampMS(),
		LatencyMS:   float64(n.Latency.Microseconds()) / 1000,
		At:          n.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, send := range h.clients {
		select {
		case send <- msg:
		default:
		}
	}
}
