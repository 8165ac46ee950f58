package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/cvfighter/internal/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// EventHandler serves gesture history.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates a new EventHandler with the given store.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

type eventResponse struct {
	ID          int64   `json:"id"`
	Gesture     string  `json:"gesture"`
	Confidence  float64 `json:"confidence"`
	TimestampMS int64   `json:"timestamp_ms"`
	LatencyMS   float64 `json:"latency_ms"`
	CreatedAt   string  `json:"created_at"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
}

type statsResponse struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

// List handles GET /api/events?limit=N, newest first.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.store.Events().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	response := listEventsResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		response.Events = append(response.Events, eventResponse{
			ID:          e.ID,
			Gesture:     e.Gesture.String(),
			Confidence:  e.Confidence,
			TimestampMS: e.FrameTime.Milliseconds(),
			LatencyMS:   float64(e.Latency.Microseconds()) / 1000,
			CreatedAt:   e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// Stats handles GET /api/events/stats with per-gesture counts.
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.store.Events().CountByGesture()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count events")
		return
	}

	response := statsResponse{Counts: make(map[string]int, len(counts))}
	for g, n := range counts {
		response.Counts[g.String()] = n
		response.Total += n
	}

	writeJSON(w, http.StatusOK, response)
}
