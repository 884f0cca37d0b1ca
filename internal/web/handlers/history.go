package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/history"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// HistoryHandler exposes the recognition history.
type HistoryHandler struct {
	engine *recognition.Engine
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(engine *recognition.Engine) *HistoryHandler {
	return &HistoryHandler{engine: engine}
}

// List returns the most recent events, newest first. Optional query: limit.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events := h.engine.History().Recent(limit)
	if events == nil {
		events = []history.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

// Clear empties the in-memory history.
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.engine.History().Clear()
	w.WriteHeader(http.StatusNoContent)
}
