package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// EventsHandler streams live notifications over server-sent events.
type EventsHandler struct {
	engine      *recognition.Engine
	broadcaster *Broadcaster
}

// NewEventsHandler creates a new SSE handler.
func NewEventsHandler(engine *recognition.Engine, b *Broadcaster) *EventsHandler {
	return &EventsHandler{engine: engine, broadcaster: b}
}

// setupSSEConnection sets the SSE headers. On failure it writes an error
// response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// Stream sends the current status, then every event until the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := h.broadcaster.AddListener()
	defer h.broadcaster.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, EventStatus, h.engine.Status())

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
