package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// StatusHandler reports the engine state and switches its mode.
type StatusHandler struct {
	engine      *recognition.Engine
	broadcaster *Broadcaster
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(engine *recognition.Engine, b *Broadcaster) *StatusHandler {
	return &StatusHandler{engine: engine, broadcaster: b}
}

// Get returns the engine status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// SetMode switches to the mode named in the URL: register, recognize or stop.
func (h *StatusHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	switch mode {
	case string(recognition.ModeRegister):
		h.engine.StartRegistration()
	case string(recognition.ModeRecognize):
		if err := h.engine.StartRecognition(); err != nil {
			respondEngineError(w, err)
			return
		}
	case "stop", string(recognition.ModeIdle):
		h.engine.Stop()
	default:
		respondError(w, http.StatusBadRequest, "unknown mode: "+mode)
		return
	}

	status := h.engine.Status()
	log.Printf("Mode changed to %s", status.Mode)
	h.broadcaster.SendEvent(Event{Type: EventStatus, Data: status})
	respondJSON(w, http.StatusOK, status)
}
