package handlers

import (
	"log"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// FramesHandler runs uploaded frames through the recognition pipeline.
type FramesHandler struct {
	engine *recognition.Engine
}

// NewFramesHandler creates a new frames handler.
func NewFramesHandler(engine *recognition.Engine) *FramesHandler {
	return &FramesHandler{engine: engine}
}

// FramesResponse lists the faces found in a frame, in detector order.
type FramesResponse struct {
	Faces []recognition.Recognition `json:"faces"`
	Error string                    `json:"error,omitempty"`
}

// Recognize processes a camera frame: matches, history, attendance and welcomes.
func (h *FramesHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	frame, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	faces, err := h.engine.ProcessFrame(r.Context(), frame)
	if err != nil && faces == nil {
		respondEngineError(w, err)
		return
	}
	resp := FramesResponse{Faces: faces}
	if err != nil {
		// Matching worked but recording attendance failed for some faces.
		log.Printf("WARNING: attendance not recorded: %v", err)
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Identify matches the faces of an image without recording anything.
func (h *FramesHandler) Identify(w http.ResponseWriter, r *http.Request) {
	image, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	faces, err := h.engine.Identify(r.Context(), image)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, FramesResponse{Faces: faces})
}
