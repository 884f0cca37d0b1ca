package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// IdentitiesHandler handles registration and the reference gallery.
type IdentitiesHandler struct {
	engine *recognition.Engine
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(engine *recognition.Engine) *IdentitiesHandler {
	return &IdentitiesHandler{engine: engine}
}

// RegisteredResponse is returned after a reference image was stored.
type RegisteredResponse struct {
	Name       string `json:"name"`
	ExternalID string `json:"student_id,omitempty"`
	Path       string `json:"path"`
	Photos     int    `json:"photos"`
}

// SaveCaptureRequest is the body of POST /capture/save.
type SaveCaptureRequest struct {
	Name       string `json:"name"`
	ExternalID string `json:"student_id"`
}

// GalleryResponse summarizes the gallery after a rebuild.
type GalleryResponse struct {
	Identities int `json:"identities"`
	Embeddings int `json:"embeddings"`
}

// List returns every registered person with their photo count.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	people := h.engine.Store().Snapshot().People()
	if people == nil {
		people = []gallery.Person{}
	}
	respondJSON(w, http.StatusOK, people)
}

// Register stores an uploaded reference image. Form fields: name, student_id, image.
func (h *IdentitiesHandler) Register(w http.ResponseWriter, r *http.Request) {
	image, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := r.FormValue("name")
	externalID := r.FormValue("student_id")
	path, err := h.engine.Register(r.Context(), name, externalID, image)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	h.respondRegistered(w, name, path)
}

// Capture grabs the first face of an uploaded frame as the pending registration image.
func (h *IdentitiesHandler) Capture(w http.ResponseWriter, r *http.Request) {
	frame, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.engine.Capture(r.Context(), frame)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// CaptureImage returns the pending capture as a JPEG.
func (h *IdentitiesHandler) CaptureImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.engine.PendingCapture()
	if !ok {
		respondError(w, http.StatusNotFound, recognition.ErrNoCapture.Error())
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(c.Image)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(c.Image)
}

// SaveCapture registers the pending capture.
func (h *IdentitiesHandler) SaveCapture(w http.ResponseWriter, r *http.Request) {
	var req SaveCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	path, err := h.engine.SaveCapture(r.Context(), req.Name, req.ExternalID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	h.respondRegistered(w, req.Name, path)
}

// RebuildGallery re-encodes every reference image.
func (h *IdentitiesHandler) RebuildGallery(w http.ResponseWriter, r *http.Request) {
	g, err := h.engine.Store().Rebuild(r.Context())
	if err != nil {
		log.Printf("WARNING: gallery rebuild failed: %v", err)
		respondError(w, http.StatusInternalServerError, "gallery rebuild failed")
		return
	}
	log.Printf("Gallery rebuilt: %d embeddings of %d people", g.Len(), len(g.UniqueNames()))
	respondJSON(w, http.StatusOK, GalleryResponse{Identities: len(g.UniqueNames()), Embeddings: g.Len()})
}

func (h *IdentitiesHandler) respondRegistered(w http.ResponseWriter, name, path string) {
	store := h.engine.Store()
	name = strings.TrimSpace(name)
	respondJSON(w, http.StatusCreated, RegisteredResponse{
		Name:       name,
		ExternalID: store.ExternalID(name),
		Path:       path,
		Photos:     store.CountFor(name),
	})
}
