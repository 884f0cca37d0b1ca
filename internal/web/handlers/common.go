package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/encoder"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("WARNING: failed to encode response: %v", err)
		}
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps a domain error to its HTTP status.
func respondEngineError(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, attendance.ErrAlreadyActive),
		errors.Is(err, attendance.ErrNotActive),
		errors.Is(err, recognition.ErrWrongMode),
		errors.Is(err, recognition.ErrNoIdentities),
		errors.Is(err, recognition.ErrNoCapture),
		errors.Is(err, gallery.ErrExternalIDConflict):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrInvalidName),
		errors.Is(err, recognition.ErrMissingName),
		errors.Is(err, gallery.ErrMissingName),
		errors.Is(err, gallery.ErrInvalidName),
		errors.Is(err, encoder.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// readImageUpload reads the image part of a multipart request.
// The part is named "image"; "file" is accepted as well.
func readImageUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return nil, errors.New("failed to parse multipart form")
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		file, _, err = r.FormFile("file")
	}
	if err != nil {
		return nil, errors.New("image is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > constants.MaxUploadSize {
		return nil, errors.New("image too large")
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
