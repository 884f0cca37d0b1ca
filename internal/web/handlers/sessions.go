package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

const defaultSessionListLimit = 50

// SessionsHandler handles attendance session endpoints.
type SessionsHandler struct {
	engine      *recognition.Engine
	archive     database.AttendanceReader // nil when no archive is configured
	broadcaster *Broadcaster
}

// NewSessionsHandler creates a new sessions handler. archive may be nil.
func NewSessionsHandler(engine *recognition.Engine, archive database.AttendanceReader, b *Broadcaster) *SessionsHandler {
	return &SessionsHandler{engine: engine, archive: archive, broadcaster: b}
}

// StartSessionRequest is the body of POST /sessions.
type StartSessionRequest struct {
	Name string `json:"name"`
}

// CurrentSessionResponse describes the active session and who is present.
type CurrentSessionResponse struct {
	Active  bool                `json:"active"`
	Session *attendance.Session `json:"session,omitempty"`
	Present []attendance.Record `json:"present"`
}

// Start opens a new attendance session.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	session, err := h.engine.StartSession(req.Name)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	h.broadcaster.SendEvent(Event{Type: EventStatus, Data: h.engine.Status()})
	respondJSON(w, http.StatusCreated, session)
}

// End closes the active session and returns its summary.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.EndSession()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	h.broadcaster.SendEvent(Event{Type: EventStatus, Data: h.engine.Status()})
	respondJSON(w, http.StatusOK, summary)
}

// Current returns the active session with its roster.
func (h *SessionsHandler) Current(w http.ResponseWriter, r *http.Request) {
	ledger := h.engine.Ledger()
	resp := CurrentSessionResponse{Present: ledger.Roster()}
	if s, ok := ledger.Session(); ok {
		resp.Active = true
		resp.Session = &s
	}
	if resp.Present == nil {
		resp.Present = []attendance.Record{}
	}
	respondJSON(w, http.StatusOK, resp)
}

// List returns archived sessions, newest first.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		respondError(w, http.StatusServiceUnavailable, database.ErrNoBackend.Error())
		return
	}

	limit := defaultSessionListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.archive.ListSessions(r.Context(), limit)
	if err != nil {
		log.Printf("WARNING: failed to list archived sessions: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []database.StoredSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// Records returns the archived records of one session.
func (h *SessionsHandler) Records(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		respondError(w, http.StatusServiceUnavailable, database.ErrNoBackend.Error())
		return
	}

	id := chi.URLParam(r, "id")
	records, err := h.archive.GetSessionRecords(r.Context(), id)
	if err != nil {
		log.Printf("WARNING: failed to load records of session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to load session records")
		return
	}
	if records == nil {
		records = []database.StoredRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}
