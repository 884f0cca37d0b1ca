package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

func TestStatusHandler_Get(t *testing.T) {
	env := newTestEnv(t)
	handler := NewStatusHandler(env.engine, env.broadcaster)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/status", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	status := decodeBody[recognition.Status](t, recorder)
	if status.Mode != recognition.ModeIdle {
		t.Errorf("expected idle mode, got %s", status.Mode)
	}
	if status.Identities != 2 || status.Embeddings != 2 {
		t.Errorf("expected 2 identities with 2 embeddings, got %d/%d", status.Identities, status.Embeddings)
	}
	if status.SessionActive {
		t.Error("expected no active session")
	}
}

func TestStatusHandler_SetMode(t *testing.T) {
	tests := []struct {
		mode       string
		wantStatus int
		wantMode   recognition.Mode
	}{
		{"register", http.StatusOK, recognition.ModeRegister},
		{"recognize", http.StatusOK, recognition.ModeRecognize},
		{"stop", http.StatusOK, recognition.ModeIdle},
		{"idle", http.StatusOK, recognition.ModeIdle},
		{"dance", http.StatusBadRequest, recognition.ModeIdle},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			env := newTestEnv(t)
			handler := NewStatusHandler(env.engine, env.broadcaster)
			events := env.broadcaster.AddListener()

			req := requestWithChiParams(httptest.NewRequest("POST", "/api/v1/mode/"+tt.mode, nil), map[string]string{"mode": tt.mode})
			recorder := httptest.NewRecorder()
			handler.SetMode(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
			if got := env.engine.Mode(); got != tt.wantMode {
				t.Errorf("expected mode %s, got %s", tt.wantMode, got)
			}
			if tt.wantStatus == http.StatusOK {
				select {
				case ev := <-events:
					if ev.Type != EventStatus {
						t.Errorf("expected status event, got %s", ev.Type)
					}
				default:
					t.Error("expected a status event to be broadcast")
				}
			}
		})
	}
}
