package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

// apiTimeout bounds plain request/response endpoints. Encoding a frame or
// rebuilding the gallery goes through the embedding service and may be slow.
const apiTimeout = 5 * time.Minute

func (s *Server) setupRoutes() {
	statusHandler := handlers.NewStatusHandler(s.engine, s.broadcaster)
	sessionsHandler := handlers.NewSessionsHandler(s.engine, s.archive, s.broadcaster)
	identitiesHandler := handlers.NewIdentitiesHandler(s.engine)
	framesHandler := handlers.NewFramesHandler(s.engine)
	historyHandler := handlers.NewHistoryHandler(s.engine)
	eventsHandler := handlers.NewEventsHandler(s.engine, s.broadcaster)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Live streams, no request timeout
		r.Get("/events", eventsHandler.Stream)
		r.Get("/ws", s.hub.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(apiTimeout))

			// Status & mode
			r.Get("/status", statusHandler.Get)
			r.Post("/mode/{mode}", statusHandler.SetMode)

			// Attendance sessions
			r.Post("/sessions", sessionsHandler.Start)
			r.Post("/sessions/end", sessionsHandler.End)
			r.Get("/sessions/current", sessionsHandler.Current)
			r.Get("/sessions", sessionsHandler.List)
			r.Get("/sessions/{id}/records", sessionsHandler.Records)

			// Identities & registration
			r.Get("/identities", identitiesHandler.List)
			r.Post("/identities", identitiesHandler.Register)
			r.Post("/capture", identitiesHandler.Capture)
			r.Get("/capture", identitiesHandler.CaptureImage)
			r.Post("/capture/save", identitiesHandler.SaveCapture)
			r.Post("/gallery/rebuild", identitiesHandler.RebuildGallery)

			// Recognition
			r.Post("/frames", framesHandler.Recognize)
			r.Post("/identify", framesHandler.Identify)

			// History
			r.Get("/history", historyHandler.List)
			r.Delete("/history", historyHandler.Clear)
		})
	})

	s.router.Get("/", s.serveIndex)
}

// serveIndex serves a landing page pointing at the API.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Face Attendance</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; }
        h1 { color: #00d9ff; }
        p { color: #aaa; }
        a { color: #00d9ff; }
        code { background: #2a2a3e; padding: 2px 8px; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Face Attendance</h1>
        <p>Post camera frames to <code>/api/v1/frames</code> and follow welcomes on <code>/api/v1/events</code>.</p>
        <p>Status is available at <a href="/api/v1/status">/api/v1/status</a></p>
    </div>
</body>
</html>`))
}
