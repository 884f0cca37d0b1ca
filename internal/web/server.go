package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config      *config.Config
	router      *chi.Mux
	httpServer  *http.Server
	engine      *recognition.Engine
	archive     database.AttendanceReader
	broadcaster *handlers.Broadcaster
	hub         *handlers.Hub
	stopHub     context.CancelFunc
}

// NewServer creates a new web server. archive may be nil when no attendance
// archive is configured. The server subscribes to the engine's notifications.
func NewServer(cfg *config.Config, engine *recognition.Engine, archive database.AttendanceReader) *Server {
	r := chi.NewRouter()

	broadcaster := handlers.NewBroadcaster()
	engine.AddListener(broadcaster)

	origins := middleware.OriginsFromEnv()
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := handlers.NewHub(broadcaster, origins.CheckOrigin)
	go hub.Run(hubCtx)

	s := &Server{
		config:      cfg,
		router:      r,
		engine:      engine,
		archive:     archive,
		broadcaster: broadcaster,
		hub:         hub,
		stopHub:     stopHub,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders())
	r.Use(origins.CORS())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE and websocket connections stay open
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	// Disconnect websocket clients; hijacked connections are not closed by http.Server.
	s.stopHub()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
