package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"orderflow-core/internal/config"
)

// Server runs the HTTP/WebSocket surface, grounded on the teacher's
// internal/api/server.go net/http.ServeMux setup (no external router).
type Server struct {
	cfg      config.DashboardConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires the health/depth/ws routes onto a net/http.ServeMux.
func NewServer(cfg config.DashboardConfig, provider SnapshotProvider, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /api/depth/{symbol}", handlers.HandleDepth)
	mux.HandleFunc("GET /ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{cfg: cfg, hub: hub, handlers: handlers, server: server, logger: logger.With("component", "api-server")}
}

// Hub exposes the fan-out hub so the engine can push metrics/raw frames.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the fan-out hub and the HTTP server until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
