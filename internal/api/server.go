// Package api serves reconciliation results over HTTP and WebSocket.
//
// Routes:
//   - GET /health                  — liveness check
//   - GET /api/reports             — latest metrics for every account
//   - GET /api/reports/{account}   — latest metrics for one account
//   - GET /ws                      — refresh notifications after each batch
//
// The server is strictly read-only: every number it serves was computed by
// the runner and is recomputable from the event log.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-pnl/pkg/types"
)

// ReportProvider is the read surface the server needs from the runner.
type ReportProvider interface {
	Latest(account string) (types.AccountMetrics, bool)
	Reports() []types.AccountMetrics
}

// Server runs the HTTP/WebSocket results API.
type Server struct {
	provider ReportProvider
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a results server listening on the given port.
func NewServer(port int, provider ReportProvider, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/reports", handlers.HandleReports)
	mux.HandleFunc("/api/reports/", handlers.HandleReport)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		provider: provider,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the server and hub. Blocks until the listener stops.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("results server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping results server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// NotifyRefresh pushes a refresh event to every connected WebSocket client.
// The runner calls this after each completed batch.
func (s *Server) NotifyRefresh(runID string) {
	s.hub.BroadcastRefresh(runID, len(s.provider.Reports()))
}
