package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// APIServer exposes the engine's state over HTTP while it runs.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer listening on port.
func NewAPIServer(engine *Engine, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Routes(),
	}
	return s
}

// Routes returns the HTTP handler of the API.
func (s *APIServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/status", s.statusHandler)
	r.Get("/positions", s.positionsHandler)
	r.Get("/health", s.healthHandler)
	return r
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		UserID        string `json:"user_id"`
		OpenPositions int    `json:"open_positions"`
		StartTime     string `json:"start_time"`
		Uptime        string `json:"uptime"`
	}{
		UserID:        s.engine.userID.String(),
		OpenPositions: len(s.engine.Positions()),
		StartTime:     s.engine.StartTime.Format(time.RFC3339),
		Uptime:        time.Since(s.engine.StartTime).String(),
	}
	s.writeJSON(w, status)
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	positions := s.engine.Positions()
	if positions == nil {
		positions = []Position{}
	}
	s.writeJSON(w, positions)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
