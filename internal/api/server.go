package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cleanbot/internal/device"
	"cleanbot/internal/feature"
)

// Appliance is the controller surface the API exposes. StatusView hands
// back plain values so implementations can resolve the derived fields
// under whatever locking they use; a live snapshot never crosses into
// handler goroutines. The core controller performs no locking of its
// own, so the daemon wraps it before handing it here.
type Appliance interface {
	StatusView() device.StatusView
	Standby() bool
	WakeUp(ctx context.Context) error
}

// Server provides HTTP endpoints for inspecting and nudging the appliance
type Server struct {
	appliance Appliance
	features  *feature.Registry
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a new API server
func NewServer(appliance Appliance, features *feature.Registry, logger *zap.Logger, port int) *Server {
	s := &Server{
		appliance: appliance,
		features:  features,
		logger:    logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/features", s.handleFeatures)
	mux.HandleFunc("/api/wakeup", s.handleWakeUp)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	IsOn           bool   `json:"is_on"`
	IsRunCompleted bool   `json:"is_run_completed"`
	IsError        bool   `json:"is_error"`
	RunState       string `json:"run_state"`
	ErrorMsg       string `json:"error_msg"`
	Standby        bool   `json:"standby"`
}

// handleStatus returns the derived appliance state as JSON
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := s.appliance.StatusView()
	response := StatusResponse{
		IsOn:           view.IsOn,
		IsRunCompleted: view.IsRunCompleted,
		IsError:        view.IsError,
		RunState:       view.RunState,
		ErrorMsg:       view.ErrorMsg,
		Standby:        s.appliance.Standby(),
	}

	writeJSON(w, s.logger, response)
}

// handleFeatures returns the feature side-channel values as JSON
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.logger, s.features.All())
}

// handleWakeUp sends the wake-up command to the appliance
func (s *Server) handleWakeUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.appliance.WakeUp(r.Context()); err != nil {
		if errors.Is(err, device.ErrInvalidDeviceStatus) {
			http.Error(w, "Appliance is not in standby", http.StatusConflict)
			return
		}
		s.logger.Error("Wake-up failed", zap.Error(err))
		http.Error(w, "Wake-up failed", http.StatusBadGateway)
		return
	}

	s.logger.Info("Wake-up requested via API", zap.String("remote_addr", r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
