// Package server exposes the daemon's HTTP API over a Unix socket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pairlink/core/config"
	"github.com/pairlink/core/errors"
	"github.com/pairlink/core/internal/credstore"
	"github.com/pairlink/core/internal/notify"
	"github.com/pairlink/core/internal/orchestrator"
	"github.com/pairlink/core/internal/registry"
	"github.com/pairlink/core/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunningConfig is the active configuration snapshot exposed via the
// /api/config endpoint so clients can verify what the daemon runs with.
type RunningConfig struct {
	MaxSessions       int           `json:"max_sessions"`
	QRTimeout         time.Duration `json:"qr_timeout"`
	PairingTimeout    time.Duration `json:"pairing_timeout"`
	ExpiredInterval   time.Duration `json:"expired_interval"`
	OrphanInterval    time.Duration `json:"orphan_interval"`
	InvalidInterval   time.Duration `json:"invalid_interval"`
	UnscannedInterval time.Duration `json:"unscanned_interval"`
	StartedAt         time.Time     `json:"started_at"`
}

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger *logrus.Entry
	server *http.Server

	cfg           *config.Config
	orch          *orchestrator.Orchestrator
	reg           *registry.Registry
	creds         *credstore.Store
	hub           *notify.Hub
	runningConfig *RunningConfig
}

// New creates a Server wired to the daemon's components.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, reg *registry.Registry, creds *credstore.Store, hub *notify.Hub) *Server {
	return &Server{
		logger: logging.NewLogger("server"),
		cfg:    cfg,
		orch:   orch,
		reg:    reg,
		creds:  creds,
		hub:    hub,
	}
}

// SetRunningConfig sets the configuration snapshot served by /api/config.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/sessions", s.handleCreateQR)
	mux.HandleFunc("POST /api/sessions/pair", s.handleCreatePairing)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	mux.HandleFunc("GET /api/sessions/{id}/files", s.handleListFiles)
	mux.HandleFunc("GET /api/sessions/{id}/files/{name}", s.handleGetFile)
	mux.HandleFunc("GET /api/sessions/{id}/archive", s.handleArchive)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// The socket carries credential material; keep it owner-only.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.server = &http.Server{Handler: s.Handler()}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return s.server.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}

// authorized checks the file-access token when one is configured.
func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.API.FileAccessToken
	if token == "" {
		return true
	}
	return r.Header.Get("X-Access-Token") == token
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps structured error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeCapacityExceeded:
		status = http.StatusTooManyRequests
	case errors.ErrCodeProtected:
		status = http.StatusConflict
	case errors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrCodeAuthRejected, errors.ErrCodeChallengeExpired:
		status = http.StatusUnprocessableEntity
	}

	linkErr, ok := err.(*errors.LinkError)
	if !ok {
		linkErr = errors.Wrap(err, errors.ErrCodeInternal, err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(linkErr)
}
