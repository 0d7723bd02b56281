// Package api provides the local admin HTTP server for Sparkedge.
//
// It exposes health, metrics, and maintenance operations (connection
// reload, certificate reload, buffer ceiling changes) to operators on the
// local network. It is not the telemetry path; all plant data flows over
// MQTT.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oakmoor/sparkedge/internal/buffer"
	"github.com/oakmoor/sparkedge/internal/connection"
	"github.com/oakmoor/sparkedge/internal/infrastructure/config"
	"github.com/oakmoor/sparkedge/internal/infrastructure/logging"
	"github.com/oakmoor/sparkedge/internal/tag"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Connection is the subset of the connection manager the admin API drives.
type Connection interface {
	State() connection.State
	Metrics() connection.Metrics
	Reload(ctx context.Context) error
	ReloadCertificates(ctx context.Context) error
	Rebirth() error
}

// Deps holds the dependencies required by the admin server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Connection Connection
	Buffer     *buffer.Store
	Registry   *tag.Registry
	Filter     *tag.Filter
	Version    string
}

// Server is the admin HTTP server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	conn     Connection
	store    *buffer.Store
	registry *tag.Registry
	filter   *tag.Filter
	version  string

	server    *http.Server
	startTime time.Time
}

// New creates an admin server with the given dependencies.
//
// The server does not listen until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Connection == nil {
		return nil, fmt.Errorf("connection manager is required")
	}
	if deps.Buffer == nil {
		return nil, fmt.Errorf("buffer store is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("tag registry is required")
	}
	if deps.Filter == nil {
		return nil, fmt.Errorf("deadband filter is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		conn:      deps.Connection,
		store:     deps.Buffer,
		registry:  deps.Registry,
		filter:    deps.Filter,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", "error", err)
		}
	}()

	s.logger.Info("admin server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts the server down, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("admin server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down admin server: %w", err)
	}
	return nil
}
