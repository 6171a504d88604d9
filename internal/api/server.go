package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/zigbee-explorer/internal/device"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/config"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/logging"
	"github.com/nerrad567/zigbee-explorer/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// IngestState is the view of the ingestor the API reports on.
type IngestState interface {
	Connected() bool
	Stats() ingest.Stats
}

// HealthChecker is a component whose health /api/health reports.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadySignaler receives the one-shot listener-ready notification.
type ReadySignaler interface {
	ListenerReady()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Store    *device.Store
	Hub      *Hub
	Ingest   IngestState   // optional; status reports disconnected without it
	Signaler ReadySignaler // optional
	Session  Session

	// Checks are reported by /api/health under their map key, next to the
	// server's own "api" check.
	Checks map[string]HealthChecker
}

// Server is the HTTP API and WebSocket server.
//
// It manages the HTTP listener, routes and middleware. The hub is owned by
// the caller, which runs it alongside the server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	store     *device.Store
	hub       *Hub
	ingest    IngestState
	signaler  ReadySignaler
	session   Session
	checks    map[string]HealthChecker
	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, Store and Hub are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("websocket hub is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		store:     deps.Store,
		hub:       deps.Hub,
		ingest:    deps.Ingest,
		signaler:  deps.Signaler,
		session:   deps.Session,
		checks:    deps.Checks,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener, reports listener-ready and serves in the background.
//
// Binding happens before Start returns, so a port conflict is reported here
// and listener-ready is only signalled once connections can be accepted.
//
// Parameters:
//   - ctx: Context for the listen call
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	timeouts := s.cfg.Timeouts
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       timeouts.GetReadTimeout(),
		ReadHeaderTimeout: timeouts.GetReadTimeout(),
		WriteTimeout:      timeouts.GetWriteTimeout(),
		IdleTimeout:       timeouts.GetIdleTimeout(),
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	if s.signaler != nil {
		s.signaler.ListenerReady()
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
