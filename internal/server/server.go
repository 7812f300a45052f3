// Package server is the gateway's HTTP surface: session and layer management
// plus the tile endpoint, served by echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/tilegate/internal/dispatch"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/session"
	"github.com/vk/tilegate/internal/tile"
)

// DefaultDispatchTimeout bounds how long a tile request waits for its render.
const DefaultDispatchTimeout = 30 * time.Second

type dispatcher interface {
	Submit(ctx context.Context, r render.Renderer, cfg layer.Config, coord tile.Coordinate, ext string) (*dispatch.Future, error)
	Stats() dispatch.Stats
}

type validator interface {
	Validate(cfg layer.Config) error
}

// Options wires the server to the rest of the gateway.
type Options struct {
	Sessions   *session.Registry
	Dispatcher dispatcher
	// Renderer is handed to the dispatcher for every tile.
	Renderer render.Renderer
	// Validator checks layer definitions before they are stored.
	Validator       validator
	DispatchTimeout time.Duration
	Clock           clockwork.Clock
	Logger          *slog.Logger
	// Metrics enables /metrics and request instrumentation when set.
	Metrics      *prometheus.Registry
	HealthChecks []HealthCheck
}

// Server owns the echo instance.
type Server struct {
	echo *echo.Echo

	sessions        *session.Registry
	dispatcher      dispatcher
	renderer        render.Renderer
	validator       validator
	dispatchTimeout time.Duration
	clock           clockwork.Clock
	logger          *slog.Logger
	metrics         *prometheus.Registry
	httpMetrics     *metrics.HTTPMetrics
	healthChecks    []HealthCheck
	startTime       time.Time

	httpServer *http.Server
}

// New builds a server and registers its routes.
func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:            e,
		sessions:        opts.Sessions,
		dispatcher:      opts.Dispatcher,
		renderer:        opts.Renderer,
		validator:       opts.Validator,
		dispatchTimeout: opts.DispatchTimeout,
		clock:           opts.Clock,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		healthChecks:    opts.HealthChecks,
		startTime:       opts.Clock.Now(),
	}
	if opts.Metrics != nil {
		s.httpMetrics = metrics.NewHTTPMetrics(opts.Metrics)
	}

	s.httpServer = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.registerRoutes()
	return s
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and blocks until the server is shut down.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("🗺️  Tile gateway listening", "address", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
