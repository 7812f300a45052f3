package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/tilegate/internal/ctxlog"
	"github.com/vk/tilegate/internal/dispatch"
	"github.com/vk/tilegate/internal/hclconf"
	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/server"
	"github.com/vk/tilegate/internal/session"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	clock      clockwork.Clock
	metrics    *prometheus.Registry
	providers  *render.Registry
	sessions   *session.Registry
	dispatcher *dispatch.Dispatcher
	server     *server.Server
	listener   net.Listener

	healthChecks []server.HealthCheck
	// closers release cache resources after the dispatcher has drained.
	closers []func() error
}

// NewApp is the constructor for the main application. It loads the optional
// configuration file, registers the tile providers and preloads the sessions
// the file declares. When no modules are given the built-in providers are
// used.
func NewApp(outW io.Writer, cfg *Config, modules ...render.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	fileCfg := &hclconf.Config{}
	if cfg.ConfigPath != "" {
		loaded, err := hclconf.Load(ctx, cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		fileCfg = loaded
	}
	if err := cfg.merge(fileCfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("Configuration merged.", "workers", cfg.Workers, "queue_size", cfg.QueueSize, "cache", cfg.CacheBackend)

	a := &App{
		outW:      outW,
		logger:    logger,
		config:    cfg,
		clock:     clockwork.NewRealClock(),
		metrics:   metrics.NewRegistry(),
		providers: render.NewRegistry(),
		sessions:  session.NewRegistry(),
	}

	if len(modules) == 0 {
		modules = defaultModules(cfg, metrics.NewUpstreamMetrics(a.metrics))
	}
	for _, mod := range modules {
		mod.Register(a.providers)
	}
	logger.Debug("All tile providers registered.", "providers", a.providers.Names())

	cache, err := a.newCache(ctx)
	if err != nil {
		return nil, err
	}
	renderer := render.Renderer(a.providers)
	if cache != nil {
		renderer = render.Cached(renderer, cache, cfg.CacheTTL, metrics.NewCacheMetrics(a.metrics))
	}
	renderer = render.Coalesced(renderer)

	a.dispatcher = dispatch.New(dispatch.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    logger,
		Metrics:   metrics.NewDispatchMetrics(a.metrics),
		Clock:     a.clock,
	})
	a.healthChecks = append(a.healthChecks, server.HealthCheck{
		Name: "dispatcher",
		Check: func(context.Context) error {
			if a.dispatcher.Stats().Closed {
				return errDispatcherClosed
			}
			return nil
		},
	})

	if err := a.preload(fileCfg.Sessions); err != nil {
		_ = a.dispatcher.Close(ctx)
		a.releaseCache()
		return nil, err
	}

	a.server = server.New(server.Options{
		Sessions:        a.sessions,
		Dispatcher:      a.dispatcher,
		Renderer:        renderer,
		Validator:       a.providers,
		DispatchTimeout: cfg.DispatchTimeout,
		Clock:           a.clock,
		Logger:          logger,
		Metrics:         a.metrics,
		HealthChecks:    a.healthChecks,
	})

	return a, nil
}

// preload creates the sessions declared in the configuration file. Layers
// are validated against the registered providers like API-defined ones.
func (a *App) preload(sessions []hclconf.Session) error {
	for _, s := range sessions {
		sess, err := a.sessions.Create(s.ID)
		if err != nil {
			return fmt.Errorf("failed to preload session %q: %w", s.ID, err)
		}
		for _, l := range s.Layers {
			if err := a.providers.Validate(l); err != nil {
				return fmt.Errorf("invalid layer %q in session %q: %w", l.Name(), s.ID, err)
			}
			sess.SetLayer(l.Name(), l)
		}
		a.logger.Info("📦 Session preloaded", "session", s.ID, "layers", len(s.Layers))
	}
	return nil
}

// Handler returns the HTTP handler of the gateway. This is primarily for testing.
func (a *App) Handler() http.Handler {
	return a.server
}

// Sessions returns the session registry. This is primarily for testing.
func (a *App) Sessions() *session.Registry {
	return a.sessions
}
