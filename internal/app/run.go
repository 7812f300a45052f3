package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/vk/tilegate/internal/ctxlog"
)

// Run serves the gateway until ctx is cancelled, then shuts down: the HTTP
// server stops accepting requests, queued renders drain within the shutdown
// timeout and the cache is released.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.listener == nil {
		if err := a.listen(); err != nil {
			return errors.Join(err, a.shutdown())
		}
	}

	a.logger.Info("🚀 Starting tile gateway...", "workers", a.config.Workers, "sessions", a.sessions.Len())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(a.listener)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		runErr = err
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received.")
	}

	if err := a.shutdown(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	a.logger.Info("🏁 Tile gateway stopped.")
	return runErr
}

func (a *App) listen() error {
	ln, err := net.Listen("tcp", a.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.ListenAddr, err)
	}
	a.listener = ln
	return nil
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown failed", "error", err)
		errs = append(errs, err)
	}
	if err := a.dispatcher.Close(ctx); err != nil {
		a.logger.Warn("Dispatcher did not drain before the shutdown timeout; running renders were cancelled", "error", err)
		errs = append(errs, fmt.Errorf("failed to drain dispatcher: %w", err))
	}
	a.releaseCache()
	return errors.Join(errs...)
}
