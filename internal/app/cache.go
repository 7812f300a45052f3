package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/tilegate/internal/server"
	"github.com/vk/tilegate/internal/tilecache"
)

// evictionInterval is how often the memory cache drops expired tiles.
const evictionInterval = time.Minute

var errDispatcherClosed = errors.New("dispatcher is closed")

// newCache builds the configured cache backend. It returns nil when caching
// is disabled.
func (a *App) newCache(ctx context.Context) (tilecache.Cache, error) {
	switch a.config.CacheBackend {
	case tilecache.BackendMemory:
		mem := tilecache.NewMemory(a.clock, a.config.CacheMaxEntries)
		stop := mem.StartEvictionTimer(evictionInterval)
		a.closers = append(a.closers, func() error {
			stop()
			return nil
		})
		a.logger.Info("🧊 Tile cache enabled", "backend", tilecache.BackendMemory, "max_entries", a.config.CacheMaxEntries, "ttl", a.config.CacheTTL)
		return mem, nil

	case tilecache.BackendRedis:
		rdb, err := tilecache.NewRedisClient(ctx, a.config.CacheURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.healthChecks = append(a.healthChecks, server.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
		a.logger.Info("🧊 Tile cache enabled", "backend", tilecache.BackendRedis, "ttl", a.config.CacheTTL)
		return tilecache.NewRedis(rdb), nil

	default:
		a.logger.Debug("Tile cache disabled.")
		return nil, nil
	}
}

func (a *App) releaseCache() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("Failed to release tile cache", "error", err)
		}
	}
	a.closers = nil
}
