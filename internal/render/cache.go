package render

import (
	"context"
	"net/http"
	"time"

	"github.com/vk/tilegate/internal/ctxlog"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/tile"
	"github.com/vk/tilegate/internal/tilecache"
)

// Cached serves tiles from cache when possible and stores successful renders
// of next. Entries live for the layer's max cache age, or defaultTTL when the
// layer has no explicit policy. Cache failures are logged and bypassed.
// m may be nil.
func Cached(next Renderer, cache tilecache.Cache, defaultTTL time.Duration, m *metrics.CacheMetrics) Renderer {
	return &caching{next: next, cache: cache, defaultTTL: defaultTTL, metrics: m}
}

type caching struct {
	next       Renderer
	cache      tilecache.Cache
	defaultTTL time.Duration
	metrics    *metrics.CacheMetrics
}

func (c *caching) Render(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error) {
	logger := ctxlog.FromContext(ctx)
	key := Key(cfg, coord, ext)

	cached, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.WarnContext(ctx, "Tile cache lookup failed.", "key", key, "error", err)
		c.observeError("get")
	case ok:
		logger.Debug("Tile cache hit.", "key", key)
		if c.metrics != nil {
			c.metrics.Hits.WithLabelValues(cfg.ProviderName()).Inc()
		}
		return cached, nil
	default:
		if c.metrics != nil {
			c.metrics.Misses.WithLabelValues(cfg.ProviderName()).Inc()
		}
	}

	res, err := c.next.Render(ctx, cfg, coord, ext)
	if err != nil {
		return nil, err
	}

	ttl := c.defaultTTL
	if age, ok := cfg.MaxCacheAge(); ok {
		ttl = time.Duration(age) * time.Second
	}
	if res != nil && res.StatusCode == http.StatusOK && ttl > 0 {
		if err := c.cache.Set(ctx, key, res, ttl); err != nil {
			logger.WarnContext(ctx, "Tile cache store failed.", "key", key, "error", err)
			c.observeError("set")
		}
	}
	return res, nil
}

func (c *caching) observeError(op string) {
	if c.metrics != nil {
		c.metrics.Errors.WithLabelValues(op).Inc()
	}
}
