package app

import (
	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/modules/file"
	"github.com/vk/tilegate/modules/proxy"
	"github.com/vk/tilegate/modules/solid"
)

// defaultModules returns the built-in tile providers configured from cfg.
func defaultModules(cfg *Config, m *metrics.UpstreamMetrics) []render.Module {
	return []render.Module{
		&proxy.Module{
			RequestsPerSecond: cfg.UpstreamRPS,
			Burst:             cfg.UpstreamBurst,
			UserAgent:         cfg.UserAgent,
			Metrics:           m,
		},
		&file.Module{},
		&solid.Module{},
	}
}
