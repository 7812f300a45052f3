// Package proxy provides the "proxy" tile provider, which fetches tiles from
// an upstream XYZ tile server.
package proxy

import (
	"net/http"
	"time"

	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/render"
)

// Module implements the render.Module interface. The zero value is usable
// and gets a default client and no rate limit.
type Module struct {
	// Client defaults to a pooled client with a 10s timeout.
	Client *http.Client
	// RequestsPerSecond limits requests per upstream host. 0 disables it.
	RequestsPerSecond float64
	// Burst is the limiter burst size; at least 1.
	Burst int
	// UserAgent is sent with every upstream request.
	UserAgent string
	// Metrics may be nil.
	Metrics *metrics.UpstreamMetrics
}

// Register registers the proxy provider with the render registry.
func (m *Module) Register(r *render.Registry) {
	client := m.Client
	if client == nil {
		client = newHTTPClient(10 * time.Second)
	}
	r.RegisterProvider(Name, newProvider(client, m.RequestsPerSecond, m.Burst, m.UserAgent, m.Metrics))
}

// newHTTPClient returns a client with connection pooling tuned for many
// small requests to a few hosts.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
