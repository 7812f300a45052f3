package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/vk/tilegate/internal/ctxlog"
	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/tile"
)

// Name is the provider name used in layer definitions.
const Name = "proxy"

// maxTileBytes caps how much of an upstream body is read.
const maxTileBytes = 16 << 20

// Presets maps well-known provider names to URL templates.
var Presets = map[string]string{
	"OPENSTREETMAP": "https://tile.openstreetmap.org/{Z}/{X}/{Y}.png",
	"OPENTOPOMAP":   "https://tile.opentopomap.org/{Z}/{X}/{Y}.png",
}

// passthroughHeaders are copied from the upstream response.
var passthroughHeaders = []string{"Content-Type", "Cache-Control", "Expires", "ETag", "Last-Modified"}

// errUpstream marks upstream server errors, which count against the breaker.
var errUpstream = errors.New("upstream server error")

type provider struct {
	client    *http.Client
	limit     rate.Limit
	burst     int
	userAgent string
	metrics   *metrics.UpstreamMetrics

	mu    sync.Mutex
	hosts map[string]*upstream
}

// upstream holds the per-host protection state.
type upstream struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newProvider(client *http.Client, rps float64, burst int, userAgent string, m *metrics.UpstreamMetrics) *provider {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	if userAgent == "" {
		userAgent = "tilegate"
	}
	return &provider{
		client:    client,
		limit:     limit,
		burst:     burst,
		userAgent: userAgent,
		metrics:   m,
		hosts:     make(map[string]*upstream),
	}
}

// Validate requires either a "url" template or a known "provider" preset.
func (p *provider) Validate(spec layer.ProviderSpec) error {
	_, err := urlTemplate(spec)
	return err
}

func (p *provider) Render(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error) {
	tmpl, err := urlTemplate(cfg.Provider())
	if err != nil {
		return nil, err
	}
	target := expand(tmpl, coord, ext)
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", target, err)
	}

	up := p.upstreamFor(u.Host)
	if err := up.limiter.Wait(ctx); err != nil {
		p.count(u.Host, "rejected")
		return nil, fmt.Errorf("rate limit wait for %s: %w", u.Host, err)
	}

	v, err := up.breaker.Execute(func() (any, error) {
		return p.fetch(ctx, target)
	})
	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		p.count(u.Host, result)
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}

	res := v.(*tile.Result)
	if res.StatusCode == http.StatusOK {
		p.count(u.Host, "ok")
	} else {
		p.count(u.Host, "not_found")
	}
	ctxlog.FromContext(ctx).Debug("Fetched upstream tile.", "url", target, "status", res.StatusCode)
	return res, nil
}

func (p *provider) fetch(ctx context.Context, target string) (*tile.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxTileBytes))
		return nil, fmt.Errorf("%w: %s", errUpstream, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	res := tile.NewResult(resp.StatusCode, body)
	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			res.Header.Set(h, v)
		}
	}
	return res, nil
}

func (p *provider) upstreamFor(host string) *upstream {
	p.mu.Lock()
	defer p.mu.Unlock()

	if up, ok := p.hosts[host]; ok {
		return up
	}
	up := &upstream{
		limiter: rate.NewLimiter(p.limit, p.burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: 1,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: p.onStateChange,
		}),
	}
	p.hosts[host] = up
	return up
}

func (p *provider) onStateChange(host string, from, to gobreaker.State) {
	slog.Warn("Circuit breaker state changed",
		"component", "upstream", "host", host, "from", from.String(), "to", to.String())
	if p.metrics != nil {
		p.metrics.BreakerState.WithLabelValues(host).Set(stateToFloat(to))
	}
}

func (p *provider) count(host, result string) {
	if p.metrics != nil {
		p.metrics.RequestsTotal.WithLabelValues(host, result).Inc()
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func urlTemplate(spec layer.ProviderSpec) (string, error) {
	if tmpl := spec.StringParam("url"); tmpl != "" {
		if !strings.Contains(tmpl, "{Z}") || !strings.Contains(tmpl, "{X}") || !strings.Contains(tmpl, "{Y}") {
			return "", apperrors.BadRequest("proxy url %q must contain {Z}, {X} and {Y}", tmpl)
		}
		return tmpl, nil
	}

	preset := spec.StringParam("provider")
	if preset == "" {
		return "", apperrors.BadRequest("proxy provider needs a \"url\" template or a \"provider\" preset").
			WithContext("presets", presetNames())
	}
	tmpl, ok := Presets[strings.ToUpper(preset)]
	if !ok {
		return "", apperrors.BadRequest("unknown proxy preset %q", preset).
			WithContext("presets", presetNames())
	}
	return tmpl, nil
}

func expand(tmpl string, coord tile.Coordinate, ext string) string {
	return strings.NewReplacer(
		"{Z}", strconv.Itoa(coord.Zoom),
		"{X}", strconv.Itoa(coord.Column),
		"{Y}", strconv.Itoa(coord.Row),
		"{EXT}", ext,
	).Replace(tmpl)
}

func presetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
