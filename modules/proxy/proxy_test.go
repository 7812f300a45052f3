package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/tile"
)

func mustLayer(t *testing.T, params map[string]any) layer.Config {
	t.Helper()
	cfg, err := layer.New("osm", layer.ProviderSpec{Name: Name, Params: params})
	require.NoError(t, err)
	return cfg
}

func TestProxy_FetchesUpstreamTile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var gotPath, gotUA string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotUA = r.URL.Path, r.UserAgent()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "max-age=7")
		w.Header().Set("Set-Cookie", "secret=1")
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer upstream.Close()

	reg := render.NewRegistry()
	(&Module{Client: upstream.Client(), UserAgent: "tilegate-test"}).Register(reg)
	cfg := mustLayer(t, map[string]any{"url": upstream.URL + "/{Z}/{X}/{Y}.{EXT}"})

	// --- Act ---
	res, err := reg.Render(context.Background(), cfg, tile.Coordinate{Column: 2, Row: 3, Zoom: 4}, "png")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/4/2/3.png", gotPath)
	assert.Equal(t, "tilegate-test", gotUA)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "PNGDATA", string(res.Body))
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	assert.Equal(t, "max-age=7", res.Header.Get("Cache-Control"))
	assert.Empty(t, res.Header.Get("Set-Cookie"))
}

func TestProxy_NotFoundPassesThrough(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	m := metrics.NewUpstreamMetrics(prometheus.NewRegistry())
	p := newProvider(upstream.Client(), 0, 0, "", m)

	res, err := p.Render(context.Background(), mustLayer(t, map[string]any{"url": upstream.URL + "/{Z}/{X}/{Y}.png"}), tile.Coordinate{}, "png")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	host := upstream.Listener.Addr().String()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues(host, "not_found")))
}

func TestProxy_BreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	m := metrics.NewUpstreamMetrics(prometheus.NewRegistry())
	p := newProvider(upstream.Client(), 0, 0, "", m)
	cfg := mustLayer(t, map[string]any{"url": upstream.URL + "/{Z}/{X}/{Y}.png"})

	// --- Act ---
	for i := 0; i < 5; i++ {
		_, err := p.Render(context.Background(), cfg, tile.Coordinate{}, "png")
		require.Error(t, err)
	}
	_, err := p.Render(context.Background(), cfg, tile.Coordinate{}, "png")

	// --- Assert ---
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), hits.Load(), "an open breaker must not reach the upstream")
	host := upstream.Listener.Addr().String()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerState.WithLabelValues(host)))
}

func TestProxy_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer upstream.Close()

	p := newProvider(upstream.Client(), 0.001, 1, "", nil)
	cfg := mustLayer(t, map[string]any{"url": upstream.URL + "/{Z}/{X}/{Y}.png"})

	_, err := p.Render(context.Background(), cfg, tile.Coordinate{}, "png")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Render(ctx, cfg, tile.Coordinate{}, "png")
	assert.Error(t, err)
}

func TestProxy_Validate(t *testing.T) {
	t.Parallel()

	p := newProvider(http.DefaultClient, 0, 0, "", nil)

	testCases := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{name: "preset", params: map[string]any{"provider": "OPENSTREETMAP"}},
		{name: "preset is case insensitive", params: map[string]any{"provider": "openstreetmap"}},
		{name: "url template", params: map[string]any{"url": "https://tiles.example.org/{Z}/{X}/{Y}.png"}},
		{name: "nothing", params: nil, wantErr: true},
		{name: "unknown preset", params: map[string]any{"provider": "NOPE"}, wantErr: true},
		{name: "template without placeholders", params: map[string]any{"url": "https://example.org/tile.png"}, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := p.Validate(layer.ProviderSpec{Name: Name, Params: tc.params})
			if tc.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrBadRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	got := expand(Presets["OPENSTREETMAP"], tile.Coordinate{Column: 1, Row: 2, Zoom: 3}, "png")
	assert.Equal(t, "https://tile.openstreetmap.org/3/1/2.png", got)
}
