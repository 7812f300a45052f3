package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/tilegate/internal/testutil"
	"github.com/vk/tilegate/internal/tilecache"
)

const stubProvider = "stub"

func newTestConfig(t *testing.T, path string, explicit ...string) *Config {
	t.Helper()
	set := make(map[string]bool, len(explicit))
	for _, name := range explicit {
		set[name] = true
	}
	cfg, err := NewConfig(Config{
		ConfigPath: path,
		ListenAddr: "127.0.0.1:0",
		LogFormat:  "text",
		LogLevel:   "debug",
		Explicit:   set,
	})
	require.NoError(t, err)
	return cfg
}

func setupApp(t *testing.T, cfg *Config) (*App, *testutil.StubModule) {
	t.Helper()
	logs := &testutil.SafeBuffer{}
	testutil.LogOnFailure(t, logs)

	stub := &testutil.StubModule{Name: stubProvider, Body: []byte("tile")}
	a, err := NewApp(logs, cfg, stub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.shutdown() })
	return a, stub
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewApp_PreloadsSessionsFromFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := testutil.WriteFile(t, t.TempDir(), "gateway.hcl", `
session "k1" {
  layer "base" {
    max_cache_age = 60
    provider "stub" {}
  }
}
`)
	a, stub := setupApp(t, newTestConfig(t, path))

	// --- Act ---
	rec := get(t, a.Handler(), "/session/k1/layer/base/1/1/1.png")

	// --- Assert ---
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tile", rec.Body.String())
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, int64(1), stub.Calls())
	assert.Equal(t, 1, a.Sessions().Len())
}

func TestNewApp_ExplicitFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := testutil.WriteFile(t, t.TempDir(), "gateway.hcl", `
dispatcher {
  workers    = 2
  queue_size = 50
  timeout    = "3s"
}
`)
	cfg := newTestConfig(t, path, "workers")
	cfg.Workers = 7

	// --- Act ---
	a, _ := setupApp(t, cfg)

	// --- Assert ---
	assert.Equal(t, 7, a.config.Workers, "flag value must win")
	assert.Equal(t, 50, a.config.QueueSize)
	assert.Equal(t, 3*time.Second, a.config.DispatchTimeout)
	assert.Equal(t, 7, a.dispatcher.Stats().Workers)
}

func TestNewApp_MemoryCacheServesRepeatedTiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := testutil.WriteFile(t, t.TempDir(), "gateway.hcl", `
cache {
  backend = "memory"
  ttl     = "1m"
}

session "k1" {
  layer "base" {
    provider "stub" {}
  }
}
`)
	a, stub := setupApp(t, newTestConfig(t, path))
	require.Equal(t, tilecache.BackendMemory, a.config.CacheBackend)

	// --- Act ---
	first := get(t, a.Handler(), "/session/k1/layer/base/4/5/6.png")
	second := get(t, a.Handler(), "/session/k1/layer/base/4/5/6.png")

	// --- Assert ---
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "tile", second.Body.String())
	assert.Equal(t, int64(1), stub.Calls(), "second request must be answered from the cache")
}

func TestNewApp_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		hcl     string
		wantMsg string
	}{
		{
			name:    "syntax error",
			hcl:     `session "k1" {`,
			wantMsg: "failed to load configuration",
		},
		{
			name: "unknown provider",
			hcl: `
session "k1" {
  layer "base" {
    provider "nope" {}
  }
}
`,
			wantMsg: `invalid layer "base" in session "k1"`,
		},
		{
			name:    "redis without url",
			hcl:     `cache { backend = "redis" }`,
			wantMsg: "needs a cache url",
		},
		{
			name:    "unknown backend",
			hcl:     `cache { backend = "disk" }`,
			wantMsg: "unknown cache backend",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := testutil.WriteFile(t, t.TempDir(), "gateway.hcl", tc.hcl)

			_, err := NewApp(io.Discard, newTestConfig(t, path), &testutil.StubModule{Name: stubProvider})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestNewApp_DefaultModules(t *testing.T) {
	t.Parallel()

	a, err := NewApp(io.Discard, newTestConfig(t, ""))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.shutdown() })

	assert.Equal(t, []string{"file", "proxy", "solid"}, a.providers.Names())
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	logs := &testutil.SafeBuffer{}
	testutil.LogOnFailure(t, logs)
	a, err := NewApp(logs, newTestConfig(t, ""), &testutil.StubModule{Name: stubProvider})
	require.NoError(t, err)
	require.NoError(t, a.listen())
	url := "http://" + a.listener.Addr().String() + "/health"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// --- Act ---
	go func() { done <- a.Run(ctx) }()

	// --- Assert ---
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.True(t, a.dispatcher.Stats().Closed)
	assert.Contains(t, logs.String(), "Tile gateway stopped")
}

func TestRun_ListenFailureReleasesResources(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := newTestConfig(t, "")
	cfg.ListenAddr = taken.Addr().String()
	cfg.CacheBackend = tilecache.BackendMemory
	a, err := NewApp(io.Discard, cfg, &testutil.StubModule{Name: stubProvider})
	require.NoError(t, err)

	// --- Act ---
	runErr := a.Run(context.Background())

	// --- Assert ---
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "failed to listen on")
	assert.True(t, a.dispatcher.Stats().Closed, "workers must be released")
	assert.Empty(t, a.closers, "cache eviction must be stopped")
}
