package app

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/vk/tilegate/internal/testutil"
	"github.com/vk/tilegate/internal/tilecache"
)

func TestNewApp_RedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// --- Arrange ---
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, container.Terminate(context.Background())) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	path := testutil.WriteFile(t, t.TempDir(), "gateway.hcl", `
session "k1" {
  layer "base" {
    provider "stub" {}
  }
}
`)
	cfg := newTestConfig(t, path, "cache", "cache-url")
	cfg.CacheBackend = tilecache.BackendRedis
	cfg.CacheURL = url
	a, stub := setupApp(t, cfg)

	// --- Act ---
	first := get(t, a.Handler(), "/session/k1/layer/base/2/1/1.png")
	second := get(t, a.Handler(), "/session/k1/layer/base/2/1/1.png")
	health := get(t, a.Handler(), "/health")

	// --- Assert ---
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "tile", second.Body.String())
	assert.Equal(t, int64(1), stub.Calls())

	require.Equal(t, http.StatusOK, health.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(health.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
