package hclconf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vk/tilegate/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	path := writeFile(t, dir, "gateway.hcl", `
dispatcher {
  workers    = 8
  queue_size = 100
  timeout    = "5s"
}

cache {
  backend     = "redis"
  url         = "redis://localhost:6379/0"
  ttl         = "10m"
  max_entries = 500
}

session "demo" {
  layer "osm" {
    max_cache_age = 3600
    provider "proxy" {
      provider = "OPENSTREETMAP"
    }
  }

  layer "relief" {
    projection = "WGS84"
    provider "file" {
      path      = "/srv/tiles"
      extension = "png"
      zooms     = [1, 2]
    }
  }
}
`)

	// --- Act ---
	cfg, err := Load(context.Background(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, DispatcherConfig{Workers: 8, QueueSize: 100, Timeout: 5 * time.Second}, cfg.Dispatcher)
	assert.Equal(t, CacheConfig{Backend: "redis", URL: "redis://localhost:6379/0", TTL: 10 * time.Minute, MaxEntries: 500}, cfg.Cache)

	require.Len(t, cfg.Sessions, 1)
	session := cfg.Sessions[0]
	assert.Equal(t, "demo", session.ID)
	require.Len(t, session.Layers, 2)

	osm := session.Layers[0]
	assert.Equal(t, "osm", osm.Name())
	assert.Equal(t, "proxy", osm.ProviderName())
	assert.Equal(t, "spherical mercator", osm.Projection())
	age, ok := osm.MaxCacheAge()
	assert.True(t, ok)
	assert.Equal(t, 3600, age)

	relief := session.Layers[1]
	assert.Equal(t, "WGS84", relief.Projection())
	want := map[string]any{"path": "/srv/tiles", "extension": "png", "zooms": []any{float64(1), float64(2)}}
	if diff := cmp.Diff(want, relief.Provider().Params); diff != "" {
		t.Errorf("provider params mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_DirectoryMergesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a/dispatcher.hcl", `dispatcher { workers = 2 }`)
	writeFile(t, dir, "b/sessions.hcl", `
session "one" {}
session "two" {
  layer "dot" {
    provider "solid" { color = "#ff0000" }
  }
}
`)
	writeFile(t, dir, "notes.txt", `this is not hcl {`)

	cfg, err := Load(context.Background(), dir, filepath.Join(dir, "missing.hcl"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Dispatcher.Workers)
	assert.Zero(t, cfg.Dispatcher.Timeout)
	require.Len(t, cfg.Sessions, 2)
	assert.Empty(t, cfg.Sessions[0].Layers)
	assert.Equal(t, "#ff0000", cfg.Sessions[1].Layers[0].Provider().StringParam("color"))
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
	}{
		{name: "syntax error", content: `session "a" {`},
		{name: "bad duration", content: `dispatcher { timeout = "soon" }`},
		{name: "duplicate session", content: `
session "a" {}
session "a" {}
`},
		{name: "duplicate layer", content: `
session "a" {
  layer "x" {
    provider "solid" {}
  }
  layer "x" {
    provider "solid" {}
  }
}
`},
		{name: "layer without provider", content: `
session "a" {
  layer "x" { projection = "WGS84" }
}
`},
		{name: "unknown layer attribute", content: `
session "a" {
  layer "x" {
    zoom = 3
    provider "solid" {}
  }
}
`},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, t.TempDir(), "bad.hcl", tc.content)
			_, err := Load(context.Background(), path)
			assert.Error(t, err)
		})
	}
}

func TestParseLayer(t *testing.T) {
	t.Parallel()

	src := []byte(`
projection    = "WGS84"
max_cache_age = 60
provider "file" {
  path = "/srv/tiles"
}
`)
	cfg, err := ParseLayer("relief", src)
	require.NoError(t, err)

	assert.Equal(t, "relief", cfg.Name())
	assert.Equal(t, "file", cfg.ProviderName())
	assert.Equal(t, "/srv/tiles", cfg.Provider().StringParam("path"))
	age, ok := cfg.MaxCacheAge()
	assert.True(t, ok)
	assert.Equal(t, 60, age)
}

func TestParseLayer_BadBodies(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		`provider "file" {`,
		`projection = "WGS84"`,
		`max_cache_age = -5
provider "solid" {}`,
	} {
		_, err := ParseLayer("x", []byte(src))
		assert.ErrorIs(t, err, apperrors.ErrBadRequest, src)
	}
}
