// Package session holds the per-session layer configuration and the
// process-wide registry of sessions.
//
// # Concurrency Model
//
// Both the registry and each session's layer table are backed by sync.Map.
// The key space is small and stable while values are replaced from many
// request goroutines, and operations on different keys never contend:
//   - Registry.Create uses LoadOrStore, so exactly one concurrent creator wins.
//   - Config.SetLayer and Config.RemoveLayer on one layer name never block
//     reads or writes of another name in the same session.
//   - Every operation on a single key is linearizable.
//
// Values handed out by GetLayer are immutable layer.Config snapshots. A tile
// dispatch that captured one keeps rendering with it even if the layer is
// replaced or the whole session is deleted afterwards.
package session

import (
	"sort"
	"sync"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
)

// Config is the named collection of layers belonging to one session.
type Config struct {
	id     string
	layers sync.Map // Key: layer name, Value: layer.Config
}

func newConfig(id string) *Config {
	return &Config{id: id}
}

// ID returns the session id.
func (c *Config) ID() string { return c.id }

// SetLayer inserts or replaces the layer stored under name and reports
// whether a previous value was replaced. The stored value is bound to name.
func (c *Config) SetLayer(name string, cfg layer.Config) bool {
	if name == "" {
		name = cfg.Name()
	}
	if cfg.Name() != name {
		cfg = cfg.Renamed(name)
	}
	_, replaced := c.layers.Swap(name, cfg)
	return replaced
}

// GetLayer returns the current value of the named layer.
func (c *Config) GetLayer(name string) (layer.Config, error) {
	v, ok := c.layers.Load(name)
	if !ok {
		return layer.Config{}, apperrors.NotFound("layer %q not found in session %q", name, c.id).
			WithContext("session", c.id).
			WithContext("layer", name)
	}
	return v.(layer.Config), nil
}

// RemoveLayer deletes the named layer.
func (c *Config) RemoveLayer(name string) error {
	if _, loaded := c.layers.LoadAndDelete(name); !loaded {
		return apperrors.NotFound("layer %q not found in session %q", name, c.id).
			WithContext("session", c.id).
			WithContext("layer", name)
	}
	return nil
}

// Snapshot returns a point-in-time copy of all layers keyed by name.
func (c *Config) Snapshot() map[string]layer.Config {
	out := make(map[string]layer.Config)
	c.layers.Range(func(k, v any) bool {
		out[k.(string)] = v.(layer.Config)
		return true
	})
	return out
}

// Layers returns a point-in-time list of all layers, sorted by name.
func (c *Config) Layers() []layer.Config {
	snap := c.Snapshot()
	out := make([]layer.Config, 0, len(snap))
	for _, cfg := range snap {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of layers currently configured.
func (c *Config) Len() int {
	n := 0
	c.layers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
