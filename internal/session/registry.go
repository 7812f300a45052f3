package session

import (
	"sort"
	"sync"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
)

// Registry maps session ids to their Config. Sessions live until deleted;
// there is no implicit expiry.
type Registry struct {
	sessions sync.Map // Key: session id, Value: *Config
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Create registers a new, empty session. It fails if the id is already taken.
func (r *Registry) Create(id string) (*Config, error) {
	if id == "" {
		return nil, apperrors.BadRequest("session id is required")
	}
	cfg := newConfig(id)
	if _, loaded := r.sessions.LoadOrStore(id, cfg); loaded {
		return nil, apperrors.AlreadyExists("session %q already exists", id).WithContext("session", id)
	}
	return cfg, nil
}

// Delete removes a session. Dispatches already holding one of its layer
// snapshots are not affected.
func (r *Registry) Delete(id string) error {
	if _, loaded := r.sessions.LoadAndDelete(id); !loaded {
		return apperrors.NotFound("session %q not found", id).WithContext("session", id)
	}
	return nil
}

// Get returns the live Config of a session. Later mutations are visible
// through the returned handle.
func (r *Registry) Get(id string) (*Config, error) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, apperrors.NotFound("session %q not found", id).WithContext("session", id)
	}
	return v.(*Config), nil
}

// IDs returns the ids of all sessions, sorted.
func (r *Registry) IDs() []string {
	var ids []string
	r.sessions.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Snapshot returns a read-only, point-in-time view of every session and its
// layers, for introspection endpoints.
func (r *Registry) Snapshot() map[string]map[string]layer.Config {
	out := make(map[string]map[string]layer.Config)
	r.sessions.Range(func(k, v any) bool {
		out[k.(string)] = v.(*Config).Snapshot()
		return true
	})
	return out
}
