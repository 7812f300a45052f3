// Package render defines the boundary to the tile render collaborator and the
// registry that routes each layer to the provider named in its definition.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/tile"
)

// Renderer produces the bytes of one tile. Implementations may be slow and
// may block; they are only ever called from dispatcher workers.
type Renderer interface {
	Render(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error)
}

// Func adapts an ordinary function to the Renderer interface.
type Func func(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error)

// Render calls f.
func (f Func) Render(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error) {
	return f(ctx, cfg, coord, ext)
}

// Provider is a Renderer that can also check a layer's provider parameters
// when the layer is defined, before any tile is requested.
type Provider interface {
	Renderer
	Validate(spec layer.ProviderSpec) error
}

// Module is the interface that provider packages implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry maps provider names to providers. Registration happens at
// startup; after that the registry is read-only and safe for concurrent use.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// RegisterProvider registers p under name. Registering a name twice is a
// programming error and panics.
func (r *Registry) RegisterProvider(name string, p Provider) {
	if _, exists := r.providers[name]; exists {
		panic(fmt.Sprintf("provider with name '%s' already registered", name))
	}
	slog.Debug("Registering tile provider.", "name", name)
	r.providers[name] = p
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the layer's provider is known and accepts its
// parameters.
func (r *Registry) Validate(cfg layer.Config) error {
	p, ok := r.providers[cfg.ProviderName()]
	if !ok {
		return apperrors.BadRequest("unknown provider %q for layer %q", cfg.ProviderName(), cfg.Name()).
			WithContext("providers", r.Names())
	}
	return p.Validate(cfg.Provider())
}

// Render routes the call to the layer's provider.
func (r *Registry) Render(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error) {
	p, ok := r.providers[cfg.ProviderName()]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q", cfg.ProviderName())
	}
	return p.Render(ctx, cfg, coord, ext)
}
