// Package layer defines the immutable description of a single tile layer:
// which provider renders it, its projection and its cache policy.
package layer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"math"
	"slices"
	"time"

	apperrors "github.com/vk/tilegate/internal/errors"
)

// DefaultProjection is used when a layer does not name one.
const DefaultProjection = "spherical mercator"

// MaxCacheAge is the largest accepted max_cache_age in seconds. Larger values
// do not fit a time.Duration.
const MaxCacheAge = math.MaxInt64 / int64(time.Second)

// ProviderSpec names the provider that renders a layer and carries its
// parameters. The parameters are opaque to the gateway core; only the
// provider interprets them.
type ProviderSpec struct {
	Name   string
	Params map[string]any
}

// Param returns a provider parameter and whether it was set.
func (p ProviderSpec) Param(key string) (any, bool) {
	v, ok := p.Params[key]
	return v, ok
}

// StringParam returns a string parameter, or "" if absent or not a string.
func (p ProviderSpec) StringParam(key string) string {
	s, _ := p.Params[key].(string)
	return s
}

// Config is a layer definition. It cannot be changed after construction:
// replacing a layer stores a new Config under the same name.
type Config struct {
	name        string
	provider    ProviderSpec
	projection  string
	maxCacheAge *int
	fingerprint string
}

// Option customises a Config during construction.
type Option func(*Config)

// WithProjection sets the projection tag.
func WithProjection(projection string) Option {
	return func(c *Config) {
		if projection != "" {
			c.projection = projection
		}
	}
}

// WithMaxCacheAge sets an explicit cache policy in seconds.
func WithMaxCacheAge(seconds int) Option {
	return func(c *Config) {
		c.maxCacheAge = &seconds
	}
}

// New builds a validated layer Config. The provider parameters are deep
// copied so later changes by the caller are not observed.
func New(name string, provider ProviderSpec, opts ...Option) (Config, error) {
	if name == "" {
		return Config{}, apperrors.BadRequest("layer name is required")
	}
	if provider.Name == "" {
		return Config{}, apperrors.BadRequest("provider name is required for layer %q", name)
	}

	c := Config{
		name:       name,
		provider:   ProviderSpec{Name: provider.Name, Params: copyParams(provider.Params)},
		projection: DefaultProjection,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxCacheAge != nil {
		if *c.maxCacheAge < 0 {
			return Config{}, apperrors.BadRequest("max_cache_age must not be negative, got %d", *c.maxCacheAge)
		}
		if int64(*c.maxCacheAge) > MaxCacheAge {
			return Config{}, apperrors.BadRequest("max_cache_age must not exceed %d seconds, got %d", MaxCacheAge, *c.maxCacheAge)
		}
	}
	c.fingerprint = computeFingerprint(c.provider, c.projection)
	return c, nil
}

// Name returns the layer name.
func (c Config) Name() string { return c.name }

// Projection returns the projection tag.
func (c Config) Projection() string { return c.projection }

// Provider returns a copy of the provider spec.
func (c Config) Provider() ProviderSpec {
	return ProviderSpec{Name: c.provider.Name, Params: copyParams(c.provider.Params)}
}

// ProviderName returns the provider name without copying parameters.
func (c Config) ProviderName() string { return c.provider.Name }

// MaxCacheAge returns the cache policy in seconds and whether one is set.
func (c Config) MaxCacheAge() (int, bool) {
	if c.maxCacheAge == nil {
		return 0, false
	}
	return *c.maxCacheAge, true
}

// Fingerprint identifies the rendering inputs of the layer (provider and
// projection) independent of its name. Two layers with equal fingerprints
// produce the same tiles.
func (c Config) Fingerprint() string { return c.fingerprint }

// Renamed returns a copy of c bound to another name.
func (c Config) Renamed(name string) Config {
	c.name = name
	return c
}

// Definition is the wire form of a layer, used for JSON request and
// response bodies. The provider map holds the provider "name" alongside its
// parameters.
type Definition struct {
	Name        string         `json:"name,omitempty"`
	Provider    map[string]any `json:"provider"`
	Projection  string         `json:"projection,omitempty"`
	MaxCacheAge *int           `json:"max_cache_age,omitempty"`
}

// Build validates the definition and returns the layer Config named name.
func (d Definition) Build(name string) (Config, error) {
	if d.Provider == nil {
		return Config{}, apperrors.BadRequest("provider is required for layer %q", name)
	}
	providerName, _ := d.Provider["name"].(string)
	params := make(map[string]any, len(d.Provider))
	for k, v := range d.Provider {
		if k != "name" {
			params[k] = v
		}
	}

	opts := []Option{WithProjection(d.Projection)}
	if d.MaxCacheAge != nil {
		opts = append(opts, WithMaxCacheAge(*d.MaxCacheAge))
	}
	return New(name, ProviderSpec{Name: providerName, Params: params}, opts...)
}

// Definition returns the wire form of c.
func (c Config) Definition() Definition {
	provider := copyParams(c.provider.Params)
	if provider == nil {
		provider = make(map[string]any, 1)
	}
	provider["name"] = c.provider.Name

	d := Definition{
		Name:       c.name,
		Provider:   provider,
		Projection: c.projection,
	}
	if age, ok := c.MaxCacheAge(); ok {
		d.MaxCacheAge = &age
	}
	return d
}

// MarshalJSON renders the layer as its Definition.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Definition())
}

func computeFingerprint(p ProviderSpec, projection string) string {
	// encoding/json sorts map keys, which makes the digest stable.
	payload, err := json.Marshal(struct {
		Provider   string         `json:"provider"`
		Params     map[string]any `json:"params"`
		Projection string         `json:"projection"`
	}{p.Name, p.Params, projection})
	if err != nil {
		payload = []byte(p.Name + "|" + projection)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func copyParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyParams(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}
