// Package tilecache stores rendered tiles between requests. Two backends are
// provided: an in-process TTL map and Redis, for gateways that run as several
// replicas behind a load balancer.
package tilecache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/tilegate/internal/tile"
)

// Cache is a best-effort store of rendered tiles keyed by an opaque string.
type Cache interface {
	// Get returns the cached result and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) (*tile.Result, bool, error)
	// Set stores res for ttl.
	Set(ctx context.Context, key string, res *tile.Result, ttl time.Duration) error
}

// Backend names accepted by configuration.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Nop is a Cache that never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) (*tile.Result, bool, error) {
	return nil, false, nil
}

// Set discards the tile.
func (Nop) Set(context.Context, string, *tile.Result, time.Duration) error {
	return nil
}

// entry is the serialized form of a result.
type entry struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
}

func encode(res *tile.Result) ([]byte, error) {
	data, err := json.Marshal(entry{StatusCode: res.StatusCode, Header: res.Header, Body: res.Body})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*tile.Result, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cached tile: %w", err)
	}
	if e.Header == nil {
		e.Header = make(http.Header)
	}
	return &tile.Result{StatusCode: e.StatusCode, Header: e.Header, Body: e.Body}, nil
}
