package testutil

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/tile"
)

// StubModule registers a provider under Name that answers every tile with
// Body and counts its renders.
type StubModule struct {
	Name  string
	Body  []byte
	calls atomic.Int64
}

// Register registers the stub provider.
func (m *StubModule) Register(r *render.Registry) {
	r.RegisterProvider(m.Name, stubProvider{m})
}

// Calls returns how many tiles the provider rendered.
func (m *StubModule) Calls() int64 {
	return m.calls.Load()
}

type stubProvider struct {
	m *StubModule
}

func (stubProvider) Validate(layer.ProviderSpec) error { return nil }

func (p stubProvider) Render(context.Context, layer.Config, tile.Coordinate, string) (*tile.Result, error) {
	p.m.calls.Add(1)
	res := tile.NewResult(http.StatusOK, append([]byte(nil), p.m.Body...))
	res.Header.Set("Content-Type", "image/png")
	return res, nil
}
