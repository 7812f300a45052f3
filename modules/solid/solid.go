// Package solid provides the "solid" tile provider, which renders every tile
// as a single colour. It needs no upstream and is handy for tests and
// placeholders.
package solid

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/tile"
)

// Name is the provider name used in layer definitions.
const Name = "solid"

// DefaultSize is the tile edge length in pixels.
const DefaultSize = 256

// Module implements the render.Module interface.
type Module struct{}

// Register registers the solid provider with the render registry.
func (m *Module) Register(r *render.Registry) {
	r.RegisterProvider(Name, provider{})
}

type provider struct{}

// Validate checks the optional "color" (#rrggbb or #rrggbbaa) and "size"
// parameters.
func (provider) Validate(spec layer.ProviderSpec) error {
	if _, err := parseColor(spec.StringParam("color")); err != nil {
		return apperrors.BadRequest("solid provider: %v", err)
	}
	if _, err := size(spec); err != nil {
		return apperrors.BadRequest("solid provider: %v", err)
	}
	return nil
}

// Render encodes a PNG. Only the png extension is supported; others get 404.
func (provider) Render(_ context.Context, cfg layer.Config, _ tile.Coordinate, ext string) (*tile.Result, error) {
	if ext != "png" {
		return tile.NewResult(http.StatusNotFound, nil), nil
	}
	spec := cfg.Provider()
	c, err := parseColor(spec.StringParam("color"))
	if err != nil {
		return nil, err
	}
	n, err := size(spec)
	if err != nil {
		return nil, err
	}

	img := image.NewUniform(c)
	var buf bytes.Buffer
	if err := png.Encode(&buf, &sized{img, n}); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	res := tile.NewResult(http.StatusOK, buf.Bytes())
	res.Header.Set("Content-Type", "image/png")
	return res, nil
}

// sized bounds an infinite uniform image.
type sized struct {
	*image.Uniform
	n int
}

func (s *sized) Bounds() image.Rectangle { return image.Rect(0, 0, s.n, s.n) }

func size(spec layer.ProviderSpec) (int, error) {
	v, ok := spec.Param("size")
	if !ok {
		return DefaultSize, nil
	}
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case int:
		n = t
	case string:
		parsed, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q", t)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("invalid size %v", v)
	}
	if n < 1 || n > 4096 {
		return 0, fmt.Errorf("size must be between 1 and 4096, got %d", n)
	}
	return n, nil
}

// parseColor parses #rrggbb or #rrggbbaa; empty means transparent.
func parseColor(s string) (color.NRGBA, error) {
	if s == "" {
		return color.NRGBA{}, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
