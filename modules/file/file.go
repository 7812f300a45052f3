// Package file provides the "file" tile provider, which serves pre-rendered
// tiles from a {path}/{z}/{x}/{y}.{ext} directory tree.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/tile"
)

// Name is the provider name used in layer definitions.
const Name = "file"

// Module implements the render.Module interface.
type Module struct{}

// Register registers the file provider with the render registry.
func (m *Module) Register(r *render.Registry) {
	r.RegisterProvider(Name, provider{})
}

type provider struct{}

// Validate requires the "path" parameter.
func (provider) Validate(spec layer.ProviderSpec) error {
	if spec.StringParam("path") == "" {
		return apperrors.BadRequest("file provider requires a \"path\" parameter")
	}
	return nil
}

// Render reads the tile from disk. A missing tile is a 404 result, not an
// error. The optional "extension" parameter overrides the requested one.
func (provider) Render(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error) {
	spec := cfg.Provider()
	root := spec.StringParam("path")
	if root == "" {
		return nil, errors.New("file provider has no path")
	}
	if override := spec.StringParam("extension"); override != "" {
		ext = override
	}

	// Coordinates are validated integers, so the joined path cannot escape root.
	name := filepath.Join(root,
		strconv.Itoa(coord.Zoom),
		strconv.Itoa(coord.Column),
		strconv.Itoa(coord.Row)+"."+ext,
	)

	body, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return tile.NewResult(http.StatusNotFound, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tile %s: %w", name, err)
	}

	res := tile.NewResult(http.StatusOK, body)
	res.Header.Set("Content-Type", tile.ContentType(ext))
	return res, nil
}
