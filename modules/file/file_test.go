package file

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/tile"
)

func TestFile_ServesTileFromTree(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "3", "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "3", "1", "2.png"), []byte("tile-bytes"), 0o644))

	reg := render.NewRegistry()
	(&Module{}).Register(reg)
	cfg, err := layer.New("relief", layer.ProviderSpec{Name: Name, Params: map[string]any{"path": root}})
	require.NoError(t, err)
	require.NoError(t, reg.Validate(cfg))

	// --- Act ---
	hit, err := reg.Render(context.Background(), cfg, tile.Coordinate{Column: 1, Row: 2, Zoom: 3}, "png")
	require.NoError(t, err)
	miss, err := reg.Render(context.Background(), cfg, tile.Coordinate{Column: 0, Row: 0, Zoom: 3}, "png")
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, http.StatusOK, hit.StatusCode)
	assert.Equal(t, "tile-bytes", string(hit.Body))
	assert.Equal(t, "image/png", hit.Header.Get("Content-Type"))
	assert.Equal(t, http.StatusNotFound, miss.StatusCode)
}

func TestFile_ExtensionOverride(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0", "0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0", "0", "0.jpg"), []byte("jpeg"), 0o644))

	cfg, err := layer.New("photo", layer.ProviderSpec{Name: Name, Params: map[string]any{"path": root, "extension": "jpg"}})
	require.NoError(t, err)

	res, err := provider{}.Render(context.Background(), cfg, tile.Coordinate{}, "png")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(res.Body))
	assert.Equal(t, "image/jpeg", res.Header.Get("Content-Type"))
}

func TestFile_RequiresPath(t *testing.T) {
	t.Parallel()

	err := provider{}.Validate(layer.ProviderSpec{Name: Name})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}
