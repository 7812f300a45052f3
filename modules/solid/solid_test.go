package solid

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/tile"
)

func TestSolid_RendersColouredPNG(t *testing.T) {
	t.Parallel()

	cfg, err := layer.New("red", layer.ProviderSpec{Name: Name, Params: map[string]any{"color": "#ff0000", "size": float64(16)}})
	require.NoError(t, err)

	res, err := provider{}.Render(context.Background(), cfg, tile.Coordinate{}, "png")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	img, err := png.Decode(bytes.NewReader(res.Body))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, color.NRGBAModel.Convert(img.At(3, 3)), color.NRGBA{R: 255, A: 255})
}

func TestSolid_OnlyPNG(t *testing.T) {
	t.Parallel()

	cfg, err := layer.New("red", layer.ProviderSpec{Name: Name})
	require.NoError(t, err)

	res, err := provider{}.Render(context.Background(), cfg, tile.Coordinate{}, "jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSolid_Validate(t *testing.T) {
	t.Parallel()

	ok := []map[string]any{nil, {"color": "#00ff0080"}, {"size": "64"}}
	for _, params := range ok {
		assert.NoError(t, provider{}.Validate(layer.ProviderSpec{Name: Name, Params: params}))
	}

	bad := []map[string]any{{"color": "red"}, {"size": float64(0)}, {"size": true}}
	for _, params := range bad {
		assert.ErrorIs(t, provider{}.Validate(layer.ProviderSpec{Name: Name, Params: params}), apperrors.ErrBadRequest)
	}
}
