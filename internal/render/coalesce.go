package render

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/tile"
)

// Coalesced collapses concurrent renders of the same tile of identically
// configured layers into a single call to next. Every caller receives its
// own copy of the result.
func Coalesced(next Renderer) Renderer {
	return &coalescing{next: next}
}

type coalescing struct {
	next  Renderer
	group singleflight.Group
}

func (c *coalescing) Render(ctx context.Context, cfg layer.Config, coord tile.Coordinate, ext string) (*tile.Result, error) {
	key := Key(cfg, coord, ext)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.next.Render(ctx, cfg, coord, ext)
	})
	if err != nil {
		return nil, err
	}
	res, _ := v.(*tile.Result)
	return CloneResult(res), nil
}

// Key identifies a rendered tile: the layer fingerprint, coordinate and
// extension.
func Key(cfg layer.Config, coord tile.Coordinate, ext string) string {
	return fmt.Sprintf("%s/%d/%d/%d.%s", cfg.Fingerprint(), coord.Zoom, coord.Column, coord.Row, ext)
}

// CloneResult deep-copies a render result.
func CloneResult(res *tile.Result) *tile.Result {
	if res == nil {
		return nil
	}
	out := &tile.Result{StatusCode: res.StatusCode, Header: res.Header.Clone()}
	if out.Header == nil {
		out.Header = make(map[string][]string)
	}
	if res.Body != nil {
		out.Body = append([]byte(nil), res.Body...)
	}
	return out
}
