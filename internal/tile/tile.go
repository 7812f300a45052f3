// Package tile holds the transient values exchanged with the render
// collaborator: tile coordinates and render results.
package tile

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/vk/tilegate/internal/errors"
)

// MaxZoom is the deepest zoom level accepted.
const MaxZoom = 30

// Coordinate identifies one tile of a standard XYZ tile pyramid.
type Coordinate struct {
	Column int // x
	Row    int // y
	Zoom   int // z
}

// String renders the coordinate as z/x/y.
func (c Coordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.Column, c.Row)
}

// Validate checks that the coordinate lies inside the pyramid.
func (c Coordinate) Validate() error {
	if c.Zoom < 0 || c.Zoom > MaxZoom {
		return apperrors.BadRequest("zoom must be between 0 and %d, got %d", MaxZoom, c.Zoom)
	}
	limit := 1 << c.Zoom
	if c.Column < 0 || c.Column >= limit {
		return apperrors.BadRequest("column %d out of range for zoom %d", c.Column, c.Zoom)
	}
	if c.Row < 0 || c.Row >= limit {
		return apperrors.BadRequest("row %d out of range for zoom %d", c.Row, c.Zoom)
	}
	return nil
}

// ParseCoordinate parses the z, x and y path segments of a tile URL.
func ParseCoordinate(z, x, y string) (Coordinate, error) {
	zoom, err := strconv.Atoi(z)
	if err != nil {
		return Coordinate{}, apperrors.BadRequest("invalid zoom %q", z)
	}
	col, err := strconv.Atoi(x)
	if err != nil {
		return Coordinate{}, apperrors.BadRequest("invalid column %q", x)
	}
	row, err := strconv.Atoi(y)
	if err != nil {
		return Coordinate{}, apperrors.BadRequest("invalid row %q", y)
	}
	c := Coordinate{Column: col, Row: row, Zoom: zoom}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// SplitExtension splits a "{y}.{ext}" path segment. The extension is
// lower-cased and must be non-empty.
func SplitExtension(segment string) (string, string, error) {
	dot := strings.LastIndexByte(segment, '.')
	if dot <= 0 || dot == len(segment)-1 {
		return "", "", apperrors.BadRequest("tile path %q must end in {y}.{ext}", segment)
	}
	return segment[:dot], strings.ToLower(segment[dot+1:]), nil
}

// Result is what the render collaborator returns: a status code, headers and
// body bytes.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResult builds a Result with a non-nil header set.
func NewResult(status int, body []byte) *Result {
	return &Result{StatusCode: status, Header: make(http.Header), Body: body}
}

// ContentType returns the MIME type conventionally used for a tile extension.
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "json", "geojson", "topojson":
		return "application/json"
	case "mvt", "pbf":
		return "application/vnd.mapbox-vector-tile"
	default:
		return "application/octet-stream"
	}
}
