// Package translate turns a render result into the HTTP response sent to the
// client, applying the layer's cache policy and the cross-origin header.
package translate

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/tile"
)

// Header names touched by Response.
const (
	HeaderExpires      = "Expires"
	HeaderCacheControl = "Cache-Control"
	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
)

// Translated is a fully formed tile response.
type Translated struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Response builds the client response for result. It is pure: the input is
// not modified and now is the only source of time.
//
// When the layer has a max cache age, Expires and Cache-Control are each set
// only if the render did not already provide them. The cross-origin header is
// always forced to "*". A nil result yields an empty 500.
func Response(result *tile.Result, cfg layer.Config, now time.Time) *Translated {
	if result == nil {
		h := make(http.Header)
		h.Set(HeaderAllowOrigin, "*")
		return &Translated{StatusCode: http.StatusInternalServerError, Header: h}
	}

	h := result.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}

	if age, ok := cfg.MaxCacheAge(); ok {
		setDefault(h, HeaderExpires, now.UTC().Add(time.Duration(age)*time.Second).Format(http.TimeFormat))
		setDefault(h, HeaderCacheControl, "public, max-age="+strconv.Itoa(age))
	}
	h.Set(HeaderAllowOrigin, "*")

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &Translated{StatusCode: status, Header: h, Body: result.Body}
}

func setDefault(h http.Header, key, value string) {
	if _, ok := h[http.CanonicalHeaderKey(key)]; !ok {
		h.Set(key, value)
	}
}
