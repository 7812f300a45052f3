package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  *Error
		want int
	}{
		{"not found", NotFound("session %q", "k1"), http.StatusNotFound},
		{"already exists", AlreadyExists("session %q", "k1"), http.StatusConflict},
		{"bad request", BadRequest("provider name is required"), http.StatusBadRequest},
		{"timeout", DispatchTimeout(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"queue full", ErrQueueFull, http.StatusServiceUnavailable},
		{"client closed", ErrClientClosed, StatusClientClosedRequest},
		{"internal", Internal("boom", nil), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.err.HTTPStatus())
		})
	}
}

func TestIs_MatchesSentinelByType(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("lookup: %w", NotFound("layer %q", "osm"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAlreadyExists))
	assert.False(t, errors.Is(ErrQueueFull, ErrClosed))
	assert.True(t, errors.Is(DispatchTimeout(context.DeadlineExceeded), context.DeadlineExceeded))
}

func TestRenderFailed(t *testing.T) {
	t.Parallel()

	cause := errors.New("upstream exploded")
	err := fmt.Errorf("dispatch: %w", RenderFailed(cause))

	require.True(t, errors.Is(err, ErrRenderFailed))
	require.True(t, errors.Is(err, cause))

	structured := AsStructuredError(err)
	assert.Equal(t, TypeRenderFailed, structured.Type)
	assert.Equal(t, http.StatusBadGateway, structured.HTTPStatus())
	assert.NotContains(t, structured.ToResponse().Error, "exploded", "cause must not be exposed to clients")
}

func TestAsStructuredError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, AsStructuredError(nil))

	plain := errors.New("disk on fire")
	structured := AsStructuredError(plain)
	assert.Equal(t, TypeInternal, structured.Type)
	assert.ErrorIs(t, structured, plain)

	nf := NotFound("session %q", "missing").WithContext("session", "missing")
	got := AsStructuredError(fmt.Errorf("wrapped: %w", nf))
	assert.Same(t, nf, got)
	assert.Equal(t, map[string]any{"session": "missing"}, got.ToResponse().Context)
}

func TestAsStructuredError_ClientCancellation(t *testing.T) {
	t.Parallel()

	got := AsStructuredError(fmt.Errorf("await: %w", context.Canceled))

	assert.Equal(t, TypeClientClosed, got.Type)
	assert.Equal(t, StatusClientClosedRequest, got.HTTPStatus())
	assert.True(t, errors.Is(got, ErrClientClosed))
	assert.ErrorIs(t, got, context.Canceled)

	// A render that failed because its own context was cancelled is still a
	// render failure.
	rf := AsStructuredError(RenderFailed(context.Canceled))
	assert.Equal(t, TypeRenderFailed, rf.Type)
}
