package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_IsUUID(t *testing.T) {
	t.Parallel()

	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestID_RoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok, "empty ids are treated as absent")

	id, ok := ID(WithID(context.Background(), "abc"))
	require.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil))).With("component", "test")

	logger.InfoContext(WithID(context.Background(), "req-1"), "tile served")
	logger.InfoContext(context.Background(), "no id")

	out := buf.String()
	assert.Contains(t, out, "correlation_id=req-1")
	assert.Contains(t, out, "component=test")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("correlation_id")))
}
