package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendMeshAPI/middleware"
)

func TestDetachedFetchContext(t *testing.T) {
	t.Run("survives cancellation of the caller's context", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())

		fetchCtx, cancel := detachedFetchContext(parent)
		defer cancel()

		cancelParent()
		require.Error(t, parent.Err())
		assert.NoError(t, fetchCtx.Err())
	})

	t.Run("is bounded by its own deadline", func(t *testing.T) {
		fetchCtx, cancel := detachedFetchContext(context.Background())
		defer cancel()

		deadline, ok := fetchCtx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(directoryFetchTimeout), deadline, time.Second)
	})

	t.Run("keeps the parent's values", func(t *testing.T) {
		parent := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")

		fetchCtx, cancel := detachedFetchContext(parent)
		defer cancel()

		id, ok := middleware.GetRequestID(fetchCtx)
		require.True(t, ok)
		assert.Equal(t, "req-123", id)
	})
}
