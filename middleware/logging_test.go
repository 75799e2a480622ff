package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogMiddleware(t *testing.T) {
	t.Run("propagates a supplied correlation ID", func(t *testing.T) {
		var seen string
		handler := RequestLogMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetRequestID(r.Context())
			require.True(t, ok)
			seen = id
		}))

		req := httptest.NewRequest(http.MethodGet, "/friends/list", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	})

	t.Run("generates a correlation ID when absent", func(t *testing.T) {
		var seen string
		handler := RequestLogMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetRequestID(r.Context())
			require.True(t, ok)
			seen = id
		}))

		req := httptest.NewRequest(http.MethodGet, "/friends/list", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("context without an ID reports absence", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, ok := GetRequestID(req.Context())
		assert.False(t, ok)
	})
}
