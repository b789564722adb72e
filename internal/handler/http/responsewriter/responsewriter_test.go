package responsewriter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := Wrap(rec)

	assert.Equal(t, http.StatusOK, wrapped.StatusCode())
	assert.Zero(t, wrapped.BytesWritten())
	assert.False(t, wrapped.Written())
	assert.Same(t, wrapped, Wrap(wrapped))
	assert.Equal(t, rec, wrapped.Unwrap())
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{name: "ok", statusCode: http.StatusOK},
		{name: "bad request", statusCode: http.StatusBadRequest},
		{name: "bad gateway", statusCode: http.StatusBadGateway},
		{name: "gateway timeout", statusCode: http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			wrapped := Wrap(rec)

			wrapped.WriteHeader(tt.statusCode)

			assert.Equal(t, tt.statusCode, wrapped.StatusCode())
			assert.True(t, wrapped.Written())
			assert.Equal(t, tt.statusCode, rec.Code)
		})
	}
}

func TestResponseWriter_WriteHeader_FirstWins(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := Wrap(rec)

	wrapped.WriteHeader(http.StatusBadGateway)
	wrapped.WriteHeader(http.StatusOK)

	assert.Equal(t, http.StatusBadGateway, wrapped.StatusCode())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestResponseWriter_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := Wrap(rec)

	n1, err := wrapped.Write([]byte(`{"summary":`))
	require.NoError(t, err)
	n2, err := wrapped.Write([]byte(`"stable"}`))
	require.NoError(t, err)

	assert.Equal(t, n1+n2, wrapped.BytesWritten())
	assert.Equal(t, `{"summary":"stable"}`, rec.Body.String())
	assert.True(t, wrapped.Written())
	assert.Equal(t, http.StatusOK, wrapped.StatusCode())
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := Wrap(rec)

	wrapped.Flush()

	assert.True(t, rec.Flushed)
	assert.True(t, wrapped.Written())
}

func TestResponseWriter_Middleware(t *testing.T) {
	var inner, outer *ResponseWriter
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = Wrap(w)
		inner.WriteHeader(http.StatusNotFound)
		_, _ = inner.Write([]byte("not found"))
	})
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outer = Wrap(w)
			next.ServeHTTP(outer, r)
		})
	}

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Same(t, outer, inner)
	assert.Equal(t, http.StatusNotFound, outer.StatusCode())
	assert.Equal(t, 9, outer.BytesWritten())
	assert.Equal(t, "not found", rec.Body.String())
}
