package accesslog

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddleware_LogsStatusAndAnnotations(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := Middleware(zap.New(core), "andamento")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Annotate(r.Context(), zap.Int("rows", 42))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("abc"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/api/get-andamento?x=1", nil))

	require.Equal(t, 1, logs.Len())
	ent := logs.All()[0]
	ctx := ent.ContextMap()
	assert.Equal(t, zapcore.WarnLevel, ent.Level)
	assert.Equal(t, "andamento", ctx["service"])
	assert.Equal(t, "GET", ctx["method"])
	assert.Equal(t, "/api/get-andamento", ctx["path"])
	assert.EqualValues(t, http.StatusTeapot, ctx["status"])
	assert.EqualValues(t, 3, ctx["bytes"])
	assert.EqualValues(t, 42, ctx["rows"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	var seen string
	h := Middleware(nil, "gateway")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}
