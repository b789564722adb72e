package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func TestMiddleware_CreatesSpan(t *testing.T) {
	rec := installRecorder(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /summaries", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rr := httptest.NewRecorder()
	Middleware(mux).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/summaries", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "POST /summaries", span.Name())
	attrs := attrMap(span.Attributes())
	assert.Equal(t, int64(http.StatusCreated), attrs["http.status_code"].AsInt64())
	assert.Equal(t, "POST", attrs["http.method"].AsString())
	assert.Equal(t, "/summaries", attrs["http.path"].AsString())
	assert.Equal(t, span.SpanContext().TraceID().String(), rr.Header().Get("X-Trace-Id"))
}

func TestMiddleware_MarksServerErrors(t *testing.T) {
	rec := installRecorder(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	rec := installRecorder(t)

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", parent)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen)
	assert.True(t, spans[0].Parent().IsRemote())
}

func TestTraceID_Empty(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestInit(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	rec := tracetest.NewSpanRecorder()
	shutdown := Init(1.0, rec)

	ctx, span := GetTracer().Start(context.Background(), "op")
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, TracerName, rec.Ended()[0].InstrumentationScope().Name)
}
