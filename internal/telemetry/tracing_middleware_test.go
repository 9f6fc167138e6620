package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTracedRouter(t *testing.T) (http.Handler, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return newTournamentRouter(TracingMiddleware(tp)), recorder
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingMiddleware_NamesSpansByRoute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		wantName   string
		wantStatus int
		wantCode   codes.Code
	}{
		{
			name:       "manual sync",
			method:     http.MethodPost,
			path:       "/api/v1/tournaments/12345/sync",
			wantName:   "POST /api/v1/tournaments/{id}/sync",
			wantStatus: http.StatusOK,
			wantCode:   codes.Ok,
		},
		{
			name:       "unknown tournament is not a server error",
			method:     http.MethodGet,
			path:       "/api/v1/tournaments/999/changes",
			wantName:   "GET /api/v1/tournaments/{id}/changes",
			wantStatus: http.StatusNotFound,
			wantCode:   codes.Unset,
		},
		{
			name:       "batch already running",
			method:     http.MethodPost,
			path:       "/api/v1/sync",
			wantName:   "POST /api/v1/sync",
			wantStatus: http.StatusConflict,
			wantCode:   codes.Unset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler, recorder := newTracedRouter(t)
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			span := spans[0]

			assert.Equal(t, tt.wantName, span.Name())
			assert.Equal(t, trace.SpanKindServer, span.SpanKind())
			assert.Equal(t, tt.wantCode, span.Status().Code)

			route, ok := attrValue(span.Attributes(), "http.route")
			require.True(t, ok)
			assert.NotContains(t, route.AsString(), "12345", "route must not carry the tournament id")

			code, ok := attrValue(span.Attributes(), "http.response.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.wantStatus), code.AsInt64())

			path, ok := attrValue(span.Attributes(), "url.path")
			require.True(t, ok)
			assert.Equal(t, tt.path, path.AsString())
		})
	}
}

func TestTracingMiddleware_ServerErrorMarksSpan(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	handler := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/tournaments/1/sync", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), spans[0].Status().Description)
	assert.Equal(t, "POST unknown_route", spans[0].Name(), "requests outside chi have no route pattern")
}

func TestTracingMiddleware_SkipsProbes(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var served int
	handler := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		assert.False(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/readiness", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 3, served)
	assert.Empty(t, recorder.Ended())
}

func TestTracingMiddleware_TruncatesUserAgent(t *testing.T) {
	t.Parallel()

	handler, recorder := newTracedRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("User-Agent", "rostertrack-cron/"+strings.Repeat("x", 2*MaxUserAgentLength))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	ua, ok := attrValue(spans[0].Attributes(), "user_agent.original")
	require.True(t, ok)
	assert.Len(t, ua.AsString(), MaxUserAgentLength)
	assert.True(t, strings.HasPrefix(ua.AsString(), "rostertrack-cron/"))
}

func TestTracingMiddleware_NilProvider(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTournamentRouter(TracingMiddleware(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// The propagator is read from the otel globals, so this test is not parallel.
func TestTracingMiddleware_ContinuesCallerTrace(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	handler, recorder := newTracedRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tournaments/12345/sync", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
	assert.True(t, spans[0].Parent().IsRemote())
}
