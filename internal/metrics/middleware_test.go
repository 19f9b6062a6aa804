package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	sw.WriteHeader(http.StatusNotFound)
	sw.WriteHeader(http.StatusOK)
	if sw.status != http.StatusNotFound || rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, rec = %d", sw.status, rec.Code)
	}
}

func TestStatusWriter_WriteCounts(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	_, _ = sw.Write([]byte("aaa"))
	_, _ = sw.Write([]byte("bbbbb"))
	if sw.status != http.StatusOK || sw.n != 8 {
		t.Fatalf("status = %d, n = %d", sw.status, sw.n)
	}
}

func TestStatusWriter_ReadFrom(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	n, err := sw.ReadFrom(strings.NewReader("file contents"))
	if err != nil || n != 13 || sw.n != 13 {
		t.Fatalf("n = %d, sw.n = %d, err = %v", n, sw.n, err)
	}
	if rec.Body.String() != "file contents" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if sw.Unwrap() != rec {
		t.Fatal("Unwrap mismatch")
	}
}

// Middleware

func newRouted(m *ServerMetrics, status int) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/file/{site}/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("data"))
	})
	return m.Middleware(r)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	h := newRouted(m, http.StatusOK)
	for _, p := range []string{"/api/file/docs/a.txt", "/api/file/docs/b/c.txt", "/api/file/other/x"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	mm := findMetric(t, m, "http_requests_total", map[string]string{
		"method": "GET", "route": "/api/file/{site}/*", "status": "200",
	})
	if mm == nil || mm.GetCounter().GetValue() != 3 {
		t.Fatalf("requests_total = %v", mm)
	}
	f := gather(t, m, "http_requests_total")
	if n := len(f.GetMetric()); n != 1 {
		t.Fatalf("series = %d, want 1 (paths must not become labels)", n)
	}
	rb := findMetric(t, m, "http_response_size_bytes", map[string]string{"route": "/api/file/{site}/*"})
	if rb == nil || rb.GetHistogram().GetSampleSum() != 12 {
		t.Fatalf("response size = %v", rb)
	}
}

func TestMiddleware_UnmatchedCollapses(t *testing.T) {
	m := New()
	h := newRouted(m, http.StatusOK)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/2", nil))

	mm := findMetric(t, m, "http_requests_total", map[string]string{"route": "unmatched", "status": "404"})
	if mm == nil || mm.GetCounter().GetValue() != 2 {
		t.Fatalf("unmatched = %v", mm)
	}
}

func TestMiddleware_CountsServerErrors(t *testing.T) {
	m := New()
	h := newRouted(m, http.StatusInternalServerError)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/file/docs/x", nil))

	mm := findMetric(t, m, "http_errors_total", map[string]string{"method": "GET", "route": "/api/file/{site}/*"})
	if mm == nil || mm.GetCounter().GetValue() != 1 {
		t.Fatalf("errors_total = %v", mm)
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		during = gaugeValue(t, m.inflight)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if during != 1 {
		t.Fatalf("inflight during = %v", during)
	}
	if v := gaugeValue(t, m.inflight); v != 0 {
		t.Fatalf("inflight after = %v", v)
	}
}

// traceExemplar

func TestTraceExemplar(t *testing.T) {
	if traceExemplar(context.Background()) != nil {
		t.Fatal("exemplar without span")
	}

	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")

	unsampled := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid}))
	if traceExemplar(unsampled) != nil {
		t.Fatal("exemplar for unsampled span")
	}

	sampled := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled}))
	ex := traceExemplar(sampled)
	if ex["trace_id"] != tid.String() {
		t.Fatalf("exemplar = %v", ex)
	}
}
