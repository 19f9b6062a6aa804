package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader echoes the active trace id so a caller can quote it when
// reporting a failed file operation. Nothing is set for untraced requests.
func TraceIDHeader(name string) Middleware {
	if name == "" {
		name = "X-Trace-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				w.Header().Set(name, sc.TraceID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
