package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RoutePattern returns chi's matched pattern, or the raw path when nothing
// matched.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// AnnotateRoute renames the server span after routing to "METHOD pattern"
// and tags it with http.route and the site name, keeping span names low
// cardinality while file paths vary.
func AnnotateRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		pat := RoutePattern(r)
		span.SetName(r.Method + " " + pat)
		span.SetAttributes(attribute.String("http.route", pat))
		if site := chi.URLParam(r, "site"); site != "" {
			span.SetAttributes(attribute.String("filegw.site", site))
		}
	})
}
