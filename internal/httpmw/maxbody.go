package httpmw

import "net/http"

// MaxBody caps request bodies at limit bytes for every method except the
// exempt ones. Uploads are exempted here and bounded by the file API, which
// knows the configured upload size.
func MaxBody(limit int64, exempt ...string) Middleware {
	skip := make(map[string]bool, len(exempt))
	for _, m := range exempt {
		skip[m] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !skip[r.Method] && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
