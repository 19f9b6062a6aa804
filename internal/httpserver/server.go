// Package httpserver assembles the public listener: the chi router holding
// the file API wrapped in the request-scoped middleware stack.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/health"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// maxNonUploadBody caps bodies on everything but PUT. Uploads are bounded
// by the file API's own limit.
const maxNonUploadBody = 1 << 20

// compressible lists the content types worth gzipping: JSON listings and
// errors, plus text files being downloaded.
var compressible = []string{
	"application/json",
	"text/plain",
	"text/csv",
	"text/html",
	"text/css",
	"text/javascript",
	"application/javascript",
	"application/xml",
	"image/svg+xml",
}

// compressUnlessRange gzips responses except range requests, whose
// Content-Range must describe the identity bytes, and HEAD requests, whose
// Content-Length must match what a GET would send uncompressed.
func compressUnlessRange() func(http.Handler) http.Handler {
	compress := middleware.Compress(5, compressible...)
	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || r.Header.Get("Range") != "" {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}

// shouldTrace skips probe traffic.
func shouldTrace(r *http.Request) bool {
	return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
}

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	r := chi.NewRouter()

	// route-aware middleware must sit inside the router to see URL params
	r.Use(httpmw.AnnotateRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxNonUploadBody, http.MethodPut))
	r.Use(compressUnlessRange())

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}
	if opts.Routes != nil {
		opts.Routes(r)
	}

	// outermost first
	return httpmw.Chain(r,
		httpmw.SecurityHeaders(opts.HSTS),
		recoverMW(opts),
		httpmw.RequestID(httpmw.RequestIDHeader),
		httpmw.ClientIP(opts.ClientIPOpts),
		opts.RateLimitMW,
		otelhttp.NewMiddleware("http.server",
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				// AnnotateRoute renames the span to the route pattern
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
		),
		httpmw.TraceIDHeader("X-Trace-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
	)
}

func recoverMW(opts *Options) httpmw.Middleware {
	if !opts.UseRecoverMW {
		return nil
	}
	return httpmw.Recover(opts.Logger, opts.OnPanic)
}

// Server timeout defaults. Read and write are long because they bound
// whole upload and download bodies.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 5 * time.Minute
	DefaultWriteTimeout      = 30 * time.Minute
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler, opts *Options) *http.Server {
	readTimeout, writeTimeout := DefaultReadTimeout, DefaultWriteTimeout
	if opts != nil && opts.ReadTimeout > 0 {
		readTimeout = opts.ReadTimeout
	}
	if opts != nil && opts.WriteTimeout > 0 {
		writeTimeout = opts.WriteTimeout
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	handler := NewHandler(opts)
	srv := NewServer(addr, handler, opts)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen addr=%s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			// in-flight transfers get the caller's deadline, not a fixed one
			retErr = srv.Shutdown(sctx)
		})
		return retErr
	}
	return stop, nil
}
