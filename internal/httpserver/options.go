package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/health"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Routes registers the application endpoints, e.g. the file API.
	Routes func(chi.Router)

	Health    health.Probe
	Readiness health.Probe

	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	UseRecoverMW bool
	OnPanic      func() // called after a recovered panic

	// HSTS sends Strict-Transport-Security; enable behind TLS only.
	HSTS bool

	// Zero means the package defaults.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
