// Package metrics owns the Prometheus registry served on the ops listener.
// Labels are kept to bounded sets: method, route pattern, status, operation,
// site name and outcome. File paths never become labels.
package metrics

import (
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	errorsTotal            *prometheus.CounterVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	profilingActive        prometheus.Gauge

	// file gateway
	fileOpsTotal    *prometheus.CounterVec
	fileOpDur       *prometheus.HistogramVec
	fileBytesTotal  *prometheus.CounterVec
	configSource    *prometheus.GaugeVec
	configLoadedTs  prometheus.Gauge
	sitesConfigured prometheus.Gauge
	siteRootUp      *prometheus.GaugeVec
}

// New returns a fresh registry with the Go and process collectors plus the
// gateway's HTTP and file operation metrics.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 12),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered http handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		fileOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "file_operations_total",
			Help: "File operations by operation, site and outcome (ok|not_found|bad_request|internal)",
		}, []string{"op", "site", "outcome"}),
		fileOpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "file_operation_duration_seconds",
			Help:    "Time spent in the filesystem layer per operation, excluding response streaming",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1, 5, 30},
		}, []string{"op"}),
		fileBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "file_bytes_total",
			Help: "Bytes read from or written to site roots",
		}, []string{"op", "site"}),
		configSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "site_config_source_info",
			Help: "Where the site registry was loaded from (label carries value, gauge is always 1)",
		}, []string{"source"}),
		configLoadedTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "site_config_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the site registry was loaded",
		}),
		sitesConfigured: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sites_configured",
			Help: "Number of sites in the registry",
		}),
		siteRootUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "site_root_up",
			Help: "Whether a site's root directory was present at startup (1) or not (0)",
		}, []string{"site"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.profilingActive,
		m.fileOpsTotal,
		m.fileOpDur,
		m.fileBytesTotal,
		m.configSource,
		m.configLoadedTs,
		m.sitesConfigured,
		m.siteRootUp,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   vi.Dirty(),
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// ObserveFileOp counts one gateway operation and its filesystem latency.
func (m *ServerMetrics) ObserveFileOp(op, site, outcome string, d time.Duration) {
	m.fileOpsTotal.WithLabelValues(op, site, outcome).Inc()
	m.fileOpDur.WithLabelValues(op).Observe(d.Seconds())
}

func (m *ServerMetrics) AddFileBytes(op, site string, n int64) {
	if n <= 0 {
		return
	}
	m.fileBytesTotal.WithLabelValues(op, site).Add(float64(n))
}

// SetSiteConfig records where the registry came from and which sites have
// a usable root. Previous label values are cleared.
func (m *ServerMetrics) SetSiteConfig(source string, loadedAt time.Time, rootUp map[string]bool) {
	m.configSource.Reset()
	m.configSource.WithLabelValues(source).Set(1)
	m.configLoadedTs.Set(float64(loadedAt.Unix()))
	m.sitesConfigured.Set(float64(len(rootUp)))

	m.siteRootUp.Reset()
	names := make([]string, 0, len(rootUp))
	for n := range rootUp {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		v := 0.0
		if rootUp[n] {
			v = 1
		}
		m.siteRootUp.WithLabelValues(n).Set(v)
	}
}
