package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/siteconfig"
)

// EnvPrefix is prepended to upper-cased flag names by FillFromEnv.
const EnvPrefix = "FILEGW_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	IncludeErrorLinks bool
	MaxErrorLinks     int

	SitesFile     string
	SitesSSMParam string
	SitesS3URI    string

	APIPrefix       string
	MaxUploadBytes  int64
	AtomicWrites    bool
	ListConcurrency int

	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	TrustedProxyHops int
	DrainSeconds     int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.SitesFile, "sites-file", "", "site config file (JSON or YAML); empty searches config.json, sites.yaml, then XDG config dirs")
	fs.StringVar(&c.SitesSSMParam, "sites-ssm-param", "", "ssm parameter holding the site config document")
	fs.StringVar(&c.SitesS3URI, "sites-s3-uri", "", "s3://bucket/key of the site config document")

	fs.StringVar(&c.APIPrefix, "api-prefix", "/api/file", "path prefix the file API is mounted under")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 0, "maximum PUT body size in bytes (0 = unbounded)")
	fs.BoolVar(&c.AtomicWrites, "atomic-writes", true, "write uploads to a temp file and rename into place")
	fs.IntVar(&c.ListConcurrency, "list-concurrency", 16, "parallel entry probes per directory listing")

	fs.DurationVar(&c.ReadTimeout, "read-timeout", 5*time.Minute, "public listener read timeout (covers upload bodies)")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", 30*time.Minute, "public listener write timeout (covers file downloads)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-client request rate (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 60, "per-client burst size")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "number of trusted reverse proxies in front of the server")
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 5, "seconds to report not-ready before shutting down listeners")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope url and tenant
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Site config source: local file, or one remote document
	if c.SitesSSMParam != "" && c.SitesS3URI != "" {
		errs = append(errs, fmt.Errorf("SITES_SSM_PARAM and SITES_S3_URI are mutually exclusive"))
	}
	if c.SitesS3URI != "" {
		if _, _, err := siteconfig.ParseS3URI(c.SitesS3URI); err != nil {
			errs = append(errs, fmt.Errorf("invalid SITES_S3_URI: %w", err))
		}
	}

	// File API
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("API_PREFIX must start with '/' (got %q)", c.APIPrefix))
	}
	if c.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be >= 0 (got %d)", c.MaxUploadBytes))
	}
	if c.ListConcurrency < 1 {
		errs = append(errs, fmt.Errorf("LIST_CONCURRENCY must be >= 1 (got %d)", c.ListConcurrency))
	}

	// Listener behavior
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("READ_TIMEOUT and WRITE_TIMEOUT must be >= 0 (0 disables)"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting is enabled (got %d)", c.RateLimitBurst))
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..10 (got %d)", c.TrustedProxyHops))
	}
	if c.DrainSeconds < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_SECONDS must be >= 0 (got %d)", c.DrainSeconds))
	}

	return errors.Join(errs...)
}
