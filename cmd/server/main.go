package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/filehttp"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/health"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/prof"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/siteconfig"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/sitefs"
	v "github.com/keithlinneman/linnemanlabs-filegw/internal/version"
)

const (
	appName   = "linnemanlabs-filegw"
	component = "server"
)

// mutationCost is how many rate limit tokens a PUT or DELETE spends.
const mutationCost = 5

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%s)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion, vi.Dirty())
		return 0
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	// Setup logging (levels already validated)
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = slog.LevelError
	}
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application", append(vi.LogFields(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"api_prefix", conf.APIPrefix,
		"atomic_writes", conf.AtomicWrites,
		"max_upload_bytes", conf.MaxUploadBytes,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
		"sites_file", conf.SitesFile,
		"sites_ssm_param", conf.SitesSSMParam,
		"sites_s3_uri", conf.SitesS3URI,
	)...)

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, component, &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": component,
			"version":   vi.Version,
			"commit":    vi.ShortCommit(),
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed, continuing without profiling", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, continuing without tracing")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Site registry: loaded once, immutable afterwards
	reg, err := loadRegistry(ctx, L, conf, m)
	if err != nil {
		L.Error(ctx, err, "failed to load site registry")
		return 1
	}

	gw, err := sitefs.New(sitefs.Options{
		Registry:        reg,
		Logger:          L,
		Recorder:        m,
		AtomicWrites:    conf.AtomicWrites,
		ListConcurrency: conf.ListConcurrency,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create file gateway")
		return 1
	}
	api, err := filehttp.New(filehttp.Options{
		Gateway:        gw,
		Logger:         L,
		Prefix:         conf.APIPrefix,
		MaxUploadBytes: conf.MaxUploadBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create file api")
		return 1
	}

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())

	var rateLimitMW func(next http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithCost(ratelimit.MutationCost(mutationCost)),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
			// only the first denial per client is logged until it is evicted
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "client.address", ip)
			}),
			ratelimit.WithOnCapacity(func(tracked int) {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new clients until some are evicted", "tracked", tracked)
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Routes:       api.RegisterRoutes,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		return 1
	}
	defer func() { _ = httpStop(context.Background()) }()

	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Build:        &vi,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return 1
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so load balancers stop sending new requests
	gate.Set("draining")
	drain(bg, L, time.Duration(conf.DrainSeconds)*time.Second)

	// downloads may be long; give them the write timeout to finish
	shutdownCtx, cancel := context.WithTimeout(bg, shutdownBudget(conf.WriteTimeout))
	defer cancel()

	if err := httpStop(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	L.Info(bg, "shutdown complete")
	return 0
}

// loadRegistry reads the site map from the configured source and builds the
// registry. Roots that are not directories are logged, not fatal: the
// gateway reports them per request.
func loadRegistry(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (*sitefs.Registry, error) {
	loader, err := siteconfig.NewLoader(ctx, siteconfig.Options{
		Logger:   L,
		File:     conf.SitesFile,
		SSMParam: conf.SitesSSMParam,
		S3URI:    conf.SitesS3URI,
	})
	if err != nil {
		return nil, err
	}
	sites, source, err := loader.Load(ctx)
	if err != nil {
		if errors.Is(err, siteconfig.ErrNoConfig) {
			L.Warn(ctx, "no site config found, every request will fail with unknown site")
			source = "none"
		} else {
			return nil, err
		}
	}

	reg, err := sitefs.NewRegistry(sites)
	if err != nil {
		return nil, err
	}
	if err := reg.Verify(ctx); err != nil {
		L.Warn(ctx, "some site roots are not accessible directories", "problems", err.Error())
	}
	m.SetSiteConfig(source, time.Now(), reg.RootStatus())
	if reg.Len() == 0 && source != "none" {
		L.Warn(ctx, "site config lists no sites, every request will fail with unknown site", "source", source)
	}
	L.Info(ctx, "site registry loaded", "source", source, "sites", reg.Names())
	return reg, nil
}

// drain waits for d, or until a second signal arrives.
func drain(ctx context.Context, L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	L.Info(ctx, "draining before shutdown", "seconds", d.Seconds())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain period complete")
	case <-forceCh:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}

// shutdownBudget bounds graceful shutdown between 10s and 2m.
func shutdownBudget(writeTimeout time.Duration) time.Duration {
	switch {
	case writeTimeout < 10*time.Second:
		return 10 * time.Second
	case writeTimeout > 2*time.Minute:
		return 2 * time.Minute
	}
	return writeTimeout
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return errors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify: close: %w", err)
	}
	return nil
}
