// Package prof starts continuous profiling with Pyroscope.
package prof

import (
	"context"
	"net/url"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

type Options struct {
	Enabled           bool
	AppName           string
	ServerAddress     string
	BasicAuthUser     string
	BasicAuthPassword string
	TenantID          string
	Tags              map[string]string

	ProfileMutexFraction int
	BlockProfileRate     int

	// OnActive reports whether the profiler is running, e.g. to a gauge.
	OnActive func(bool)
}

// profileTypes covers CPU, heap and goroutines plus lock contention, which
// matters for a server that spends most of its time in file I/O.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

func validate(opts Options) error {
	if opts.ServerAddress == "" {
		return xerrors.New("pyroscope server address is empty")
	}
	u, err := url.Parse(opts.ServerAddress)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return xerrors.Newf("invalid pyroscope server address (%q)", opts.ServerAddress)
	}
	if opts.AppName == "" {
		return xerrors.New("pyroscope app name is empty")
	}
	return nil
}

// Start begins profiling and returns a stop func. The stop func is always
// non-nil, even on error, and is safe to call more than once.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	active := func(v bool) {
		if opts.OnActive != nil {
			opts.OnActive(v)
		}
	}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		active(false)
		return func() {}, nil
	}
	if err := validate(opts); err != nil {
		L.Error(ctx, err, "pyroscope options")
		active(false)
		return func() {}, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   opts.AppName,
		ServerAddress:     opts.ServerAddress,
		BasicAuthUser:     opts.BasicAuthUser,
		BasicAuthPassword: opts.BasicAuthPassword,
		TenantID:          opts.TenantID,
		Tags:              opts.Tags,
		ProfileTypes:      profileTypes,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		active(false)
		return func() {}, xerrors.Wrap(err, "start pyroscope")
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)
	active(true)

	stopped := false
	return func() {
		if stopped {
			return
		}
		stopped = true
		profiler.Stop()
		active(false)
		L.Info(context.Background(), "pyroscope stopped", "app_name", opts.AppName)
	}, nil
}
