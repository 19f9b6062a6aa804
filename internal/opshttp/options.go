package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/health"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/version"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// Build is served as JSON on /-/version when set.
	Build *version.Info

	// AllowPublic disables the private-network check. Only for tests and
	// deployments that already firewall the admin port.
	AllowPublic bool

	UseRecoverMW bool
	OnPanic      func() // called after a recovered panic, e.g. to bump a counter
}
