package siteconfig

import (
	"testing"

	"github.com/adrg/xdg"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
)

func nopLogger() log.Logger { return log.Nop() }

// xdgReload re-reads XDG_* after t.Setenv.
func xdgReload(t *testing.T) {
	t.Helper()
	xdg.Reload()
}
