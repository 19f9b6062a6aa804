// Package version carries build metadata stamped in with -ldflags, falling
// back to what the Go toolchain embeds in the binary.
package version

import (
	"runtime/debug"
	"strconv"
)

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Get merges the stamped variables with debug.ReadBuildInfo. Stamped values
// win except for the Go version, which always comes from the runtime.
func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.fill(bi)
	}
	return out
}

func (i *Info) fill(bi *debug.BuildInfo) {
	if bi.GoVersion != "" {
		i.GoVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" && s.Value != "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
			if i.CommitDate == "" {
				i.CommitDate = s.Value
			}
		case "vcs.modified":
			if b, err := strconv.ParseBool(s.Value); err == nil {
				i.VCSDirty = &b
			}
		}
	}
}

// Dirty renders VCSDirty as "true", "false" or "unknown".
func (i Info) Dirty() string {
	if i.VCSDirty == nil {
		return "unknown"
	}
	return strconv.FormatBool(*i.VCSDirty)
}

// ShortCommit is the first 12 characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 12 {
		return i.Commit[:12]
	}
	return i.Commit
}

// LogFields returns the build metadata as logger key/value pairs.
func (i Info) LogFields() []any {
	return []any{
		"version", i.Version,
		"commit", i.ShortCommit(),
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
		"vcs_dirty", i.Dirty(),
	}
}
