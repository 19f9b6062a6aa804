package sitefs

import (
	"path/filepath"
	"strings"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/pathutil"
)

// Target is a request path resolved against a site. Path is always inside
// Site.Root (or equal to it).
type Target struct {
	Site Site
	// Rel is the caller's relative path with leading slashes stripped. It is
	// the only form of the path that appears in caller-facing messages.
	Rel  string
	Path string
}

// IsRoot reports whether the target is the site root itself.
func (t Target) IsRoot() bool { return t.Path == t.Site.Root }

// Resolve validates rel and joins it onto the site root. The traversal check
// runs on the raw text before any normalization, and the joined result is
// checked again for containment. No filesystem access happens here.
func Resolve(site Site, rel string) (Target, error) {
	rel = strings.TrimLeft(rel, "/")
	if pathutil.HasTraversal(rel) || pathutil.HasUnsafeBytes(rel) {
		return Target{}, badRequest("disallowed path")
	}

	p := filepath.Join(site.Root, filepath.FromSlash(rel))
	if !pathutil.Within(site.Root, p) {
		return Target{}, badRequest("disallowed path")
	}
	return Target{Site: site, Rel: rel, Path: p}, nil
}
