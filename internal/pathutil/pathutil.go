package pathutil

import (
	"path/filepath"
	"strings"
)

// HasTraversal reports whether p, taken as a path below some root, contains the
// byte sequence "/.." once a leading slash is assumed. Any ".." segment is
// caught, and so is "a/..b".
func HasTraversal(p string) bool {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.Contains(p, "/..")
}

// HasUnsafeBytes reports NUL bytes and backslashes. Backslash is a separator
// on windows, so "..\\" would walk out of the root there.
func HasUnsafeBytes(p string) bool {
	return strings.ContainsAny(p, "\x00\\")
}

// Within reports whether target is root itself or lexically below it.
// Both paths are cleaned first; no filesystem access.
func Within(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
