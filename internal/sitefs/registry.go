package sitefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Site is a named root directory.
type Site struct {
	Name string
	Root string
}

// Registry is the immutable site name -> Site mapping built at startup.
// It is safe for concurrent use because nothing mutates it after NewRegistry.
type Registry struct {
	sites map[string]Site
}

// NewRegistry validates roots and resolves each one to an absolute, cleaned
// path. Relative roots are taken relative to the working directory. Whether
// a root exists is not checked here; see Verify.
func NewRegistry(roots map[string]string) (*Registry, error) {
	sites := make(map[string]Site, len(roots))
	var errs []error
	for name, root := range roots {
		switch {
		case name == "":
			errs = append(errs, errors.New("site with empty name"))
			continue
		case strings.Contains(name, "/"):
			errs = append(errs, fmt.Errorf("site %q: name must not contain '/'", name))
			continue
		case root == "":
			errs = append(errs, fmt.Errorf("site %q: root path is empty", name))
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			errs = append(errs, fmt.Errorf("site %q: resolve root %q: %w", name, root, err))
			continue
		}
		sites[name] = Site{Name: name, Root: filepath.Clean(abs)}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Registry{sites: sites}, nil
}

// Lookup returns the named site. An empty name is a missing parameter.
func (r *Registry) Lookup(name string) (Site, error) {
	if name == "" {
		return Site{}, missingParameter("path / site")
	}
	s, ok := r.sites[name]
	if !ok {
		return Site{}, siteNotFound(name)
	}
	return s, nil
}

// Names returns the configured site names in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.sites))
	for name := range r.sites {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of configured sites.
func (r *Registry) Len() int { return len(r.sites) }

// Verify reports every site whose root is missing, unreadable, or not a
// directory. It never fails startup on its own; callers decide.
func (r *Registry) Verify(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.checkRoot(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RootStatus reports, per site, whether its root is an existing directory.
func (r *Registry) RootStatus() map[string]bool {
	out := make(map[string]bool, len(r.sites))
	for name := range r.sites {
		out[name] = r.checkRoot(name) == nil
	}
	return out
}

func (r *Registry) checkRoot(name string) error {
	s := r.sites[name]
	fi, err := os.Stat(s.Root)
	if err != nil {
		return fmt.Errorf("site %q: %w", name, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("site %q: root %s is not a directory", name, s.Root)
	}
	return nil
}
