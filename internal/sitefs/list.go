package sitefs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// Entry is one direct child in a directory listing.
type Entry struct {
	Name string    `json:"name"`
	Kind EntryKind `json:"type"`
}

// List returns the direct children of a directory, sorted by name. Each
// child is probed independently, following symlinks. Broken or looping
// symlinks are KindOther. A child that cannot be probed, including one removed
// between the read and the probe, fails the whole listing as InternalError.
func (g *Gateway) List(ctx context.Context, site, rel string) (entries []Entry, err error) {
	ctx, done := g.begin(ctx, OpList, site)
	defer func() { done(err) }()

	t, err := g.Target(site, rel)
	if err != nil {
		return nil, err
	}
	st, err := g.Probe(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.IsDir {
		return nil, badRequest("is not a directory")
	}
	return g.list(ctx, t)
}

func (g *Gateway) list(ctx context.Context, t Target) ([]Entry, error) {
	names, err := readNames(t.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(t.Rel)
		}
		g.loggerFor(ctx).Error(ctx, xerrors.WithStack(err), "could not read directory", "path", t.Path)
		return nil, internal("could not list directory", err)
	}

	out := make([]Entry, len(names))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.listConc)
	for i, name := range names {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			p := filepath.Join(t.Path, name)
			kind, err := classify(p)
			if err != nil {
				return xerrors.Wrapf(err, "probe %s", p)
			}
			out[i] = Entry{Name: name, Kind: kind}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, internal("listing interrupted", ctx.Err())
		}
		g.loggerFor(ctx).Error(ctx, err, "could not probe directory child", "path", t.Path)
		return nil, internal("could not list directory", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func readNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

// classify stats p following symlinks. A dangling symlink is KindOther; a
// child removed since the directory was read is an error like any other.
func classify(p string) (EntryKind, error) {
	fi, err := os.Stat(p)
	if err == nil {
		return kindOf(fi.Mode()), nil
	}
	if lfi, lerr := os.Lstat(p); lerr == nil && lfi.Mode()&fs.ModeSymlink != 0 {
		return KindOther, nil
	}
	return "", err
}
