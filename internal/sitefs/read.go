package sitefs

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// File is an open regular file inside a site. Status describes the opened
// handle, not the earlier probe. The caller must Close it.
type File struct {
	*os.File
	Target Target
	Status Status
}

// Open returns a handle for streaming a regular file's bytes. Content is
// never buffered here.
func (g *Gateway) Open(ctx context.Context, site, rel string) (f *File, err error) {
	ctx, done := g.begin(ctx, OpRead, site)
	defer func() { done(err) }()

	t, err := g.Target(site, rel)
	if err != nil {
		return nil, err
	}
	st, err := g.Probe(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.IsFile {
		return nil, badRequest("is not a file")
	}

	fh, err := os.Open(t.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(t.Rel)
		}
		g.loggerFor(ctx).Error(ctx, xerrors.WithStack(err), "could not open file", "path", t.Path)
		return nil, internal("could not read file", err)
	}

	// the path may have been replaced since the probe
	fi, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		g.loggerFor(ctx).Error(ctx, xerrors.WithStack(err), "could not stat open file", "path", t.Path)
		return nil, internal("could not read file", err)
	}
	if !fi.Mode().IsRegular() {
		_ = fh.Close()
		return nil, badRequest("is not a file")
	}

	g.rec.AddFileBytes(OpRead, t.Site.Name, fi.Size())
	return &File{File: fh, Target: t, Status: statusOf(fi)}, nil
}
