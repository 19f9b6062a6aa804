package sitefs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// Write stores body at the target, creating missing parent directories and
// replacing any existing regular file. It returns the number of bytes
// stored. A failure reading body is a bad request and its cause stays
// reachable (for example *http.MaxBytesError).
func (g *Gateway) Write(ctx context.Context, site, rel string, body io.Reader) (n int64, err error) {
	ctx, done := g.begin(ctx, OpWrite, site)
	defer func() { done(err) }()

	t, err := g.Target(site, rel)
	if err != nil {
		return 0, err
	}
	if t.IsRoot() {
		return 0, badRequest("target is not a file")
	}

	if err := os.MkdirAll(filepath.Dir(t.Path), g.dirPerm); err != nil {
		if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EEXIST) {
			return 0, badRequestCause("parent is not a directory", err)
		}
		g.loggerFor(ctx).Error(ctx, xerrors.WithStack(err), "could not create parent directories", "path", t.Path)
		return 0, internal("could not create parent directories", err)
	}

	st, err := Stat(t.Path)
	if err != nil {
		g.loggerFor(ctx).Error(ctx, xerrors.WithStack(err), "could not stat path", "path", t.Path)
		return 0, internal("could not fetch information about given path", err)
	}
	if st.Exists && !st.IsFile {
		return 0, badRequest("target is not a file")
	}

	src := &sourceReader{ctx: ctx, r: body}
	if g.atomic {
		n, err = g.writeAtomic(t.Path, src)
	} else {
		n, err = g.writeInPlace(t.Path, src)
	}
	if err != nil {
		if src.err != nil {
			return n, badRequestCause("could not read request body", src.err)
		}
		g.loggerFor(ctx).Error(ctx, err, "could not write file", "path", t.Path, "bytes", n)
		return n, internal("could not write file", err)
	}

	g.rec.AddFileBytes(OpWrite, t.Site.Name, n)
	return n, nil
}

func (g *Gateway) writeAtomic(path string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".filegw-*.tmp")
	if err != nil {
		return 0, xerrors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, src)
	if err != nil {
		return n, xerrors.Wrap(err, "copy body")
	}
	if err := tmp.Sync(); err != nil {
		return n, xerrors.Wrap(err, "sync temp file")
	}
	if err := tmp.Chmod(g.filePerm); err != nil {
		return n, xerrors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return n, xerrors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, xerrors.Wrap(err, "rename temp file")
	}
	renamed = true
	return n, nil
}

func (g *Gateway) writeInPlace(path string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, g.filePerm)
	if err != nil {
		return 0, xerrors.Wrap(err, "open file")
	}
	n, err := io.Copy(f, src)
	if err != nil {
		_ = f.Close()
		return n, xerrors.Wrap(err, "copy body")
	}
	if err := f.Close(); err != nil {
		return n, xerrors.Wrap(err, "close file")
	}
	return n, nil
}

// sourceReader remembers read-side failures so they can be told apart from
// disk failures after io.Copy returns.
type sourceReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return 0, err
	}
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}
