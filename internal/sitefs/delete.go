package sitefs

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// Delete removes a file, or a directory with everything under it. Deleting
// a path that does not exist succeeds. The site root can never be deleted.
func (g *Gateway) Delete(ctx context.Context, site, rel string) (err error) {
	ctx, done := g.begin(ctx, OpDelete, site)
	defer func() { done(err) }()

	t, err := g.Target(site, rel)
	if err != nil {
		return err
	}
	if t.IsRoot() {
		return badRequest("you can not delete root")
	}

	st, err := g.Probe(ctx, t)
	if errors.Is(err, ErrNotFound) {
		// a dangling symlink stats as missing but still occupies the name
		if lfi, lerr := os.Lstat(t.Path); lerr == nil && lfi.Mode()&fs.ModeSymlink != 0 {
			return badRequest("target is not a file or folder")
		}
		return nil
	}
	if err != nil {
		return err
	}
	if st.Kind() == KindOther {
		return badRequest("target is not a file or folder")
	}

	// RemoveAll does not follow a symlink at t.Path; it removes the link.
	if err := os.RemoveAll(t.Path); err != nil {
		g.loggerFor(ctx).Error(ctx, xerrors.WithStack(err), "could not delete path", "path", t.Path)
		return internal("could not delete given path", err)
	}
	return nil
}
