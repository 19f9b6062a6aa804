package sitefs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// EntryKind classifies a filesystem entry after following symlinks.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
	// KindOther covers sockets, devices, fifos, and symlinks whose target is
	// missing or loops.
	KindOther EntryKind = "other"
)

func kindOf(m fs.FileMode) EntryKind {
	switch {
	case m.IsRegular():
		return KindFile
	case m.IsDir():
		return KindDirectory
	default:
		return KindOther
	}
}

// Status is the result of one probe. It is never cached between requests.
type Status struct {
	Exists  bool
	IsFile  bool
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Kind maps s onto the listing classification.
func (s Status) Kind() EntryKind {
	switch {
	case s.IsFile:
		return KindFile
	case s.IsDir:
		return KindDirectory
	default:
		return KindOther
	}
}

func statusOf(fi fs.FileInfo) Status {
	return Status{
		Exists:  true,
		IsFile:  fi.Mode().IsRegular(),
		IsDir:   fi.IsDir(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}
}

// Stat follows symlinks. A missing path is a zero Status and a nil error;
// every other failure is returned as is.
func Stat(path string) (Status, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Status{}, nil
		}
		return Status{}, err
	}
	return statusOf(fi), nil
}

// Probe stats the target. Absence is ErrNotFound; any other failure is
// logged with the absolute path and returned as ErrInternal.
func (g *Gateway) Probe(ctx context.Context, t Target) (Status, error) {
	st, err := Stat(t.Path)
	if err != nil {
		g.loggerFor(ctx).Error(ctx, xerrors.WithStack(err), "could not stat path", "path", t.Path)
		return Status{}, internal("could not fetch information about given path", err)
	}
	if !st.Exists {
		return Status{}, notFound(t.Rel)
	}
	return st, nil
}
