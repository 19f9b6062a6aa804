package sitefs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(b)
}

func forEachMode(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, atomic := range []bool{true, false} {
		name := "in-place"
		if atomic {
			name = "atomic"
		}
		t.Run(name, func(t *testing.T) { fn(t, newFixture(t, atomic)) })
	}
}

func TestWrite_CreatesParents(t *testing.T) {
	forEachMode(t, func(t *testing.T, f *fixture) {
		n, err := f.gw.Write(context.Background(), "docs", "/x/y/z.txt", strings.NewReader("payload"))
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != 7 {
			t.Fatalf("n = %d", n)
		}
		if got := readFile(t, filepath.Join(f.root, "x", "y", "z.txt")); got != "payload" {
			t.Fatalf("content = %q", got)
		}
		if got := f.rec.bytes["write/docs"]; got != 7 {
			t.Fatalf("write bytes = %d", got)
		}
	})
}

func TestWrite_Overwrites(t *testing.T) {
	forEachMode(t, func(t *testing.T, f *fixture) {
		p := f.mkfile(t, "a.txt", "a much longer original body")
		if _, err := f.gw.Write(context.Background(), "docs", "a.txt", strings.NewReader("short")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if got := readFile(t, p); got != "short" {
			t.Fatalf("content = %q", got)
		}
	})
}

func TestWrite_EmptyBody(t *testing.T) {
	forEachMode(t, func(t *testing.T, f *fixture) {
		n, err := f.gw.Write(context.Background(), "docs", "empty", strings.NewReader(""))
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != 0 {
			t.Fatalf("n = %d", n)
		}
		st, err := os.Stat(filepath.Join(f.root, "empty"))
		if err != nil || st.Size() != 0 {
			t.Fatalf("stat = %v, %v", st, err)
		}
	})
}

func TestWrite_FileMode(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.gw.Write(context.Background(), "docs", "m", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(filepath.Join(f.root, "m"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o644 {
		t.Fatalf("perm = %o", st.Mode().Perm())
	}
}

func TestWrite_Errors(t *testing.T) {
	forEachMode(t, func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		f.mkfile(t, "dir/keep.txt", "kept")
		f.mkfile(t, "file", "x")
		ctx := context.Background()

		_, err := f.gw.Write(ctx, "docs", "dir", strings.NewReader("x"))
		wantKind(t, err, ErrBadRequest, "target is not a file")
		if st, serr := os.Stat(filepath.Join(f.root, "dir")); serr != nil || !st.IsDir() {
			t.Fatalf("dir replaced: %v", serr)
		}
		if b, rerr := os.ReadFile(filepath.Join(f.root, "dir", "keep.txt")); rerr != nil || string(b) != "kept" {
			t.Fatalf("dir contents changed: %q, %v", b, rerr)
		}

		_, err = f.gw.Write(ctx, "docs", "/", strings.NewReader("x"))
		wantKind(t, err, ErrBadRequest, "target is not a file")

		_, err = f.gw.Write(ctx, "docs", "file/child", strings.NewReader("x"))
		wantKind(t, err, ErrBadRequest, "parent is not a directory")

		_, err = f.gw.Write(ctx, "docs", "../escape", strings.NewReader("x"))
		wantKind(t, err, ErrBadRequest, "disallowed path")
		if _, serr := os.Stat(filepath.Join(filepath.Dir(f.root), "escape")); serr == nil {
			t.Fatal("file written outside root")
		}

		_, err = f.gw.Write(ctx, "nope", "a", strings.NewReader("x"))
		wantKind(t, err, ErrSiteNotFound, "")
	})
}

var errBody = errors.New("client went away")

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errBody
}

func TestWrite_BodyErrorIsBadRequest(t *testing.T) {
	forEachMode(t, func(t *testing.T, f *fixture) {
		_, err := f.gw.Write(context.Background(), "docs", "up.bin", &failingReader{})
		wantKind(t, err, ErrBadRequest, "could not read request body")
		if !errors.Is(err, errBody) {
			t.Fatalf("cause lost: %v", err)
		}
	})
}

func TestWrite_AtomicLeavesOriginalOnFailure(t *testing.T) {
	f := newFixture(t, true)
	p := f.mkfile(t, "keep.txt", "original")

	_, err := f.gw.Write(context.Background(), "docs", "keep.txt", &failingReader{})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := readFile(t, p); got != "original" {
		t.Fatalf("content = %q", got)
	}

	entries, err := os.ReadDir(f.root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".filegw-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWrite_CanceledContext(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.gw.Write(ctx, "docs", "c.txt", strings.NewReader("x"))
	wantKind(t, err, ErrBadRequest, "could not read request body")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cause = %v", err)
	}
}

func TestWrite_ThenRead(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	body := strings.Repeat("0123456789", 100_000)

	if _, err := f.gw.Write(ctx, "docs", "big/blob", strings.NewReader(body)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	fh, err := f.gw.Open(ctx, "docs", "big/blob")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fh.Close()
	got, _ := io.ReadAll(fh)
	if string(got) != body {
		t.Fatalf("round trip mismatch: %d bytes", len(got))
	}
}
