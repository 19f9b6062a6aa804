package sitefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type opRecord struct {
	op, site, outcome string
}

type fakeRecorder struct {
	mu    sync.Mutex
	ops   []opRecord
	bytes map[string]int64
}

func (r *fakeRecorder) ObserveFileOp(op, site, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, opRecord{op, site, outcome})
}

func (r *fakeRecorder) AddFileBytes(op, site string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bytes == nil {
		r.bytes = map[string]int64{}
	}
	r.bytes[op+"/"+site] += n
}

func (r *fakeRecorder) last() opRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) == 0 {
		return opRecord{}
	}
	return r.ops[len(r.ops)-1]
}

type fixture struct {
	gw   *Gateway
	root string
	rec  *fakeRecorder
}

func newFixture(t *testing.T, atomic bool) *fixture {
	t.Helper()
	root := t.TempDir()
	reg, err := NewRegistry(map[string]string{"docs": root})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	rec := &fakeRecorder{}
	gw, err := New(Options{Registry: reg, Recorder: rec, AtomicWrites: atomic})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{gw: gw, root: root, rec: rec}
}

func (f *fixture) mkfile(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func (f *fixture) mkdir(t *testing.T, rel string) string {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return p
}

func wantKind(t *testing.T, err, kind error, reason string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %T %v", kind, err, err)
	}
	if reason != "" && Reason(err) != reason {
		t.Fatalf("reason = %q, want %q", Reason(err), reason)
	}
}

func TestNew_RequiresRegistry(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without registry")
	}
}

func TestNew_Defaults(t *testing.T) {
	reg, _ := NewRegistry(map[string]string{"a": t.TempDir()})
	gw, err := New(Options{Registry: reg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if gw.listConc != defaultListConcurrency {
		t.Fatalf("listConc = %d", gw.listConc)
	}
	if gw.dirPerm != 0o755 || gw.filePerm != 0o644 {
		t.Fatalf("perms = %o %o", gw.dirPerm, gw.filePerm)
	}
	if gw.Registry() != reg {
		t.Fatal("Registry() mismatch")
	}
}

func TestGateway_Target(t *testing.T) {
	f := newFixture(t, true)

	tg, err := f.gw.Target("docs", "/a/b.txt")
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if tg.Path != filepath.Join(f.root, "a", "b.txt") {
		t.Fatalf("Path = %q", tg.Path)
	}

	_, err = f.gw.Target("", "a")
	wantKind(t, err, ErrMissingParameter, "Missing parameters: path / site")

	_, err = f.gw.Target("nope", "a")
	wantKind(t, err, ErrSiteNotFound, "Unknown site nope")
}

func TestGateway_RecordsOutcome(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, _ = f.gw.List(ctx, "docs", "")
	if got := f.rec.last(); got != (opRecord{OpList, "docs", "ok"}) {
		t.Fatalf("record = %+v", got)
	}

	_, _ = f.gw.List(ctx, "docs", "missing")
	if got := f.rec.last(); got.outcome != "not_found" {
		t.Fatalf("outcome = %q", got.outcome)
	}

	_, _ = f.gw.List(ctx, "unknown-site", "")
	got := f.rec.last()
	if got.outcome != "bad_request" {
		t.Fatalf("outcome = %q", got.outcome)
	}
	if got.site != "" {
		t.Fatalf("unknown site leaked into label: %q", got.site)
	}
}
