package sitefs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNewRegistry_ResolvesRoots(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(map[string]string{
		"a": dir + "/sub/../",
		"b": dir,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s, err := reg.Lookup("a")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if s.Root != filepath.Clean(dir) {
		t.Fatalf("Root = %q, want %q", s.Root, filepath.Clean(dir))
	}
	if s.Name != "a" {
		t.Fatalf("Name = %q", s.Name)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len = %d", reg.Len())
	}
}

func TestNewRegistry_RelativeRootIsAbsolute(t *testing.T) {
	reg, err := NewRegistry(map[string]string{"rel": "some/dir"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s, _ := reg.Lookup("rel")
	if !filepath.IsAbs(s.Root) {
		t.Fatalf("Root not absolute: %q", s.Root)
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		roots map[string]string
		want  string
	}{
		{"empty name", map[string]string{"": "/tmp"}, "empty name"},
		{"slash in name", map[string]string{"a/b": "/tmp"}, "must not contain"},
		{"empty root", map[string]string{"a": ""}, "root path is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.roots)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len = %d", reg.Len())
	}
	_, err = reg.Lookup("any")
	wantKind(t, err, ErrSiteNotFound, "Unknown site any")
}

func TestRegistry_Lookup(t *testing.T) {
	reg, _ := NewRegistry(map[string]string{"docs": t.TempDir()})

	_, err := reg.Lookup("")
	wantKind(t, err, ErrMissingParameter, "Missing parameters: path / site")

	_, err = reg.Lookup("Docs")
	wantKind(t, err, ErrSiteNotFound, "Unknown site Docs")
}

func TestRegistry_Names(t *testing.T) {
	reg, _ := NewRegistry(map[string]string{"zeta": "/z", "alpha": "/a", "mid": "/m"})
	want := []string{"alpha", "mid", "zeta"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func TestRegistry_Verify(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	reg, _ := NewRegistry(map[string]string{
		"ok":      dir,
		"missing": filepath.Join(dir, "nope"),
		"file":    file,
	})

	err := reg.Verify(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{`"missing"`, `"file"`, "not a directory"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
	if strings.Contains(msg, `"ok"`) {
		t.Errorf("healthy site reported: %q", msg)
	}

	status := reg.RootStatus()
	if len(status) != 3 || !status["ok"] || status["missing"] || status["file"] {
		t.Errorf("RootStatus = %v", status)
	}
}

func TestRegistry_VerifyAllHealthy(t *testing.T) {
	reg, _ := NewRegistry(map[string]string{"a": t.TempDir(), "b": t.TempDir()})
	if err := reg.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
