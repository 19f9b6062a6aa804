package sitefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	site := Site{Name: "s", Root: filepath.FromSlash("/srv/site")}
	tests := []struct {
		rel     string
		want    string
		wantRel string
		root    bool
		bad     bool
	}{
		{rel: "", want: "/srv/site", wantRel: "", root: true},
		{rel: "/", want: "/srv/site", wantRel: "", root: true},
		{rel: "///", want: "/srv/site", wantRel: "", root: true},
		{rel: "a.txt", want: "/srv/site/a.txt", wantRel: "a.txt"},
		{rel: "/a/b.txt", want: "/srv/site/a/b.txt", wantRel: "a/b.txt"},
		{rel: "//a//b/", want: "/srv/site/a/b", wantRel: "a//b/"},
		{rel: "a/./b", want: "/srv/site/a/b", wantRel: "a/./b"},
		{rel: ".hidden", want: "/srv/site/.hidden", wantRel: ".hidden"},
		{rel: "a/b..c", want: "/srv/site/a/b..c", wantRel: "a/b..c"},

		{rel: "..", bad: true},
		{rel: "/..", bad: true},
		{rel: "../etc/passwd", bad: true},
		{rel: "a/../b", bad: true},
		{rel: "a/..", bad: true},
		{rel: "a/..b", bad: true},
		{rel: "...", bad: true},
		{rel: "a\\..\\b", bad: true},
		{rel: "a\x00b", bad: true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := Resolve(site, tt.rel)
			if tt.bad {
				wantKind(t, err, ErrBadRequest, "disallowed path")
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.rel, err)
			}
			if got.Path != filepath.FromSlash(tt.want) {
				t.Errorf("Path = %q, want %q", got.Path, tt.want)
			}
			if got.Rel != tt.wantRel {
				t.Errorf("Rel = %q, want %q", got.Rel, tt.wantRel)
			}
			if got.IsRoot() != tt.root {
				t.Errorf("IsRoot = %v, want %v", got.IsRoot(), tt.root)
			}
			if got.Site != site {
				t.Errorf("Site = %+v", got.Site)
			}
		})
	}
}

func FuzzResolve_StaysInsideRoot(f *testing.F) {
	for _, seed := range []string{"", "a", "../x", "a/../../b", "/./.", "a\\b", "....//"} {
		f.Add(seed)
	}
	root := filepath.FromSlash("/srv/site")
	f.Fuzz(func(t *testing.T, rel string) {
		got, err := Resolve(Site{Name: "s", Root: root}, rel)
		if err != nil {
			return
		}
		r, rerr := filepath.Rel(root, got.Path)
		if rerr != nil || r == ".." || (len(r) > 2 && r[:3] == ".."+string(filepath.Separator)) {
			t.Fatalf("Resolve(%q) escaped root: %q", rel, got.Path)
		}
	})
}

func TestResolve_RejectsWithoutTouchingDisk(t *testing.T) {
	// the root does not exist, so any filesystem access would surface an error
	site := Site{Name: "s", Root: filepath.Join(t.TempDir(), "absent")}

	for _, rel := range []string{"../x", "a/../../x", "a\\..\\x"} {
		_, err := Resolve(site, rel)
		wantKind(t, err, ErrBadRequest, "disallowed path")
	}
	got, err := Resolve(site, "deep/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Path != filepath.Join(site.Root, "deep", "file.txt") {
		t.Fatalf("Path = %q", got.Path)
	}
	if _, err := os.Stat(site.Root); !os.IsNotExist(err) {
		t.Fatalf("root created as a side effect: %v", err)
	}
}
