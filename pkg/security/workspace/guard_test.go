package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewGuard(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tests := []struct {
		wantErr error
		name    string
		root    string
	}{
		{name: "valid existing directory", root: tmpDir},
		{name: "current directory", root: "."},
		{name: "empty directory", root: "", wantErr: ErrEmptyPath},
		{name: "non-existent directory", root: filepath.Join(tmpDir, "missing"), wantErr: ErrNotFound},
		{name: "regular file", root: file, wantErr: ErrNotADirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, err := NewGuard(tt.root)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewGuard() error = %v, want %v", err, tt.wantErr)
				}
				var resErr *ResourceError
				if !errors.As(err, &resErr) {
					t.Errorf("NewGuard() error should be a ResourceError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewGuard() unexpected error = %v", err)
			}
			if guard.Root() == "" || !filepath.IsAbs(guard.Root()) {
				t.Errorf("Root() = %q, want absolute path", guard.Root())
			}
		})
	}
}

func TestGuard_ResolvePath(t *testing.T) {
	guard, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}
	root := guard.Root()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative path", path: "file.txt", want: filepath.Join(root, "file.txt")},
		{name: "nested path", path: "a/b/c.txt", want: filepath.Join(root, "a", "b", "c.txt")},
		{name: "path with dots", path: "./subdir/../file.txt", want: filepath.Join(root, "file.txt")},
		{name: "root itself", path: ".", want: root},
		{name: "empty means root", path: "", want: root},
		{name: "absolute inside root", path: filepath.Join(root, "x.txt"), want: filepath.Join(root, "x.txt")},
		{name: "parent traversal", path: "../outside.txt", wantErr: true},
		{name: "multiple parent traversals", path: "../../outside.txt", wantErr: true},
		{name: "hidden traversal", path: "subdir/../../outside.txt", wantErr: true},
		{name: "absolute outside root", path: "/etc/passwd", wantErr: true},
		{name: "sibling with shared prefix", path: "../" + filepath.Base(root) + "-sibling/file", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.ResolvePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolvePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrOutsideRoot) {
					t.Errorf("ResolvePath(%q) error = %v, want ErrOutsideRoot", tt.path, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGuard_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	guard, err := NewGuard(root)
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}

	for _, path := range []string{"link", "link/secret.txt", "link/new/dir/file.txt"} {
		if _, err := guard.ResolvePath(path); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("ResolvePath(%q) error = %v, want ErrOutsideRoot", path, err)
		}
	}
}

func TestGuard_MakeRelative(t *testing.T) {
	guard, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}

	rel, err := guard.MakeRelative(filepath.Join(guard.Root(), "docs", "a.md"))
	if err != nil {
		t.Fatalf("MakeRelative() error = %v", err)
	}
	if rel != "docs/a.md" {
		t.Errorf("MakeRelative() = %q, want docs/a.md", rel)
	}

	if _, err := guard.MakeRelative(filepath.Dir(guard.Root())); err == nil {
		t.Error("MakeRelative() should reject the parent of the root")
	}
}
