// Package workspace confines file operations to a single user-chosen root
// directory. Every path is resolved to an absolute, symlink-free form and
// rejected when it does not stay inside the root.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard enforces the boundary of one root directory.
type Guard struct {
	root string // absolute, symlink-evaluated
}

// NewGuard creates a guard for root, which must be an existing directory.
func NewGuard(root string) (*Guard, error) {
	if root == "" {
		return nil, resourceErr("setWorkingDirectory", "", ErrEmptyPath)
	}

	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, &ResourceError{Op: "setWorkingDirectory", Path: root, Err: ErrNotFound, Detail: err.Error()}
	}

	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, resourceErr("setWorkingDirectory", root, ErrNotFound)
	}

	info, err := os.Stat(evalPath)
	if err != nil {
		return nil, resourceErr("setWorkingDirectory", root, ErrNotFound)
	}
	if !info.IsDir() {
		return nil, resourceErr("setWorkingDirectory", root, ErrNotADirectory)
	}

	return &Guard{root: evalPath}, nil
}

// Root returns the absolute path of the root directory.
func (g *Guard) Root() string {
	return g.root
}

// ResolvePath joins path onto the root (absolute paths are taken as is),
// evaluates symlinks and rejects any result that is not the root or one of
// its descendants.
func (g *Guard) ResolvePath(path string) (string, error) {
	cleanPath := filepath.Clean(filepath.FromSlash(path))

	var absPath string
	if filepath.IsAbs(cleanPath) {
		absPath = cleanPath
	} else {
		absPath = filepath.Join(g.root, cleanPath)
	}

	evalPath := resolveSymlinks(absPath)
	if !g.IsWithin(evalPath) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return evalPath, nil
}

// IsWithin reports whether an absolute, evaluated path is the root or inside it.
func (g *Guard) IsWithin(absPath string) bool {
	if absPath == g.root {
		return true
	}
	prefix := g.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(absPath, prefix)
}

// MakeRelative converts an absolute path inside the root to a slash-separated
// path relative to it. The root itself is ".".
func (g *Guard) MakeRelative(absPath string) (string, error) {
	if !g.IsWithin(absPath) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, absPath)
	}

	relPath, err := filepath.Rel(g.root, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}
	return filepath.ToSlash(relPath), nil
}

// resolveSymlinks evaluates symlinks in path. For paths that do not exist yet
// the deepest existing ancestor is evaluated and the missing components are
// appended, so a symlinked parent pointing outside the root is still caught.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path

	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath {
			return filepath.Clean(path)
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}
