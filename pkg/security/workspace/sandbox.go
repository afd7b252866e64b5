package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
)

// DefaultMaxFileSize is the read ceiling when none is configured.
const DefaultMaxFileSize int64 = 1 << 20

// EntryType classifies a directory entry.
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
	EntryOther     EntryType = "other"
)

// Entry is one immediate child of a listed directory.
type Entry struct {
	Name         string    `json:"name"`
	Type         EntryType `json:"type"`
	RelativePath string    `json:"relativePath"`
	Size         int64     `json:"size,omitempty"`
}

// Sandbox is the process-wide working directory. It starts without a root;
// every operation except SetRoot fails with ErrNoWorkingDirectory until one
// is chosen. It is safe for concurrent use.
type Sandbox struct {
	logger       *zap.Logger
	guard        *Guard
	deny         []glob.Glob
	denyPatterns []string
	maxFileSize  int64
	mu           sync.RWMutex
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithMaxFileSize sets the read ceiling in bytes.
func WithMaxFileSize(n int64) Option {
	return func(s *Sandbox) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithDenyPatterns protects paths matching any of the glob patterns, matched
// against the slash-separated path relative to the root.
func WithDenyPatterns(patterns ...string) Option {
	return func(s *Sandbox) {
		s.denyPatterns = append(s.denyPatterns, patterns...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// NewSandbox creates a sandbox with no root selected.
func NewSandbox(opts ...Option) (*Sandbox, error) {
	s := &Sandbox{
		logger:      zap.NewNop(),
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, pattern := range s.denyPatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
		}
		s.deny = append(s.deny, g)
	}
	return s, nil
}

// SetRoot selects the working directory. path must be an existing directory.
// The previous root, if any, stays in effect on failure.
func (s *Sandbox) SetRoot(path string) (string, error) {
	guard, err := NewGuard(path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.guard = guard
	s.mu.Unlock()

	s.logger.Info("working directory set", zap.String("root", guard.Root()))
	return guard.Root(), nil
}

// Root returns the current working directory and whether one is set.
func (s *Sandbox) Root() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.guard == nil {
		return "", false
	}
	return s.guard.Root(), true
}

// MaxFileSize returns the read ceiling in bytes.
func (s *Sandbox) MaxFileSize() int64 {
	return s.maxFileSize
}

func (s *Sandbox) currentGuard(op string) (*Guard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.guard == nil {
		return nil, resourceErr(op, "", ErrNoWorkingDirectory)
	}
	return s.guard, nil
}

// Resolve maps a path relative to the root onto an absolute path, rejecting
// anything that escapes the root or matches a deny pattern.
func (s *Sandbox) Resolve(relativePath string) (string, error) {
	_, abs, err := s.resolve("resolve", relativePath)
	return abs, err
}

func (s *Sandbox) resolve(op, relativePath string) (*Guard, string, error) {
	guard, err := s.currentGuard(op)
	if err != nil {
		return nil, "", err
	}

	abs, err := guard.ResolvePath(relativePath)
	if err != nil {
		s.logger.Warn("rejected path outside working directory",
			zap.String("op", op), zap.String("path", relativePath))
		return nil, "", resourceErr(op, relativePath, ErrOutsideRoot)
	}

	if rel, err := guard.MakeRelative(abs); err == nil && s.denied(rel) {
		return nil, "", resourceErr(op, relativePath, ErrDenied)
	}
	return guard, abs, nil
}

func (s *Sandbox) denied(rel string) bool {
	if rel == "." {
		return false
	}
	for _, g := range s.deny {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// List enumerates the immediate entries of a directory. An empty path lists the root.
func (s *Sandbox) List(relativePath string) ([]Entry, error) {
	if relativePath == "" {
		relativePath = "."
	}
	guard, abs, err := s.resolve("listDirectory", relativePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, resourceErr("listDirectory", relativePath, ErrNotFound)
	}
	if !info.IsDir() {
		return nil, resourceErr("listDirectory", relativePath, ErrNotADirectory)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		rel, err := guard.MakeRelative(filepath.Join(abs, d.Name()))
		if err != nil || s.denied(rel) {
			continue
		}

		entry := Entry{Name: d.Name(), RelativePath: rel, Type: entryType(d.Type())}
		if entry.Type == EntryFile {
			if fi, err := d.Info(); err == nil {
				entry.Size = fi.Size()
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == EntryDirectory
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func entryType(mode fs.FileMode) EntryType {
	switch {
	case mode.IsDir():
		return EntryDirectory
	case mode.IsRegular():
		return EntryFile
	default:
		return EntryOther
	}
}

// Read returns the full content of a regular file of at most MaxFileSize bytes.
// Invalid UTF-8 sequences are replaced with U+FFFD.
func (s *Sandbox) Read(relativePath string) (string, error) {
	if relativePath == "" {
		return "", resourceErr("readFile", "", ErrEmptyPath)
	}
	_, abs, err := s.resolve("readFile", relativePath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", resourceErr("readFile", relativePath, ErrNotFound)
	}
	if !info.Mode().IsRegular() {
		return "", resourceErr("readFile", relativePath, ErrNotAFile)
	}
	if info.Size() > s.maxFileSize {
		return "", s.tooLarge(relativePath, info.Size())
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// The file may have grown since Stat.
	data, err := io.ReadAll(io.LimitReader(f, s.maxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > s.maxFileSize {
		return "", s.tooLarge(relativePath, int64(len(data)))
	}

	return strings.ToValidUTF8(string(data), "�"), nil
}

func (s *Sandbox) tooLarge(path string, size int64) error {
	return &ResourceError{
		Op:     "readFile",
		Path:   path,
		Err:    ErrTooLarge,
		Detail: fmt.Sprintf("%d bytes exceeds the %d byte limit", size, s.maxFileSize),
	}
}

// Write replaces the content of a file, creating parent directories as
// needed. The new content becomes visible atomically through a rename.
func (s *Sandbox) Write(relativePath, content string) error {
	if relativePath == "" {
		return resourceErr("writeFile", "", ErrEmptyPath)
	}
	guard, abs, err := s.resolve("writeFile", relativePath)
	if err != nil {
		return err
	}
	if abs == guard.Root() {
		return resourceErr("writeFile", relativePath, ErrNotAFile)
	}
	if info, err := os.Stat(abs); err == nil && !info.Mode().IsRegular() {
		return resourceErr("writeFile", relativePath, ErrNotAFile)
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".scout-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace file: %w", err)
	}

	s.logger.Debug("file written", zap.String("path", relativePath), zap.Int("bytes", len(content)))
	return nil
}

// Mkdir creates a directory and any missing parents. Existing directories are left alone.
func (s *Sandbox) Mkdir(relativePath string) error {
	if relativePath == "" {
		return resourceErr("createDirectory", "", ErrEmptyPath)
	}
	_, abs, err := s.resolve("createDirectory", relativePath)
	if err != nil {
		return err
	}

	if info, err := os.Stat(abs); err == nil {
		if !info.IsDir() {
			return resourceErr("createDirectory", relativePath, ErrNotADirectory)
		}
		return nil
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
