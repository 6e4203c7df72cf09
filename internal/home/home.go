package home

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultDirName is the per-user directory holding scrivener's config.
	DefaultDirName = ".scrivener"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DefaultOutDir is the default root for book directories.
	DefaultOutDir = "out"

	// LogsDirName is the run-log subdirectory of a book directory.
	LogsDirName = "logs"

	maxSlugLen = 60
)

// ConfigDir returns ~/.scrivener.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// Dir is the output root. Each book lives in its own subdirectory named
// "<ID>" or "<ID>-<title-slug>".
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses DefaultOutDir relative to the working directory.
func New(path string) (*Dir, error) {
	if path == "" {
		path = DefaultOutDir
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	return &Dir{path: abs}, nil
}

// Path returns the root path.
func (d *Dir) Path() string {
	return d.path
}

// Exists returns true if the root exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// EnsureExists creates the root if it doesn't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Locate finds an existing directory for bookID. An exact "<ID>" match wins
// over "<ID>-<slug>" ones; among those the lexically first is used.
func (d *Dir) Locate(bookID string) (string, bool, error) {
	if bookID == "" {
		return "", false, fmt.Errorf("book id is required")
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read output directory: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == bookID {
			return filepath.Join(d.path, name), true, nil
		}
		if strings.HasPrefix(name, bookID+"-") {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", false, nil
	}
	sort.Strings(candidates)
	return filepath.Join(d.path, candidates[0]), true, nil
}

// BookDir returns the directory for bookID, creating "<ID>-<slug>" (or
// "<ID>" for an untitled book) when none exists yet.
func (d *Dir) BookDir(bookID, title string) (string, error) {
	dir, ok, err := d.Locate(bookID)
	if err != nil {
		return "", err
	}
	if !ok {
		name := bookID
		if slug := Slug(title); slug != "" {
			name += "-" + slug
		}
		dir = filepath.Join(d.path, name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create book directory: %w", err)
	}
	return dir, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases a title and joins its alphanumeric runs with dashes.
func Slug(title string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	return s
}

var unsafeFileChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)

// ExportPath returns "<bookDir>/<title>.<ext>", falling back to the directory
// name when the title is empty.
func ExportPath(bookDir, title, ext string) string {
	name := strings.TrimSpace(unsafeFileChars.ReplaceAllString(title, " "))
	if name == "" {
		name = filepath.Base(bookDir)
	}
	return filepath.Join(bookDir, name+"."+strings.TrimPrefix(ext, "."))
}

// LogsDir returns the run-log directory of a book.
func LogsDir(bookDir string) string {
	return filepath.Join(bookDir, LogsDirName)
}

// LogPath returns the run log for a command, e.g. logs/extract.log.
func LogPath(bookDir, command string) string {
	return filepath.Join(LogsDir(bookDir), command+".log")
}
