package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// CorruptError reports a manifest that exists but cannot be trusted. Consumers
// must abort rather than reset state, or prior progress would be lost.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err is (or wraps) a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// Store reads and writes the manifests of one book directory.
// It is single-writer; concurrent runs against the same directory must be
// serialized by the caller.
type Store struct {
	dir string
}

// NewStore returns a store rooted at a book directory.
func NewStore(bookDir string) *Store {
	return &Store{dir: bookDir}
}

// Dir returns the book directory.
func (s *Store) Dir() string {
	return s.dir
}

// ExtractionPath returns the path of metadata.json.
func (s *Store) ExtractionPath() string {
	return filepath.Join(s.dir, ExtractionFileName)
}

// ContentPath returns the path of content.json.
func (s *Store) ContentPath() string {
	return filepath.Join(s.dir, ContentFileName)
}

// PagesDir returns the page artifact directory.
func (s *Store) PagesDir() string {
	return filepath.Join(s.dir, PagesDirName)
}

// Resolve turns a book-relative artifact path into a filesystem path.
func (s *Store) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.dir, filepath.FromSlash(rel))
}

// LoadExtraction reads metadata.json. A missing file yields (nil, nil).
func (s *Store) LoadExtraction() (*Extraction, error) {
	data, err := s.read(s.ExtractionPath())
	if err != nil || data == nil {
		return nil, err
	}

	if err := validate(extractionSchema, data); err != nil {
		return nil, &CorruptError{Path: s.ExtractionPath(), Err: err}
	}

	var ext Extraction
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, &CorruptError{Path: s.ExtractionPath(), Err: err}
	}
	return &ext, nil
}

// SaveExtraction overwrites metadata.json as a single atomic write.
func (s *Store) SaveExtraction(ext *Extraction) error {
	out := *ext
	if out.TOC == nil {
		out.TOC = []TocEntry{}
	}
	if out.Pages == nil {
		out.Pages = []PageArtifact{}
	}
	return s.write(s.ExtractionPath(), &out)
}

// LoadContent reads content.json. A missing file yields an empty manifest.
func (s *Store) LoadContent() ([]ContentChunk, error) {
	data, err := s.read(s.ContentPath())
	if err != nil || data == nil {
		return nil, err
	}

	if err := validate(contentSchema, data); err != nil {
		return nil, &CorruptError{Path: s.ContentPath(), Err: err}
	}

	var chunks []ContentChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, &CorruptError{Path: s.ContentPath(), Err: err}
	}
	return chunks, nil
}

// SaveContent overwrites content.json in canonical (Index, Page) order.
func (s *Store) SaveContent(chunks []ContentChunk) error {
	sorted := MergeChunks(chunks, nil)
	if sorted == nil {
		sorted = []ContentChunk{}
	}
	return s.write(s.ContentPath(), sorted)
}

func (s *Store) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (s *Store) write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
