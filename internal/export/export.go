package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"

	"github.com/jackzampolin/scrivener/internal/epub"
	"github.com/jackzampolin/scrivener/internal/home"
	"github.com/jackzampolin/scrivener/internal/manifest"
)

// Format is an output document type.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatEPUB     Format = "epub"
	FormatPDF      Format = "pdf"
)

// Ext returns the file extension of the format.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return "md"
	default:
		return string(f)
	}
}

// ParseFormats reads a list of format names ("md" is accepted for markdown).
// Duplicates are dropped; an empty list means markdown.
func ParseFormats(names []string) ([]Format, error) {
	var out []Format
	seen := make(map[Format]bool)
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			var f Format
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "":
				continue
			case "markdown", "md":
				f = FormatMarkdown
			case "epub":
				f = FormatEPUB
			case "pdf":
				f = FormatPDF
			default:
				return nil, fmt.Errorf("unknown export format %q (want markdown, epub or pdf)", name)
			}
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if len(out) == 0 {
		out = []Format{FormatMarkdown}
	}
	return out, nil
}

// Config configures an export.
type Config struct {
	BookID  string
	BookDir string
	Formats []Format
	Logger  *slog.Logger
}

// File is one written export.
type File struct {
	Format Format `json:"format" yaml:"format"`
	Path   string `json:"path" yaml:"path"`
	Bytes  int    `json:"bytes" yaml:"bytes"`
}

// Result describes an export run.
type Result struct {
	Title     string `json:"title" yaml:"title"`
	Sections  int    `json:"sections" yaml:"sections"`
	Pages     int    `json:"pages" yaml:"pages"`
	FirstPage int    `json:"first_page" yaml:"first_page"`
	LastPage  int    `json:"last_page" yaml:"last_page"`
	Files     []File `json:"files" yaml:"files"`
}

// Run reads both manifests of a book and writes each requested format next
// to them as <title>.<ext>.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.BookDir == "" {
		return nil, errors.New("book directory is required")
	}
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []Format{FormatMarkdown}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("book_dir", cfg.BookDir)

	store := manifest.NewStore(cfg.BookDir)
	ext, err := store.LoadExtraction()
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, fmt.Errorf("no extraction manifest in %s", cfg.BookDir)
	}
	chunks, err := store.LoadContent()
	if err != nil {
		return nil, err
	}

	fallback := cfg.BookID
	if fallback == "" {
		fallback = filepath.Base(cfg.BookDir)
	}
	doc, err := Assemble(ext, chunks, fallback)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Title:     doc.Title,
		Sections:  len(doc.Sections),
		Pages:     doc.Pages(),
		FirstPage: doc.Bounds.StartPage(),
		LastPage:  doc.Bounds.LastPage(),
	}

	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var data []byte
		switch f {
		case FormatMarkdown:
			data = Markdown(doc)
		case FormatEPUB:
			data, err = EPUB(doc, cfg.BookID)
		case FormatPDF:
			data, err = PDF(inScopeImages(store, ext, doc, logger))
		default:
			err = fmt.Errorf("unknown export format %q", f)
		}
		if err != nil {
			return res, fmt.Errorf("%s export failed: %w", f, err)
		}

		path := home.ExportPath(cfg.BookDir, doc.Title, f.Ext())
		if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
			return res, fmt.Errorf("failed to write %s: %w", path, err)
		}
		res.Files = append(res.Files, File{Format: f, Path: path, Bytes: len(data)})
		logger.Info("export written", "format", f, "path", path, "sections", res.Sections, "pages", res.Pages)
	}
	return res, nil
}

// EPUB renders doc as an ePub with one section per TOC entry.
func EPUB(doc *Document, bookID string) ([]byte, error) {
	sections := make([]epub.Section, len(doc.Sections))
	for i, s := range doc.Sections {
		sections[i] = epub.Section{Title: s.Title, Text: s.Text()}
	}
	return epub.NewWriter(epub.Book{
		ID:      bookID,
		Title:   doc.Title,
		Authors: doc.Authors,
	}, sections).Bytes()
}

// inScopeImages reads the page images inside the document bounds in capture
// order, one per page. Unreadable images are skipped with a warning.
func inScopeImages(store *manifest.Store, ext *manifest.Extraction, doc *Document, logger *slog.Logger) [][]byte {
	pages := append([]manifest.PageArtifact(nil), ext.Pages...)
	manifest.SortArtifacts(pages)

	seen := make(map[int]bool)
	var images [][]byte
	for _, p := range pages {
		if !doc.Bounds.Contains(p.Page) || seen[p.Page] {
			continue
		}
		data, err := os.ReadFile(store.Resolve(p.ImagePath))
		if err != nil {
			logger.Warn("skipping page image", "page", p.Page, "path", p.ImagePath, "error", err)
			continue
		}
		seen[p.Page] = true
		images = append(images, data)
	}
	return images
}
