// Package manifest defines the two JSON documents that hold all durable state for a
// book: the extraction manifest (metadata.json) and the content manifest (content.json).
package manifest

import (
	"encoding/json"

	"github.com/jackzampolin/scrivener/internal/position"
)

const (
	// ExtractionFileName is the extraction manifest file inside a book directory.
	ExtractionFileName = "metadata.json"
	// ContentFileName is the content manifest file inside a book directory.
	ContentFileName = "content.json"
	// PagesDirName is the page artifact directory inside a book directory.
	PagesDirName = "pages"
)

// TocEntry is a table-of-contents entry in reading order. Position is nil for
// headings without a page mapping.
type TocEntry struct {
	Title    string             `json:"title"`
	Label    string             `json:"label,omitempty"` // raw position text as shown by the source
	Position *position.Position `json:"position,omitempty"`
}

// HasPage reports whether the entry maps to a page-kind position.
func (e TocEntry) HasPage() bool {
	return e.Position != nil && e.Position.IsPage()
}

// PageArtifact is one captured page bitmap. Index is the 0-based capture order,
// Page the book-relative page number. ImagePath is relative to the book directory.
type PageArtifact struct {
	Index     int    `json:"index"`
	Page      int    `json:"page"`
	Total     int    `json:"total"`
	ImagePath string `json:"image_path"`
}

// Extraction is the extraction manifest. Info and Meta are opaque blobs captured
// from the source at session start.
type Extraction struct {
	Info  json.RawMessage `json:"info,omitempty"`
	Meta  json.RawMessage `json:"meta,omitempty"`
	TOC   []TocEntry      `json:"toc"`
	Pages []PageArtifact  `json:"pages"`
}

// ContentChunk is the transcription of one page artifact. SourceArtifact is the
// idempotency key and joins back to PageArtifact.ImagePath.
type ContentChunk struct {
	Index          int    `json:"index"`
	Page           int    `json:"page"`
	Text           string `json:"text"`
	SourceArtifact string `json:"source_artifact"`
}

// BookTotal returns the total page count reported by the source, taken from the
// first page-positioned TOC entry or, failing that, the captured pages.
func (e *Extraction) BookTotal() int {
	for _, entry := range e.TOC {
		if entry.HasPage() {
			return entry.Position.Total
		}
	}
	for _, p := range e.Pages {
		if p.Total > 0 {
			return p.Total
		}
	}
	return 0
}
