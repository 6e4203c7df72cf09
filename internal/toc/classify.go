// Package toc bounds a book's main content using its table of contents.
package toc

import (
	"errors"
	"strings"

	"github.com/jackzampolin/scrivener/internal/manifest"
)

// BackMatterRatio is how far through the book an entry must sit before its
// title is allowed to mark the start of back matter.
const BackMatterRatio = 0.9

// ErrNoContentStart is returned when no entry carries a page number.
var ErrNoContentStart = errors.New("table of contents has no page-numbered entry")

type matcher func(title string) bool

func exact(s string) matcher    { return func(t string) bool { return t == s } }
func contains(s string) matcher { return func(t string) bool { return strings.Contains(t, s) } }
func prefix(s string) matcher   { return func(t string) bool { return strings.HasPrefix(t, s) } }
func suffix(s string) matcher   { return func(t string) bool { return strings.HasSuffix(t, s) } }

// backMatter matches lower-cased, trimmed titles.
var backMatter = []matcher{
	contains("acknowledgements"),
	exact("discover more"),
	exact("extras"),
	contains("about the author"),
	contains("meet the author"),
	prefix("also by "),
	exact("copyright"),
	suffix(" teaser"),
	suffix(" preview"),
	prefix("excerpt from"),
	exact("cast of characters"),
	exact("timeline"),
	prefix("other titles"),
}

// IsBackMatterTitle reports whether a TOC title looks like back matter.
func IsBackMatterTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, m := range backMatter {
		if m(t) {
			return true
		}
	}
	return false
}

// Bounds is the in-scope slice of a book. End is nil when no back-matter entry
// qualified, in which case content runs to the reported total.
type Bounds struct {
	Start      manifest.TocEntry
	StartIndex int
	End        *manifest.TocEntry
	EndIndex   int // -1 when End is nil
	Total      int
}

// StartPage returns the first in-scope page.
func (b Bounds) StartPage() int {
	return b.Start.Position.Page
}

// EndPage returns the exclusive end boundary: capture and export stop at any
// page >= EndPage.
func (b Bounds) EndPage() int {
	if b.End != nil {
		return b.End.Position.Page
	}
	return b.Total + 1
}

// LastPage returns the last in-scope page.
func (b Bounds) LastPage() int {
	return b.EndPage() - 1
}

// Contains reports whether page falls inside [StartPage, EndPage).
func (b Bounds) Contains(page int) bool {
	return page >= b.StartPage() && page < b.EndPage()
}

// Classify finds the first page-numbered entry (start of main content) and the
// first other entry that qualifies as back matter. An entry
// qualifies when it is page-numbered, at least BackMatterRatio of the way
// through the book and its title matches a back-matter pattern.
func Classify(entries []manifest.TocEntry) (Bounds, error) {
	b := Bounds{StartIndex: -1, EndIndex: -1}

	for i, e := range entries {
		if e.HasPage() {
			b.Start = e
			b.StartIndex = i
			b.Total = e.Position.Total
			break
		}
	}
	if b.StartIndex < 0 {
		return Bounds{}, ErrNoContentStart
	}

	for i := range entries {
		if i == b.StartIndex {
			continue
		}
		e := entries[i]
		if !e.HasPage() || e.Position.Ratio() < BackMatterRatio {
			continue
		}
		if IsBackMatterTitle(e.Title) {
			end := e
			b.End = &end
			b.EndIndex = i
			break
		}
	}
	return b, nil
}

// Lookup returns the first entry whose title matches case-insensitively.
// Entries without a position are included.
func Lookup(entries []manifest.TocEntry, title string) (manifest.TocEntry, bool) {
	want := strings.TrimSpace(title)
	for _, e := range entries {
		if strings.EqualFold(strings.TrimSpace(e.Title), want) {
			return e, true
		}
	}
	return manifest.TocEntry{}, false
}

// InScope returns the page-numbered entries in [Start, End), in reading order.
// These are the sections an export is divided into.
func (b Bounds) InScope(entries []manifest.TocEntry) []manifest.TocEntry {
	var out []manifest.TocEntry
	for i, e := range entries {
		if i < b.StartIndex || !e.HasPage() {
			continue
		}
		if b.EndIndex >= 0 && i >= b.EndIndex {
			break
		}
		if e.Position.Page >= b.EndPage() {
			break
		}
		out = append(out, e)
	}
	return out
}
