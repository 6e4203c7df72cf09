// Package export assembles the transcribed content of a book into readable
// documents.
package export

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/toc"
)

// Document is a titled, sectioned book ready to render.
type Document struct {
	Title    string
	Authors  []string
	Bounds   toc.Bounds
	Sections []Section
}

// Section is the content owned by one in-scope TOC entry.
type Section struct {
	Title string
	// StartPage and EndPage bound the section: [StartPage, EndPage).
	StartPage int
	EndPage   int
	Chunks    []manifest.ContentChunk
}

// Text joins the section's chunks with blank lines.
func (s Section) Text() string {
	parts := make([]string, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Pages returns the number of pages with content in the document.
func (d *Document) Pages() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Chunks)
	}
	return n
}

// Assemble walks the TOC from the content start to the back-matter boundary.
// Each in-scope entry owns the chunks whose page falls in
// [entry page, next entry page), capped at the boundary. Chunks outside every
// section are not exported. fallbackTitle is used when the metadata blobs
// carry no title.
func Assemble(ext *manifest.Extraction, chunks []manifest.ContentChunk, fallbackTitle string) (*Document, error) {
	bounds, err := toc.Classify(ext.TOC)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Title:   bookTitle(ext, fallbackTitle),
		Authors: bookAuthors(ext),
		Bounds:  bounds,
	}

	sorted := manifest.MergeChunks(chunks, nil)
	entries := bounds.InScope(ext.TOC)
	for i, e := range entries {
		s := Section{
			Title:     strings.TrimSpace(e.Title),
			StartPage: e.Position.Page,
			EndPage:   bounds.EndPage(),
		}
		if i+1 < len(entries) {
			s.EndPage = min(entries[i+1].Position.Page, bounds.EndPage())
		}
		for _, c := range sorted {
			if c.Page >= s.StartPage && c.Page < s.EndPage {
				s.Chunks = append(s.Chunks, c)
			}
		}
		doc.Sections = append(doc.Sections, s)
	}
	return doc, nil
}

var (
	titlePaths  = []string{"title", "book.title", "metadata.title", "name"}
	authorPaths = []string{"authors", "authorList", "author", "book.authors", "metadata.authors", "contributors"}
)

func bookTitle(ext *manifest.Extraction, fallback string) string {
	for _, blob := range [][]byte{ext.Info, ext.Meta} {
		if len(blob) == 0 || !gjson.ValidBytes(blob) {
			continue
		}
		for _, path := range titlePaths {
			if v := gjson.GetBytes(blob, path); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				return strings.TrimSpace(v.Str)
			}
		}
	}
	return fallback
}

// bookAuthors accepts a string, an array of strings or an array of objects
// carrying a name.
func bookAuthors(ext *manifest.Extraction) []string {
	for _, blob := range [][]byte{ext.Info, ext.Meta} {
		if len(blob) == 0 || !gjson.ValidBytes(blob) {
			continue
		}
		for _, path := range authorPaths {
			if names := authorNames(gjson.GetBytes(blob, path)); len(names) > 0 {
				return names
			}
		}
	}
	return nil
}

func authorNames(v gjson.Result) []string {
	var out []string
	add := func(r gjson.Result) {
		switch {
		case r.Type == gjson.String:
			if s := strings.TrimSpace(r.Str); s != "" {
				out = append(out, s)
			}
		case r.IsObject():
			for _, key := range []string{"name", "displayName", "fullName"} {
				if n := r.Get(key); n.Type == gjson.String && strings.TrimSpace(n.Str) != "" {
					out = append(out, strings.TrimSpace(n.Str))
					return
				}
			}
		}
	}
	if v.IsArray() {
		v.ForEach(func(_, r gjson.Result) bool {
			add(r)
			return true
		})
		return out
	}
	add(v)
	return out
}
