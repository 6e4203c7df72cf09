package toc

import (
	"errors"
	"testing"

	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/position"
)

func entry(title string, page, total int) manifest.TocEntry {
	return manifest.TocEntry{
		Title:    title,
		Position: &position.Position{Kind: position.KindPage, Page: page, Total: total},
	}
}

func TestClassify_CopyrightEnd(t *testing.T) {
	entries := []manifest.TocEntry{
		{Title: "T"},
		entry("A", 5, 100),
		entry("Copyright", 96, 100),
	}

	b, err := Classify(entries)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if b.Start.Title != "A" || b.StartIndex != 1 {
		t.Errorf("start = %q (%d), want A (1)", b.Start.Title, b.StartIndex)
	}
	if b.End == nil || b.End.Title != "Copyright" {
		t.Fatalf("end = %+v, want Copyright", b.End)
	}
	if b.EndPage() != 96 || b.LastPage() != 95 {
		t.Errorf("EndPage/LastPage = %d/%d, want 96/95", b.EndPage(), b.LastPage())
	}
}

func TestClassify_NoEnd(t *testing.T) {
	tests := []struct {
		name    string
		entries []manifest.TocEntry
	}{
		{
			name:    "matching title too early",
			entries: []manifest.TocEntry{entry("Chapter 1", 1, 300), entry("Acknowledgements", 200, 300)},
		},
		{
			name:    "late entry with ordinary title",
			entries: []manifest.TocEntry{entry("Chapter 1", 1, 300), entry("Chapter 40", 295, 300)},
		},
		{
			name: "matching title without page",
			entries: []manifest.TocEntry{
				entry("Chapter 1", 1, 300),
				{Title: "About the Author"},
			},
		},
		{
			name: "location positioned back matter",
			entries: []manifest.TocEntry{
				entry("Chapter 1", 1, 300),
				{Title: "Copyright", Position: &position.Position{Kind: position.KindLocation, Location: 290, Total: 300}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Classify(tt.entries)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if b.End != nil {
				t.Errorf("expected no end, got %q", b.End.Title)
			}
			if b.EndPage() != 301 || b.LastPage() != 300 {
				t.Errorf("EndPage/LastPage = %d/%d, want 301/300", b.EndPage(), b.LastPage())
			}
		})
	}
}

func TestClassify_NoStart(t *testing.T) {
	_, err := Classify([]manifest.TocEntry{{Title: "Epigraph"}, {Title: "Prologue"}})
	if !errors.Is(err, ErrNoContentStart) {
		t.Fatalf("expected ErrNoContentStart, got %v", err)
	}

	_, err = Classify(nil)
	if !errors.Is(err, ErrNoContentStart) {
		t.Fatalf("expected ErrNoContentStart for empty toc, got %v", err)
	}
}

func TestClassify_StartNeverEnd(t *testing.T) {
	// A lone page-numbered entry is the start even if it looks like back matter.
	b, err := Classify([]manifest.TocEntry{entry("Copyright", 95, 100)})
	if err != nil {
		t.Fatal(err)
	}
	if b.End != nil {
		t.Errorf("start entry must not also be the end")
	}
}

func TestIsBackMatterTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Acknowledgements", true},
		{"  ACKNOWLEDGEMENTS  ", true},
		{"Discover More", true},
		{"Discover More Books", false},
		{"Extras", true},
		{"About the Author", true},
		{"Meet the Author", true},
		{"Also by Jane Doe", true},
		{"Also", false},
		{"Copyright", true},
		{"Copyright Page", false},
		{"Book Two Teaser", true},
		{"Sneak Preview", true},
		{"Excerpt from The Next One", true},
		{"Cast of Characters", true},
		{"Timeline", true},
		{"Other Titles by This Author", true},
		{"Chapter 12", false},
		{"Epilogue", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := IsBackMatterTitle(tt.title); got != tt.want {
				t.Errorf("IsBackMatterTitle(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	entries := []manifest.TocEntry{{Title: "Epigraph"}, entry("Part One", 3, 100)}

	got, ok := Lookup(entries, "epigraph")
	if !ok || got.Position != nil {
		t.Errorf("Lookup(epigraph) = %+v, %v", got, ok)
	}
	if _, ok := Lookup(entries, "Part Two"); ok {
		t.Error("expected no match for Part Two")
	}
}

func TestBounds_InScope(t *testing.T) {
	entries := []manifest.TocEntry{
		{Title: "Cover"},
		entry("One", 1, 10),
		{Title: "Interlude"},
		entry("Two", 4, 10),
		entry("Copyright", 9, 10),
		entry("Also by Someone", 10, 10),
	}
	b, err := Classify(entries)
	if err != nil {
		t.Fatal(err)
	}

	got := b.InScope(entries)
	if len(got) != 2 || got[0].Title != "One" || got[1].Title != "Two" {
		t.Errorf("InScope = %+v", got)
	}
	if !b.Contains(8) || b.Contains(9) || b.Contains(0) {
		t.Errorf("Contains bounds wrong for [%d,%d)", b.StartPage(), b.EndPage())
	}
}
