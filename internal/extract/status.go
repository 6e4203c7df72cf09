package extract

import (
	"errors"
	"fmt"

	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/toc"
)

// ErrNotExtracted is returned by ReadStatus for a book with no manifest.
var ErrNotExtracted = errors.New("book has not been extracted")

// Status is a point-in-time view of a book directory.
type Status struct {
	BookDir     string      `json:"book_dir" yaml:"book_dir"`
	Bounds      *BoundsInfo `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	BoundsError string      `json:"bounds_error,omitempty" yaml:"bounds_error,omitempty"`
	Captured    int         `json:"captured" yaml:"captured"`
	OnDisk      int         `json:"on_disk" yaml:"on_disk"`
	Transcribed int         `json:"transcribed" yaml:"transcribed"`
	Pending     int         `json:"pending" yaml:"pending"`
	Summary     *Summary    `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// ReadStatus inspects bookDir without modifying it. Pages on disk that the
// manifest does not list yet are counted as captured.
func ReadStatus(bookDir string) (*Status, error) {
	store := manifest.NewStore(bookDir)
	ext, err := store.LoadExtraction()
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, fmt.Errorf("%s: %w", bookDir, ErrNotExtracted)
	}
	chunks, err := store.LoadContent()
	if err != nil {
		return nil, err
	}
	disk, err := manifest.ScanArtifacts(bookDir)
	if err != nil {
		return nil, err
	}

	pages := manifest.UnionArtifacts(ext.Pages, disk.Artifacts)
	done := manifest.TranscribedSet(chunks)
	st := &Status{
		BookDir:  bookDir,
		Captured: len(pages),
		OnDisk:   disk.FileCount,
	}
	for _, p := range pages {
		if _, ok := done[p.ImagePath]; ok {
			st.Transcribed++
		}
	}
	st.Pending = st.Captured - st.Transcribed

	bounds, err := toc.Classify(ext.TOC)
	if err != nil {
		st.BoundsError = err.Error()
		return st, nil
	}
	info := boundsInfo(bounds)
	summary := Verify(bounds, pages)
	st.Bounds = &info
	st.Summary = &summary
	return st, nil
}
