package extract

import (
	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/toc"
)

// Summary compares the pages a run was expected to capture with the pages
// actually on record. It is diagnostic output; a shortfall is not an error.
type Summary struct {
	FirstPage int   `json:"first_page" yaml:"first_page"`
	LastPage  int   `json:"last_page" yaml:"last_page"`
	Expected  int   `json:"expected" yaml:"expected"`
	Extracted int   `json:"extracted" yaml:"extracted"`
	Missing   []int `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Complete reports whether every expected page was captured.
func (s Summary) Complete() bool {
	return len(s.Missing) == 0
}

// Verify builds a Summary for pages against the in-scope range of bounds.
func Verify(bounds toc.Bounds, pages []manifest.PageArtifact) Summary {
	s := Summary{FirstPage: bounds.StartPage(), LastPage: bounds.LastPage()}
	if s.LastPage < s.FirstPage {
		return s
	}
	s.Expected = s.LastPage - s.FirstPage + 1

	have := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		if bounds.Contains(p.Page) {
			have[p.Page] = struct{}{}
		}
	}
	s.Extracted = len(have)

	for page := s.FirstPage; page <= s.LastPage; page++ {
		if _, ok := have[page]; !ok {
			s.Missing = append(s.Missing, page)
		}
	}
	return s
}

func (e *Extractor) verify(r *run) {
	e.setState(StateVerifying)
	s := Verify(r.bounds, r.ext.Pages)
	r.result.Summary = s

	if s.Complete() {
		e.logger.Info("verification complete", "expected", s.Expected, "extracted", s.Extracted)
		return
	}
	e.logger.Warn("verification found missing pages",
		"expected", s.Expected,
		"extracted", s.Extracted,
		"missing", len(s.Missing))
}
