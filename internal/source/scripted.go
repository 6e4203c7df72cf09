package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackzampolin/scrivener/internal/position"
)

// ScriptedPage is one screen of a ScriptedSource.
type ScriptedPage struct {
	Position string // raw position text; "" for none
	Image    []byte // defaults to the position text
}

// ScriptedSource replays a fixed sequence of pages. It is used in tests and
// for dry runs of the extraction loop.
type ScriptedSource struct {
	Session Session
	OpenErr error
	Pages   []ScriptedPage

	// StartIndex is where NavigateToStart lands.
	StartIndex int
	// DropAdvances silently ignores that many Advance calls before one lands.
	DropAdvances int
	// DropEvery, when > 0, ignores every Advance whose count is not a
	// multiple of it.
	DropEvery int
	// PositionErrors makes that many CurrentPosition calls fail first.
	PositionErrors int
	// CaptureErrors makes that many Capture calls fail first.
	CaptureErrors int
	// ContentIDErrorsAfterCapture makes that many ContentID calls fail
	// after every successful Capture.
	ContentIDErrorsAfterCapture int

	mu          sync.Mutex
	cursor      int
	closed      bool
	advances    int
	captures    int
	navigated   []int
	dropCount   int
	posErrSeen  int
	capErrSeen  int
	idErrsAhead int
}

// Validate implements Validator. An empty script is a configuration error.
func (s *ScriptedSource) Validate() error {
	if len(s.Pages) == 0 {
		return fmt.Errorf("%w: scripted pages", ErrMissingSetting)
	}
	return nil
}

// Open returns the scripted session.
func (s *ScriptedSource) Open(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	sess := s.Session
	return &sess, nil
}

// NavigateToStart moves to StartIndex.
func (s *ScriptedSource) NavigateToStart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = s.StartIndex
	return nil
}

// NavigateToPage moves to the first screen whose page number is >= page.
func (s *ScriptedSource) NavigateToPage(ctx context.Context, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, page)
	for i, p := range s.Pages {
		if pos, ok := position.Parse(p.Position); ok && pos.IsPage() && pos.Page >= page {
			s.cursor = i
			return nil
		}
	}
	return fmt.Errorf("page %d not found", page)
}

// Advance moves forward one screen unless the request is dropped or the
// last screen is showing.
func (s *ScriptedSource) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advances++
	if s.dropCount < s.DropAdvances {
		s.dropCount++
		return nil
	}
	if s.DropEvery > 0 && s.advances%s.DropEvery != 0 {
		return nil
	}
	if s.cursor < len(s.Pages)-1 {
		s.cursor++
	}
	return nil
}

// CurrentPosition returns the current screen's position text.
func (s *ScriptedSource) CurrentPosition(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.posErrSeen < s.PositionErrors {
		s.posErrSeen++
		return "", fmt.Errorf("position not readable")
	}
	if s.cursor >= len(s.Pages) {
		return "", nil
	}
	return s.Pages[s.cursor].Position, nil
}

// ContentID returns the current screen index.
func (s *ScriptedSource) ContentID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idErrsAhead > 0 {
		s.idErrsAhead--
		return "", fmt.Errorf("content not readable")
	}
	return fmt.Sprintf("screen-%d", s.cursor), nil
}

// Capture returns the current screen's image.
func (s *ScriptedSource) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.Pages) {
		return nil, fmt.Errorf("no screen at %d", s.cursor)
	}
	if s.capErrSeen < s.CaptureErrors {
		s.capErrSeen++
		return nil, fmt.Errorf("screenshot timed out")
	}
	s.captures++
	s.idErrsAhead = s.ContentIDErrorsAfterCapture
	p := s.Pages[s.cursor]
	if p.Image != nil {
		return p.Image, nil
	}
	return []byte(p.Position), nil
}

// Close marks the session closed.
func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Captures returns how many bitmaps were captured.
func (s *ScriptedSource) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// Advances returns how many Advance calls were made.
func (s *ScriptedSource) Advances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advances
}

// Navigated returns the pages passed to NavigateToPage.
func (s *ScriptedSource) Navigated() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.navigated...)
}

// Closed reports whether Close was called.
func (s *ScriptedSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// BookPages builds a script of pages 1..n, each "Page i of total".
func BookPages(n, total int) []ScriptedPage {
	pages := make([]ScriptedPage, n)
	for i := range pages {
		pages[i] = ScriptedPage{Position: fmt.Sprintf("Page %d of %d", i+1, total)}
	}
	return pages
}
