// Package source drives the remote reading surface a book is captured from.
//
// The extraction state machine only sees the PageSource interface: open a
// session, move between pages, read the visible position and grab a bitmap.
// Browser is the real implementation; ScriptedSource replays a fixed book for
// tests.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PageSource is a single remote reading session. It is not safe for
// concurrent use; callers drive it from one goroutine.
type PageSource interface {
	// Open establishes the session (authentication, book load) and returns
	// the book's metadata. A failure here is fatal to the run.
	Open(ctx context.Context) (*Session, error)

	// NavigateToStart moves to the beginning of the book's content.
	NavigateToStart(ctx context.Context) error

	// NavigateToPage jumps directly to a book page.
	NavigateToPage(ctx context.Context, page int) error

	// Advance requests the next page. The request may be silently dropped.
	Advance(ctx context.Context) error

	// CurrentPosition returns the raw position text shown by the reader, or
	// "" when none is visible.
	CurrentPosition(ctx context.Context) (string, error)

	// ContentID identifies the visible page content. It changes when, and
	// only when, a different page is displayed.
	ContentID(ctx context.Context) (string, error)

	// Capture returns a PNG of the visible page.
	Capture(ctx context.Context) ([]byte, error)

	// Close releases the session.
	Close() error
}

// Validator is implemented by sources that can check their configuration
// before any work starts.
type Validator interface {
	Validate() error
}

// Session is what Open learns about the book.
type Session struct {
	Info  json.RawMessage
	Meta  json.RawMessage
	Title string
	TOC   []TocItem
}

// TocItem is a table-of-contents row as shown by the reader. Label is the raw
// position text ("Page 12 of 340") and may be empty.
type TocItem struct {
	Title string `json:"title"`
	Label string `json:"label"`
}

// ErrMissingSetting is wrapped by Validate errors.
var ErrMissingSetting = errors.New("missing required setting")

// missingSettings reports the names whose values are blank.
func missingSettings(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
}

// rawJSON keeps valid JSON as-is and wraps anything else as a JSON string.
func rawJSON(text string) json.RawMessage {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	quoted, _ := json.Marshal(text)
	return quoted
}
