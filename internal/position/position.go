// Package position parses the "current position" text shown by a reading surface
// ("Page 12 of 340", "Location 880 of 5120", "Page xiv of 340").
package position

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind identifies which form a position was reported in.
type Kind string

const (
	// KindPage is a book-relative page number.
	KindPage Kind = "page"
	// KindLocation is a reflowable location number.
	KindLocation Kind = "location"
	// KindRoman is a roman-numeral page (front matter). The decoded value is stored in Location.
	KindRoman Kind = "roman"
)

// Position is a parsed reading position. Exactly one of Page or Location is
// meaningful, selected by Kind. Total is always > 0.
type Position struct {
	Kind     Kind `json:"kind"`
	Page     int  `json:"page,omitempty"`
	Location int  `json:"location,omitempty"`
	Total    int  `json:"total"`
}

// IsPage reports whether the position carries a page number.
func (p Position) IsPage() bool {
	return p.Kind == KindPage
}

// Value returns the page or location number, whichever Kind selects.
func (p Position) Value() int {
	if p.Kind == KindPage {
		return p.Page
	}
	return p.Location
}

// Ratio returns how far through the book the position is (value / total).
func (p Position) Ratio() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Value()) / float64(p.Total)
}

func (p Position) String() string {
	switch p.Kind {
	case KindPage:
		return fmt.Sprintf("page %d of %d", p.Page, p.Total)
	case KindRoman:
		return fmt.Sprintf("page %s of %d", toLowerRoman(p.Location), p.Total)
	default:
		return fmt.Sprintf("location %d of %d", p.Location, p.Total)
	}
}

var (
	pagePattern     = regexp.MustCompile(`(?i)\bpage\s+(\d+)\s+of\s+(\d+)`)
	locationPattern = regexp.MustCompile(`(?i)\blocation\s+(\d+)\s+of\s+(\d+)`)
	romanPattern    = regexp.MustCompile(`(?i)\bpage\s+([ivxlcdm]+)\s+of\s+(\d+)`)
)

// Parse extracts a Position from free-form position text. It tries the page,
// location and roman page forms in that order and reports false when none
// match or a captured number is unusable. It never fabricates a zero position.
func Parse(text string) (Position, bool) {
	if text == "" {
		return Position{}, false
	}

	if m := pagePattern.FindStringSubmatch(text); m != nil {
		page, ok1 := parseCount(m[1])
		total, ok2 := parseCount(m[2])
		if !ok1 || !ok2 || total == 0 {
			return Position{}, false
		}
		return Position{Kind: KindPage, Page: page, Total: total}, true
	}

	if m := locationPattern.FindStringSubmatch(text); m != nil {
		loc, ok1 := parseCount(m[1])
		total, ok2 := parseCount(m[2])
		if !ok1 || !ok2 || total == 0 {
			return Position{}, false
		}
		return Position{Kind: KindLocation, Location: loc, Total: total}, true
	}

	if m := romanPattern.FindStringSubmatch(text); m != nil {
		total, ok := parseCount(m[2])
		if !ok || total == 0 {
			return Position{}, false
		}
		return Position{Kind: KindRoman, Location: Deromanize(m[1]), Total: total}, true
	}

	return Position{}, false
}

// parseCount parses a non-negative decimal integer.
func parseCount(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
