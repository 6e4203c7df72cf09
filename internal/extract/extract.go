// Package extract drives a page source through a book, saving one bitmap per
// screen and recording them in the extraction manifest. Runs are resumable:
// artifacts already on disk are never captured twice.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/jackzampolin/scrivener/internal/backoff"
	"github.com/jackzampolin/scrivener/internal/home"
	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/position"
	"github.com/jackzampolin/scrivener/internal/report"
	"github.com/jackzampolin/scrivener/internal/source"
	"github.com/jackzampolin/scrivener/internal/toc"
)

// State is a step of the extraction state machine.
type State string

const (
	StateIdle       State = "idle"
	StateResuming   State = "resuming"
	StateNavigating State = "navigating"
	StateCapturing  State = "capturing"
	StateVerifying  State = "verifying"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultMaxPolls      = 20
	defaultReissueEvery  = 5
	defaultNavigateTries = 3
	defaultPositionTries = 3
	defaultCaptureTries  = 3
)

// Config configures an Extractor.
type Config struct {
	BookID string
	Source source.PageSource
	Home   *home.Dir

	// PollInterval is the wait between content checks after an advance.
	PollInterval time.Duration
	// MaxPolls bounds the content checks per advance. Running out is
	// treated as the end of the book.
	MaxPolls int
	// ReissueEvery re-sends the advance request every N polls.
	ReissueEvery int

	// OnState, if set, observes every state transition.
	OnState func(State)

	Logger *slog.Logger
}

// Extractor runs the extraction state machine for one book.
type Extractor struct {
	cfg    Config
	src    source.PageSource
	logger *slog.Logger
	state  State
}

// New validates preconditions and returns an Extractor. Nothing is opened or
// written here.
func New(cfg Config) (*Extractor, error) {
	if cfg.BookID == "" {
		return nil, &PreconditionError{Reason: "book id is required"}
	}
	if cfg.Source == nil {
		return nil, &PreconditionError{Reason: "page source is required"}
	}
	if cfg.Home == nil {
		return nil, &PreconditionError{Reason: "output directory is required"}
	}
	if v, ok := cfg.Source.(source.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &PreconditionError{Reason: "page source is not configured", Err: err}
		}
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = defaultMaxPolls
	}
	if cfg.ReissueEvery <= 0 {
		cfg.ReissueEvery = defaultReissueEvery
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		cfg:    cfg,
		src:    cfg.Source,
		logger: logger.With("book_id", cfg.BookID),
		state:  StateIdle,
	}, nil
}

// State returns the current state.
func (e *Extractor) State() State {
	return e.state
}

func (e *Extractor) setState(s State) {
	if s == e.state {
		return
	}
	e.logger.Debug("state change", "from", e.state, "to", s)
	e.state = s
	if e.cfg.OnState != nil {
		e.cfg.OnState(s)
	}
}

// Result describes a finished (or aborted) run.
type Result struct {
	BookDir  string     `json:"book_dir" yaml:"book_dir"`
	Title    string     `json:"title" yaml:"title"`
	State    State      `json:"state" yaml:"state"`
	Bounds   BoundsInfo `json:"bounds" yaml:"bounds"`
	Resume   ResumeInfo `json:"resume" yaml:"resume"`
	Captured int        `json:"captured" yaml:"captured"`
	Skipped  int        `json:"skipped" yaml:"skipped"`
	Pages    int        `json:"pages" yaml:"pages"`
	Stalled  bool       `json:"stalled" yaml:"stalled"`
	NoOp     bool       `json:"no_op" yaml:"no_op"`

	// FailedPage is the page whose capture kept failing, ending the pass.
	FailedPage int             `json:"failed_page,omitempty" yaml:"failed_page,omitempty"`
	Summary    Summary         `json:"summary" yaml:"summary"`
	Elapsed    report.Duration `json:"elapsed" yaml:"elapsed"`
}

// BoundsInfo is the printable form of toc.Bounds.
type BoundsInfo struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
	First int    `json:"first_page" yaml:"first_page"`
	Last  int    `json:"last_page" yaml:"last_page"`
	Total int    `json:"total" yaml:"total"`
}

// ResumeInfo records what the run inherited.
type ResumeInfo struct {
	Reconciled int  `json:"reconciled" yaml:"reconciled"`
	FromPage   int  `json:"from_page" yaml:"from_page"`
	Rebuilt    bool `json:"rebuilt_from_disk" yaml:"rebuilt_from_disk"`
}

// run holds the mutable state of a single Run call.
type run struct {
	store  *manifest.Store
	ext    manifest.Extraction
	bounds toc.Bounds
	width  int
	result *Result
}

// Run performs one extraction pass. Failures before the session is open
// return without touching the book directory. Once the book directory is
// known the manifest is written exactly once, even when ctx is cancelled.
func (e *Extractor) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = &Result{}
	defer func() {
		res.Elapsed = report.Duration(time.Since(start))
		if err != nil {
			e.setState(StateAborted)
		}
		res.State = e.state
	}()

	sess, err := e.src.Open(ctx)
	if err != nil {
		_ = e.src.Close()
		return res, &SessionError{Err: err}
	}
	defer func() {
		if cerr := e.src.Close(); cerr != nil {
			e.logger.Warn("failed to close page source", "error", cerr)
		}
	}()

	bookDir, err := e.cfg.Home.BookDir(e.cfg.BookID, sess.Title)
	if err != nil {
		return res, err
	}
	res.BookDir = bookDir
	res.Title = sess.Title
	r := &run{store: manifest.NewStore(bookDir), result: res}

	prev, err := r.store.LoadExtraction()
	if err != nil {
		return res, err
	}

	r.ext = buildExtraction(prev, sess)
	r.bounds, err = toc.Classify(r.ext.TOC)
	if err != nil {
		return res, fmt.Errorf("cannot bound book content: %w", err)
	}
	r.width = manifest.ArtifactWidth(r.bounds.Total)
	res.Bounds = boundsInfo(r.bounds)

	e.logger.Info("content bounds",
		"start", r.bounds.Start.Title,
		"first_page", r.bounds.StartPage(),
		"last_page", r.bounds.LastPage(),
		"total", r.bounds.Total)

	defer func() {
		// Terminal write: survives cancellation of the run context.
		r.ext.Pages = nonNil(r.ext.Pages)
		res.Pages = len(r.ext.Pages)
		if werr := r.store.SaveExtraction(&r.ext); werr != nil {
			e.logger.Error("failed to write extraction manifest", "error", werr)
			if err == nil {
				err = werr
			}
		}
	}()

	e.setState(StateResuming)
	disk, err := manifest.ScanArtifacts(bookDir)
	if err != nil {
		return res, err
	}
	var prevPages []manifest.PageArtifact
	if prev != nil {
		prevPages = prev.Pages
	}
	rs := reconcile(prevPages, disk, r.bounds.Total)
	r.ext.Pages = rs.Pages
	res.Resume = ResumeInfo{Reconciled: rs.Reconciled, FromPage: rs.ResumePage, Rebuilt: rs.Rebuilt}
	if rs.Rebuilt {
		e.logger.Warn("manifest behind artifacts on disk; rebuilt page list from filenames",
			"manifest_pages", len(prevPages), "artifacts", disk.FileCount)
	}

	if rs.ResumePage > 0 && rs.ResumePage-1 >= r.bounds.LastPage() {
		e.logger.Info("already extracted", "pages", len(r.ext.Pages), "last_page", r.bounds.LastPage())
		res.NoOp = true
		e.verify(r)
		e.setState(StateDone)
		return res, nil
	}

	e.setState(StateNavigating)
	target := max(rs.ResumePage, r.bounds.StartPage())
	if err := e.navigateTo(ctx, target); err != nil {
		e.verifyUnlessCancelled(ctx, r)
		return res, err
	}

	e.setState(StateCapturing)
	if err := e.capture(ctx, r); err != nil {
		e.verifyUnlessCancelled(ctx, r)
		return res, err
	}

	e.verify(r)
	e.setState(StateDone)
	return res, nil
}

// buildExtraction starts the new manifest. Info and meta are kept from the
// first run that captured them; the TOC is refreshed unless the source
// returned none.
func buildExtraction(prev *manifest.Extraction, sess *source.Session) manifest.Extraction {
	ext := manifest.Extraction{Info: sess.Info, Meta: sess.Meta}
	if prev != nil {
		if len(prev.Info) > 0 {
			ext.Info = prev.Info
		}
		if len(prev.Meta) > 0 {
			ext.Meta = prev.Meta
		}
	}

	for _, item := range sess.TOC {
		entry := manifest.TocEntry{Title: item.Title, Label: item.Label}
		if pos, ok := position.Parse(item.Label); ok {
			entry.Position = &pos
		}
		ext.TOC = append(ext.TOC, entry)
	}
	if len(ext.TOC) == 0 && prev != nil {
		ext.TOC = prev.TOC
	}
	return ext
}

func boundsInfo(b toc.Bounds) BoundsInfo {
	info := BoundsInfo{
		Start: b.Start.Title,
		First: b.StartPage(),
		Last:  b.LastPage(),
		Total: b.Total,
	}
	if b.End != nil {
		info.End = b.End.Title
	}
	return info
}

// navigateTo moves the source to page unless it is already showing it.
func (e *Extractor) navigateTo(ctx context.Context, page int) error {
	if pos, ok := e.readPosition(ctx); ok && pos.IsPage() && pos.Page == page {
		return nil
	}

	e.logger.Info("navigating", "page", page)
	policy := backoff.Fixed(e.cfg.PollInterval, defaultNavigateTries)
	policy.OnRetry = func(attempt int, err error) {
		e.logger.Warn("navigation failed, retrying", "page", page, "attempt", attempt, "error", err)
	}
	err := backoff.Do(ctx, policy, backoff.Always, func(int) error {
		if page <= 1 {
			return e.src.NavigateToStart(ctx)
		}
		return e.src.NavigateToPage(ctx, page)
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to page %d: %w", page, err)
	}
	return nil
}

var errNoPosition = errors.New("no position visible")

// readPosition reads and parses the visible position, retrying briefly on
// read errors. It reports false when no position can be read.
func (e *Extractor) readPosition(ctx context.Context) (position.Position, bool) {
	var pos position.Position
	err := backoff.Do(ctx, backoff.Fixed(e.cfg.PollInterval, defaultPositionTries), backoff.Always, func(int) error {
		text, err := e.src.CurrentPosition(ctx)
		if err != nil {
			e.logger.Debug("position read failed", "error", err)
			return err
		}
		p, ok := position.Parse(text)
		if !ok {
			return errNoPosition
		}
		pos = p
		return nil
	})
	return pos, err == nil
}

// capture is the Capturing loop. It stops at the end boundary, when no
// position is visible, when an advance fails to change the page, or when a
// page keeps failing to capture.
func (e *Extractor) capture(ctx context.Context, r *run) error {
	pagesDir := r.store.PagesDir()
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}
	end := r.bounds.EndPage()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pos, ok := e.readPosition(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.logger.Info("no position visible; stopping")
			return nil
		}

		if pos.IsPage() {
			if pos.Page >= end {
				e.logger.Info("reached end boundary", "page", pos.Page, "end", end)
				return nil
			}
			if err := e.capturePage(ctx, r, pos); err != nil {
				if !errors.Is(err, errCaptureFailed) {
					return err
				}
				r.result.FailedPage = pos.Page
				e.logger.Warn("capture failed; stopping", "page", pos.Page, "error", err)
				return nil
			}
		} else {
			e.logger.Debug("skipping screen without page number", "position", pos.String())
		}

		if !e.advance(ctx) {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.result.Stalled = true
			e.logger.Info("page did not change after advancing; treating as end of book",
				"last_position", pos.String(), "polls", e.cfg.MaxPolls)
			return nil
		}
	}
}

func (e *Extractor) capturePage(ctx context.Context, r *run, pos position.Position) error {
	index := len(r.ext.Pages)
	rel := manifest.ArtifactPath(index, pos.Page, r.width)
	artifact := manifest.PageArtifact{Index: index, Page: pos.Page, Total: pos.Total, ImagePath: rel}
	path := r.store.Resolve(rel)

	if _, err := os.Stat(path); err == nil {
		e.logger.Debug("artifact exists, skipping capture", "page", pos.Page, "index", index)
		r.ext.Pages = append(r.ext.Pages, artifact)
		r.result.Skipped++
		return nil
	}

	var img []byte
	policy := backoff.Fixed(e.cfg.PollInterval, defaultCaptureTries)
	policy.OnRetry = func(attempt int, err error) {
		e.logger.Warn("capture failed, retrying", "page", pos.Page, "attempt", attempt, "error", err)
	}
	err := backoff.Do(ctx, policy, backoff.Always, func(int) error {
		b, err := e.src.Capture(ctx)
		if err != nil {
			return err
		}
		img = b
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: page %d: %w", errCaptureFailed, pos.Page, err)
	}
	if err := atomicwriter.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	r.ext.Pages = append(r.ext.Pages, artifact)
	r.result.Captured++
	e.logger.Info("captured page", "page", pos.Page, "total", pos.Total, "index", index)
	return nil
}

var (
	errUnchanged     = errors.New("content unchanged")
	errNoContentID   = errors.New("no content id")
	errCaptureFailed = errors.New("capture failed")
)

// advance requests the next page and polls until the visible content
// changes. The request is re-sent every ReissueEvery polls because sources
// may drop it. It reports false when the content never changed or the
// current content could not be identified before advancing.
func (e *Extractor) advance(ctx context.Context) bool {
	var before string
	err := backoff.Do(ctx, backoff.Fixed(e.cfg.PollInterval, defaultPositionTries), backoff.Always, func(int) error {
		id, err := e.src.ContentID(ctx)
		if err != nil {
			e.logger.Debug("content id read failed before advance", "error", err)
			return err
		}
		if id == "" {
			return errNoContentID
		}
		before = id
		return nil
	})
	if err != nil {
		e.logger.Warn("cannot identify current content; not advancing", "error", err)
		return false
	}
	if err := e.src.Advance(ctx); err != nil {
		e.logger.Debug("advance request failed", "error", err)
	}

	err = backoff.Do(ctx, backoff.Fixed(e.cfg.PollInterval, e.cfg.MaxPolls), backoff.Always, func(attempt int) error {
		if attempt > 1 && (attempt-1)%e.cfg.ReissueEvery == 0 {
			e.logger.Debug("re-sending advance", "poll", attempt)
			if err := e.src.Advance(ctx); err != nil {
				e.logger.Debug("advance request failed", "error", err)
			}
		}
		id, err := e.src.ContentID(ctx)
		if err != nil {
			e.logger.Debug("content id read failed", "poll", attempt, "error", err)
			return errUnchanged
		}
		if id == "" || id == before {
			return errUnchanged
		}
		return nil
	})
	return err == nil
}

// verifyUnlessCancelled reports on what was captured before a failure. A
// cancelled run skips it.
func (e *Extractor) verifyUnlessCancelled(ctx context.Context, r *run) {
	if ctx.Err() != nil {
		return
	}
	e.verify(r)
}

func nonNil(pages []manifest.PageArtifact) []manifest.PageArtifact {
	if pages == nil {
		return []manifest.PageArtifact{}
	}
	return pages
}
