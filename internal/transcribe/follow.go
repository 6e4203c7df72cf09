package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/recognizer"
)

// DefaultDebounce is how long Follow waits after the last artifact event
// before starting a batch.
const DefaultDebounce = 2 * time.Second

// FollowOptions configures Follow.
type FollowOptions struct {
	Debounce time.Duration
	// Resolve, if set, is called before each batch; a non-nil recognizer
	// replaces the current one. Used to pick up config reloads.
	Resolve func(ctx context.Context) (recognizer.Recognizer, error)
	// OnResult is called after each batch.
	OnResult func(*Result)
}

// Follow runs the pipeline once, then again each time new page artifacts land
// in the pages directory, until ctx is done. Cancellation ends Follow without
// error; a corrupt manifest ends it with one.
func (p *Pipeline) Follow(ctx context.Context, opts FollowOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	pagesDir := p.store.PagesDir()
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(pagesDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", pagesDir, err)
	}
	p.logger.Info("following page artifacts", "dir", pagesDir, "debounce", opts.Debounce)

	if err := p.batch(ctx, opts); err != nil {
		return err
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isArtifactEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watcher error", "error", err)

		case <-fire:
			fire = nil
			if err := p.batch(ctx, opts); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) batch(ctx context.Context, opts FollowOptions) error {
	if opts.Resolve != nil {
		rec, err := opts.Resolve(ctx)
		if err != nil {
			p.logger.Warn("keeping current recognizer", "error", err)
		} else {
			p.SetRecognizer(rec)
		}
	}

	res, err := p.Run(ctx)
	switch {
	case ctx.Err() != nil:
		return nil
	case manifest.IsCorrupt(err):
		return err
	case err != nil:
		p.logger.Error("transcription batch failed", "error", err)
		return nil
	}
	if opts.OnResult != nil {
		opts.OnResult(res)
	}
	return nil
}

func isArtifactEvent(e fsnotify.Event) bool {
	if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) && !e.Has(fsnotify.Rename) {
		return false
	}
	return strings.EqualFold(filepath.Ext(e.Name), ".png")
}
