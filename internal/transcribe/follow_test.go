package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/recognizer"
)

func TestIsArtifactEvent(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"create png", fsnotify.Event{Name: "pages/0000-0001.png", Op: fsnotify.Create}, true},
		{"write png", fsnotify.Event{Name: "pages/0000-0001.png", Op: fsnotify.Write}, true},
		{"rename upper case", fsnotify.Event{Name: "pages/0000-0001.PNG", Op: fsnotify.Rename}, true},
		{"remove png", fsnotify.Event{Name: "pages/0000-0001.png", Op: fsnotify.Remove}, false},
		{"temp file", fsnotify.Event{Name: "pages/.tmp-0000-0001.png123", Op: fsnotify.Create}, false},
		{"chmod", fsnotify.Event{Name: "pages/0000-0001.png", Op: fsnotify.Chmod}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isArtifactEvent(tt.event); got != tt.want {
				t.Errorf("isArtifactEvent(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestFollow_TranscribesNewArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, 1)

	mock := &recognizer.MockRecognizer{Respond: echo}
	p := newPipeline(t, dir, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Result, 64)
	resolved := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- p.Follow(ctx, FollowOptions{
			Debounce: 20 * time.Millisecond,
			Resolve: func(context.Context) (recognizer.Recognizer, error) {
				select {
				case resolved <- struct{}{}:
				default:
				}
				return nil, errors.New("no config change")
			},
			OnResult: func(r *Result) { results <- r },
		})
	}()

	first := waitResult(t, results)
	if first.Transcribed != 1 {
		t.Fatalf("first batch transcribed %d, want 1", first.Transcribed)
	}

	name := filepath.Join(dir, filepath.FromSlash(manifest.ArtifactPath(1, 2, 4)))
	if err := os.WriteFile(name, []byte("image-2"), 0o644); err != nil {
		t.Fatal(err)
	}

	second := waitResult(t, results)
	if second.Transcribed != 1 || second.Existing != 1 {
		t.Errorf("second batch transcribed=%d existing=%d, want 1 and 1", second.Transcribed, second.Existing)
	}
	if len(resolved) < 1 {
		t.Error("Resolve was not called before batches")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow() error = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}

	chunks, err := manifest.NewStore(dir).LoadContent()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Errorf("len(chunks) = %d, want 2", len(chunks))
	}
}

func waitResult(t *testing.T, results <-chan *Result) *Result {
	t.Helper()
	for {
		select {
		case r := <-results:
			// A write can produce more than one event burst; skip idle batches.
			if r.Pending == 0 {
				continue
			}
			return r
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a transcription batch")
			return nil
		}
	}
}
