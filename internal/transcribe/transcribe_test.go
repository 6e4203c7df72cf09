package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/scrivener/internal/manifest"
	"github.com/jackzampolin/scrivener/internal/recognizer"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeArtifacts writes one image per page, in capture order, and returns the
// matching manifest entries. Each image's bytes are "image-<page>".
func writeArtifacts(t *testing.T, bookDir string, pages ...int) []manifest.PageArtifact {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(bookDir, manifest.PagesDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	out := make([]manifest.PageArtifact, len(pages))
	for i, page := range pages {
		out[i] = manifest.PageArtifact{Index: i, Page: page, Total: 100, ImagePath: manifest.ArtifactPath(i, page, 4)}
		path := filepath.Join(bookDir, filepath.FromSlash(out[i].ImagePath))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("image-%d", page)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

// echo answers with the image bytes so chunks can be traced to artifacts.
func echo(req recognizer.Request, _ int) (string, error) {
	return "text of " + string(req.Image), nil
}

func newPipeline(t *testing.T, bookDir string, rec recognizer.Recognizer, mutate ...func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{
		Recognizer: rec,
		BookDir:    bookDir,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Jitter:     func() float64 { return 0 },
		Logger:     quietLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestTranscribe_MergesInCanonicalOrder(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, 1, 2, 3, 4, 5)

	var states []State
	mock := &recognizer.MockRecognizer{Respond: echo}
	p := newPipeline(t, dir, mock, func(c *Config) {
		c.OnState = func(s State) { states = append(states, s) }
	})

	res, err := p.Transcribe(context.Background(), artifacts, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Transcribed != 5 || len(res.GivenUp) != 0 {
		t.Fatalf("transcribed=%d given_up=%d, want 5 and 0", res.Transcribed, len(res.GivenUp))
	}
	if res.State != StateDone || p.State() != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}
	wantStates := []State{StateIdle, StateDispatching, StateMerging, StateDone}
	if fmt.Sprint(states) != fmt.Sprint(wantStates) {
		t.Errorf("states = %v, want %v", states, wantStates)
	}

	chunks, err := manifest.NewStore(dir).LoadContent()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 5 {
		t.Fatalf("len(chunks) = %d, want 5", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i || c.Page != i+1 {
			t.Errorf("chunk %d = (%d, %d), want (%d, %d)", i, c.Index, c.Page, i, i+1)
		}
		if want := fmt.Sprintf("text of image-%d", i+1); c.Text != want {
			t.Errorf("chunk %d text = %q, want %q", i, c.Text, want)
		}
		if c.SourceArtifact != artifacts[i].ImagePath {
			t.Errorf("chunk %d source = %q, want %q", i, c.SourceArtifact, artifacts[i].ImagePath)
		}
	}
}

func TestTranscribe_RerunIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, 1, 2, 3)
	store := manifest.NewStore(dir)

	first := newPipeline(t, dir, &recognizer.MockRecognizer{Respond: echo})
	if _, err := first.Transcribe(context.Background(), artifacts, nil); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(store.ContentPath())
	if err != nil {
		t.Fatal(err)
	}

	existing, err := store.LoadContent()
	if err != nil {
		t.Fatal(err)
	}
	mock := &recognizer.MockRecognizer{Respond: echo}
	second := newPipeline(t, dir, mock)
	res, err := second.Transcribe(context.Background(), artifacts, existing)
	if err != nil {
		t.Fatal(err)
	}
	if mock.Calls() != 0 || res.Pending != 0 || res.Transcribed != 0 {
		t.Errorf("calls=%d pending=%d transcribed=%d, want all zero", mock.Calls(), res.Pending, res.Transcribed)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want done", res.State)
	}

	after, err := os.ReadFile(store.ContentPath())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("content.json changed on a no-op run:\n%s\n---\n%s", before, after)
	}
}

func TestTranscribe_EmptyWorkResortsExisting(t *testing.T) {
	dir := t.TempDir()
	existing := []manifest.ContentChunk{
		{Index: 1, Page: 2, Text: "two", SourceArtifact: "pages/0001-0002.png"},
		{Index: 0, Page: 1, Text: "one", SourceArtifact: "pages/0000-0001.png"},
	}

	p := newPipeline(t, dir, recognizer.NewMockRecognizer("unused"))
	res, err := p.Transcribe(context.Background(), nil, existing)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 2 || res.Chunks[0].Page != 1 {
		t.Fatalf("chunks = %+v, want page 1 first", res.Chunks)
	}

	chunks, err := manifest.NewStore(dir).LoadContent()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 || chunks[0].Text != "one" || chunks[1].Text != "two" {
		t.Errorf("content.json = %+v", chunks)
	}
}

func TestTranscribe_RetriesEmptyAndRefusal(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, 7)

	answers := []string{"", "I'm sorry, but I can't help with that.", "I'm sorry, I can't transcribe this image.", "  It was a dark night.  "}
	mock := &recognizer.MockRecognizer{Respond: func(_ recognizer.Request, call int) (string, error) {
		return answers[call-1], nil
	}}
	p := newPipeline(t, dir, mock)

	res, err := p.Transcribe(context.Background(), artifacts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transcribed != 1 || len(res.Chunks) != 1 {
		t.Fatalf("transcribed = %d, want 1", res.Transcribed)
	}
	if res.Chunks[0].Text != "It was a dark night." {
		t.Errorf("text = %q", res.Chunks[0].Text)
	}

	reqs := mock.Requests()
	if len(reqs) != 4 {
		t.Fatalf("calls = %d, want 4", len(reqs))
	}
	wantTemps := []float64{0, 0, DefaultRetryTemperature, DefaultRetryTemperature}
	for i, req := range reqs {
		if req.Temperature != wantTemps[i] {
			t.Errorf("attempt %d temperature = %v, want %v", i+1, req.Temperature, wantTemps[i])
		}
		augmented := strings.Contains(req.Prompt, refusalContext)
		if wantAugmented := i >= 2; augmented != wantAugmented {
			t.Errorf("attempt %d augmented = %v, want %v", i+1, augmented, wantAugmented)
		}
		if req.MIMEType != "image/png" || string(req.Image) != "image-7" {
			t.Errorf("attempt %d request = %s %q", i+1, req.MIMEType, req.Image)
		}
	}
}

func TestTranscribe_PromptStaysPlainWithoutRefusals(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, 1)

	mock := &recognizer.MockRecognizer{Respond: func(_ recognizer.Request, call int) (string, error) {
		if call < 4 {
			return "", nil
		}
		return "text", nil
	}}
	p := newPipeline(t, dir, mock)
	if _, err := p.Transcribe(context.Background(), artifacts, nil); err != nil {
		t.Fatal(err)
	}
	for i, req := range mock.Requests() {
		if req.Prompt != DefaultPrompt {
			t.Errorf("attempt %d prompt was augmented", i+1)
		}
	}
}

func TestTranscribe_GivenUp(t *testing.T) {
	tests := []struct {
		name         string
		respond      func() (string, error)
		wantKind     string
		wantAttempts int
	}{
		{
			name:         "exhausted on empty responses",
			respond:      func() (string, error) { return "", nil },
			wantKind:     recognizer.KindEmptyResponse,
			wantAttempts: 3,
		},
		{
			name:         "exhausted on server errors",
			respond:      func() (string, error) { return "", &recognizer.APIError{StatusCode: 503} },
			wantKind:     recognizer.KindServer,
			wantAttempts: 3,
		},
		{
			name: "invalid request is fatal",
			respond: func() (string, error) {
				return "", &recognizer.APIError{StatusCode: 400, Type: "invalid_request_error"}
			},
			wantKind:     recognizer.KindInvalidRequest,
			wantAttempts: 1,
		},
		{
			name: "quota exhausted is fatal",
			respond: func() (string, error) {
				return "", &recognizer.APIError{StatusCode: 429, Type: "insufficient_quota"}
			},
			wantKind:     recognizer.KindQuotaExhausted,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			artifacts := writeArtifacts(t, dir, 1, 2, 3)

			mock := &recognizer.MockRecognizer{Respond: func(req recognizer.Request, call int) (string, error) {
				if string(req.Image) == "image-2" {
					return tt.respond()
				}
				return echo(req, call)
			}}
			p := newPipeline(t, dir, mock, func(c *Config) { c.MaxRetries = 3 })

			res, err := p.Transcribe(context.Background(), artifacts, nil)
			if err != nil {
				t.Fatalf("Transcribe() error = %v", err)
			}
			if res.Transcribed != 2 {
				t.Errorf("transcribed = %d, want 2", res.Transcribed)
			}
			if len(res.GivenUp) != 1 {
				t.Fatalf("given up = %d, want 1", len(res.GivenUp))
			}
			gu := res.GivenUp[0]
			if gu.Page != 2 || gu.Kind != tt.wantKind || gu.Attempts != tt.wantAttempts {
				t.Errorf("given up = page %d kind %s attempts %d, want page 2 kind %s attempts %d",
					gu.Page, gu.Kind, gu.Attempts, tt.wantKind, tt.wantAttempts)
			}
			if mock.Calls() != 2+tt.wantAttempts {
				t.Errorf("calls = %d, want %d", mock.Calls(), 2+tt.wantAttempts)
			}

			chunks, err := manifest.NewStore(dir).LoadContent()
			if err != nil {
				t.Fatal(err)
			}
			for _, c := range chunks {
				if c.Page == 2 {
					t.Error("given-up artifact produced a chunk")
				}
			}
		})
	}
}

func TestTranscribe_UnreadableArtifactIsGivenUp(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, 1)
	artifacts = append(artifacts, manifest.PageArtifact{Index: 1, Page: 2, ImagePath: "pages/0001-0002.png"})

	mock := &recognizer.MockRecognizer{Respond: echo}
	p := newPipeline(t, dir, mock)
	res, err := p.Transcribe(context.Background(), artifacts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.GivenUp) != 1 || res.GivenUp[0].Kind != "unreadable_artifact" {
		t.Fatalf("given up = %+v", res.GivenUp)
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
}

func TestTranscribe_ConcurrencyIsBounded(t *testing.T) {
	dir := t.TempDir()
	pages := make([]int, 40)
	for i := range pages {
		pages[i] = i + 1
	}
	artifacts := writeArtifacts(t, dir, pages...)

	mock := &recognizer.MockRecognizer{Respond: echo, Latency: 5 * time.Millisecond}
	p := newPipeline(t, dir, mock, func(c *Config) { c.Concurrency = 4 })

	res, err := p.Transcribe(context.Background(), artifacts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transcribed != 40 {
		t.Errorf("transcribed = %d, want 40", res.Transcribed)
	}
	if peak := mock.PeakConcurrency(); peak < 1 || peak > 4 {
		t.Errorf("peak concurrency = %d, want 1..4", peak)
	}
}

func TestTranscribe_CancelledKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, 1, 2)
	existing := []manifest.ContentChunk{{Index: 0, Page: 1, Text: "one", SourceArtifact: artifacts[0].ImagePath}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &recognizer.MockRecognizer{Respond: echo}
	p := newPipeline(t, dir, mock)
	res, err := p.Transcribe(ctx, artifacts, existing)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if res == nil || res.State == StateDone {
		t.Fatalf("result = %+v, want an unfinished result", res)
	}
	if len(res.GivenUp) != 0 {
		t.Errorf("cancellation recorded as given up: %+v", res.GivenUp)
	}

	chunks, err := manifest.NewStore(dir).LoadContent()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Text != "one" {
		t.Errorf("content.json = %+v, want the existing chunk", chunks)
	}
}

func TestRun_UnionsManifestAndDisk(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, 1, 2, 3)
	store := manifest.NewStore(dir)

	// The manifest only knows the first page; the rest are still being extracted.
	if err := store.SaveExtraction(&manifest.Extraction{Pages: artifacts[:1]}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveContent([]manifest.ContentChunk{
		{Index: 0, Page: 1, Text: "done", SourceArtifact: artifacts[0].ImagePath},
	}); err != nil {
		t.Fatal(err)
	}

	mock := &recognizer.MockRecognizer{Respond: echo}
	p := newPipeline(t, dir, mock)
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Artifacts != 3 || res.Existing != 1 || res.Pending != 2 {
		t.Errorf("artifacts=%d existing=%d pending=%d, want 3, 1, 2", res.Artifacts, res.Existing, res.Pending)
	}
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2", mock.Calls())
	}

	chunks, err := store.LoadContent()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 || chunks[0].Text != "done" {
		t.Errorf("content.json = %+v", chunks)
	}
}

func TestRun_CorruptContentAborts(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, 1)
	store := manifest.NewStore(dir)
	if err := os.WriteFile(store.ContentPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	mock := &recognizer.MockRecognizer{Respond: echo}
	p := newPipeline(t, dir, mock)
	if _, err := p.Run(context.Background()); !manifest.IsCorrupt(err) {
		t.Fatalf("error = %v, want corrupt manifest", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("calls = %d, want 0", mock.Calls())
	}
	data, _ := os.ReadFile(store.ContentPath())
	if string(data) != "{not json" {
		t.Error("corrupt content.json was overwritten")
	}
}

func TestIsRefusal(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I'm sorry, but I can't assist with that.", true},
		{"I am sorry, I cannot transcribe this.", true},
		{"Sorry, I can't help with that request.", true},
		{"I apologize, but I'm unable to read this image.", true},
		{"Unfortunately I can't process copyrighted text.", true},
		{"I cannot help with that.", true},
		{"I can't do that.", true},
		{"", false},
		{"Chapter One\n\nIt was a bright cold day in April.", false},
		{"\"I'm sorry,\" she said. " + strings.Repeat("The rain kept falling on the roof. ", 5), false},
		{"Sorry seemed to be the hardest word.", false},
		{"I can't go back, she thought. Not now.\n\nTHE END", false},
		{"Unfortunately, the war had only just begun.", false},
		{"Sorry, Mr. Holmes, he said, and closed the door.", false},
		{"I cannot believe it, he said.", false},
		{"I’m unable to transcribe this page.", true},
	}

	for _, tt := range tests {
		name := tt.text
		if len(name) > 30 {
			name = name[:30]
		}
		t.Run(name, func(t *testing.T) {
			if got := IsRefusal(tt.text); got != tt.want {
				t.Errorf("IsRefusal(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{BookDir: t.TempDir()}); err == nil {
		t.Error("expected error without a recognizer")
	}
	if _, err := New(Config{Recognizer: recognizer.NewMockRecognizer("x")}); err == nil {
		t.Error("expected error without a book directory")
	}

	p, err := New(Config{Recognizer: recognizer.NewMockRecognizer("x"), BookDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if p.cfg.Concurrency != DefaultConcurrency || p.cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("defaults = %d/%d", p.cfg.Concurrency, p.cfg.MaxRetries)
	}
	if p.cfg.BaseDelay != DefaultBaseDelay || p.cfg.MaxDelay != DefaultMaxDelay {
		t.Errorf("delays = %v/%v", p.cfg.BaseDelay, p.cfg.MaxDelay)
	}
}
