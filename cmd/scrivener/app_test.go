package main

import (
	"errors"
	"os"
	"testing"

	"github.com/jackzampolin/scrivener/internal/config"
	"github.com/jackzampolin/scrivener/internal/extract"
	"github.com/jackzampolin/scrivener/internal/home"
)

func testApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	out, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	prev := bookID
	bookID = "B00TEST"
	t.Cleanup(func() { bookID = prev })
	return &app{cfg: cfg, out: out}
}

func TestOpenExtractLog_UnconfiguredSourceWritesNothing(t *testing.T) {
	a := testApp(t, config.DefaultConfig())

	sink, err := a.openExtractLog("extract")
	if err == nil {
		sink.Close()
		t.Fatal("expected error for a source without reader settings")
	}
	var pe *extract.PreconditionError
	if !errors.As(err, &pe) {
		t.Errorf("error = %T %v, want *extract.PreconditionError", err, err)
	}

	entries, err := os.ReadDir(a.out.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output directory has %d entries, want none", len(entries))
	}
}

func TestOpenExtractLog_ConfiguredSourceOpensLog(t *testing.T) {
	t.Setenv("TEST_READER_PASSWORD", "hunter2")
	cfg := config.DefaultConfig()
	cfg.Source.ReaderURL = "https://reader.example/%s"
	cfg.Source.Email = "me@example.com"
	cfg.Source.Password = "${TEST_READER_PASSWORD}"
	cfg.Source.Selectors.Content = "#page"
	cfg.Source.Selectors.Position = "#footer"
	a := testApp(t, cfg)

	sink, err := a.openExtractLog("run")
	if err != nil {
		t.Fatalf("openExtractLog() error = %v", err)
	}
	defer sink.Close()
	if _, err := os.Stat(a.out.Path()); err != nil {
		t.Errorf("run log directory not created: %v", err)
	}
}
