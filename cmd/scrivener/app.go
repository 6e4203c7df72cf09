package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jackzampolin/scrivener/internal/config"
	"github.com/jackzampolin/scrivener/internal/extract"
	"github.com/jackzampolin/scrivener/internal/home"
	"github.com/jackzampolin/scrivener/internal/logging"
	"github.com/jackzampolin/scrivener/internal/recognizer"
	"github.com/jackzampolin/scrivener/internal/report"
	"github.com/jackzampolin/scrivener/internal/source"
)

// app is the state every book command starts from.
type app struct {
	mgr     *config.Manager
	cfg     *config.Config
	out     *home.Dir
	printer *report.Printer
	level   slog.Level
}

func newApp() (*app, error) {
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	levelName := cfg.LogLevel
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	dir := outDir
	if dir == "" {
		dir = cfg.OutDir
	}
	out, err := home.New(dir)
	if err != nil {
		return nil, err
	}

	return &app{
		mgr:     mgr,
		cfg:     cfg,
		out:     out,
		printer: report.NewPrinter(nil, format),
		level:   level,
	}, nil
}

func requireBook() error {
	if bookID == "" {
		return errors.New("--book is required")
	}
	return nil
}

// locate returns the existing directory of the selected book.
func (a *app) locate() (string, error) {
	if err := requireBook(); err != nil {
		return "", err
	}
	dir, ok, err := a.out.Locate(bookID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no directory for book %s under %s", bookID, a.out.Path())
	}
	return dir, nil
}

// openLog starts the run log for command. Books that have no directory yet
// log to <out>/logs/<ID>-<command>.log, since the directory name depends on
// the title learned when the session opens.
func (a *app) openLog(command string) (*logging.Sink, error) {
	path := filepath.Join(a.out.Path(), home.LogsDirName, bookID+"-"+command+".log")
	if dir, ok, err := a.out.Locate(bookID); err == nil && ok {
		path = home.LogPath(dir, command)
	}
	return logging.Open(logging.Options{Level: a.level, FilePath: path})
}

// openExtractLog checks the page source settings, then starts the run log
// for command. An unusable configuration fails before anything is written.
func (a *app) openExtractLog(command string) (*logging.Sink, error) {
	if err := source.NewBrowser(a.cfg.BrowserConfig(bookID, nil)).Validate(); err != nil {
		return nil, &extract.PreconditionError{Reason: "page source is not configured", Err: err}
	}
	return a.openLog(command)
}

// recognizers builds the provider registry from the current config.
// Providers that fail to build are logged and left out.
func (a *app) recognizers(ctx context.Context, logger *slog.Logger) *recognizer.Registry {
	reg := recognizer.NewRegistry(logger)
	if err := reg.Reload(ctx, a.cfg.ProviderConfigs()); err != nil {
		logger.Warn("some recognizers are unavailable", "error", err)
	}
	return reg
}

func selectRecognizer(reg *recognizer.Registry, name string) (recognizer.Recognizer, error) {
	rec, err := reg.Get(name)
	if err != nil {
		return nil, fmt.Errorf("recognizer %q is not available; check providers.%s (enabled, api_key): %w", name, name, err)
	}
	return rec, nil
}
