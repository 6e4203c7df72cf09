// Package logging builds the run logger: human-readable records on the
// terminal and a JSON copy in the book's run log.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel reads a level name ("debug", "info", "warn", "error").
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// Options configures Open.
type Options struct {
	// Level applies to the terminal handler. The run log always records debug.
	Level slog.Level
	// Console receives text records; nil means stderr.
	Console io.Writer
	// FilePath, if set, receives JSON records. The file is appended to.
	FilePath string
}

// Sink owns the run logger and the files behind it.
type Sink struct {
	logger *slog.Logger
	file   *os.File
	once   sync.Once
}

// Open creates a Sink. The caller must Close it when the run ends.
func Open(opts Options) (*Sink, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: opts.Level}),
	}

	s := &Sink{}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open run log: %w", err)
		}
		s.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	s.logger = slog.New(slogmulti.Fanout(handlers...))
	return s, nil
}

// Logger returns the run logger.
func (s *Sink) Logger() *slog.Logger {
	return s.logger
}

// Close flushes and closes the run log. It is safe to call more than once.
func (s *Sink) Close() error {
	var err error
	s.once.Do(func() {
		if s.file == nil {
			return
		}
		err = errors.Join(s.file.Sync(), s.file.Close())
	})
	return err
}
