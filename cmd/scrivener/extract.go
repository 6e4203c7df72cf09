package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scrivener/internal/config"
	"github.com/jackzampolin/scrivener/internal/extract"
	"github.com/jackzampolin/scrivener/internal/source"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Capture page bitmaps for a book",
	Long: `Capture one bitmap per screen for a book, from the first page-numbered
table of contents entry up to the first back-matter entry.

Pages already on disk are never captured again, so an interrupted run picks
up where it stopped. The extraction manifest is written when the run ends,
including on Ctrl+C.

Examples:
  scrivener extract --book B00EXAMPLE
  scrivener extract --book B00EXAMPLE --out ~/books -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBook(); err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		sink, err := a.openExtractLog("extract")
		if err != nil {
			return err
		}
		defer sink.Close()

		res, err := runExtract(cmd.Context(), a, sink.Logger())
		if res != nil && res.BookDir != "" {
			if perr := a.printer.Print(res); perr != nil {
				return perr
			}
		}
		return err
	},
}

func runExtract(ctx context.Context, a *app, logger *slog.Logger) (*extract.Result, error) {
	if err := a.out.EnsureExists(); err != nil {
		return nil, err
	}
	src := source.NewBrowser(a.cfg.BrowserConfig(bookID, logger))

	ex, err := extract.New(extract.Config{
		BookID:       bookID,
		Source:       src,
		Home:         a.out,
		PollInterval: config.Duration(a.cfg.Extract.PollIntervalMS),
		MaxPolls:     a.cfg.Extract.MaxPolls,
		ReissueEvery: a.cfg.Extract.ReissueEvery,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return ex.Run(ctx)
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
