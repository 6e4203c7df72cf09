package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scrivener/internal/export"
	"github.com/jackzampolin/scrivener/internal/extract"
	"github.com/jackzampolin/scrivener/internal/transcribe"
)

var runFormats []string

// runResult is printed once all stages have run or one has failed.
type runResult struct {
	Extract    *extract.Result    `json:"extract,omitempty" yaml:"extract,omitempty"`
	Transcribe *transcribe.Result `json:"transcribe,omitempty" yaml:"transcribe,omitempty"`
	Export     *export.Result     `json:"export,omitempty" yaml:"export,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract, transcribe and export a book",
	Long: `Run every stage for a book in order: extract, transcribe, export.
A stage that fails stops the run; the stages before it keep their output, so
running the command again resumes from the failed stage.

Examples:
  scrivener run --book B00EXAMPLE --format markdown,epub`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if err := requireBook(); err != nil {
			return err
		}
		formats, err := export.ParseFormats(runFormats)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		sink, err := a.openExtractLog("run")
		if err != nil {
			return err
		}
		defer sink.Close()
		logger := sink.Logger()
		ctx := cmd.Context()

		var out runResult
		defer func() {
			if out.Extract == nil {
				return
			}
			if perr := a.printer.Print(out); perr != nil && err == nil {
				err = perr
			}
		}()

		out.Extract, err = runExtract(ctx, a, logger)
		if err != nil {
			return err
		}
		bookDir := out.Extract.BookDir
		if bookDir == "" {
			return errors.New("extraction did not produce a book directory")
		}

		out.Transcribe, err = runTranscribe(ctx, a, logger, bookDir)
		if err != nil {
			return err
		}
		if n := len(out.Transcribe.GivenUp); n > 0 {
			logger.Warn("exporting with untranscribed pages", "given_up", n)
		}

		out.Export, err = runExport(ctx, logger, bookDir, formats)
		return err
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runFormats, "format", []string{"markdown"}, "formats to write: markdown, epub, pdf")
	rootCmd.AddCommand(runCmd)
}
