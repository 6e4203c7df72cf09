package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scrivener/internal/export"
)

var exportFormats []string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a transcribed book as markdown, EPUB or PDF",
	Long: `Assemble the transcribed pages of a book into one document per format,
divided into sections by the table of contents. Only pages between the first
chapter and the back matter are included.

Files are written next to the manifests as "<title>.<ext>".

Examples:
  scrivener export --book B00EXAMPLE
  scrivener export --book B00EXAMPLE --format markdown,epub,pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formats, err := export.ParseFormats(exportFormats)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		bookDir, err := a.locate()
		if err != nil {
			return err
		}
		sink, err := a.openLog("export")
		if err != nil {
			return err
		}
		defer sink.Close()

		res, err := runExport(cmd.Context(), sink.Logger(), bookDir, formats)
		if err != nil {
			return err
		}
		return a.printer.Print(res)
	},
}

func runExport(ctx context.Context, logger *slog.Logger, bookDir string, formats []export.Format) (*export.Result, error) {
	return export.Run(ctx, export.Config{
		BookID:  bookID,
		BookDir: bookDir,
		Formats: formats,
		Logger:  logger,
	})
}

func init() {
	exportCmd.Flags().StringSliceVar(&exportFormats, "format", []string{"markdown"}, "formats to write: markdown, epub, pdf")
	rootCmd.AddCommand(exportCmd)
}
