package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scrivener/internal/extract"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show extraction and transcription progress for a book",
	Long: `Show the content bounds, captured and transcribed page counts and the
pages still missing between the first chapter and the back matter.

Status only reads the book directory; it never opens a reader session.

Examples:
  scrivener status --book B00EXAMPLE
  scrivener status --book B00EXAMPLE -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		bookDir, err := a.locate()
		if err != nil {
			return err
		}
		st, err := extract.ReadStatus(bookDir)
		if err != nil {
			return err
		}
		return a.printer.Print(st)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
