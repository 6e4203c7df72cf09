package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/scrivener/version"
)

var (
	cfgFile      string
	outDir       string
	outputFormat string
	bookID       string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "scrivener",
	Short: "Capture books from a web reader and transcribe them to text",
	Long: `Scrivener captures the pages of a book from a remote web reader, one
bitmap per screen, transcribes each bitmap with a vision model and assembles
the results into markdown, EPUB or a PDF of page images.

Every step is resumable. Re-running a command continues from what is
already on disk:
  - extract     capture page bitmaps between the first chapter and back matter
  - transcribe  turn captured bitmaps into text (--follow to keep watching)
  - export      write the transcribed book in one or more formats
  - run         all three in order`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.scrivener/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outDir, "out", "", "output directory for book folders (default: out_dir from config)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&bookID, "book", "", "book identifier",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "terminal log level: debug, info, warn or error (default: log_level from config)",
	)

	rootCmd.AddCommand(versionCmd)
}
