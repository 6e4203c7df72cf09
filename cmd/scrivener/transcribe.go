package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scrivener/internal/config"
	"github.com/jackzampolin/scrivener/internal/recognizer"
	"github.com/jackzampolin/scrivener/internal/transcribe"
)

var transcribeFollow bool

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe captured pages with a vision model",
	Long: `Transcribe every captured page bitmap that has no text yet and merge
the results into the book's content manifest in reading order.

With --follow the command keeps running, transcribing new bitmaps as
extraction writes them. Config changes (provider, model, API key) are picked
up between batches.

Examples:
  scrivener transcribe --book B00EXAMPLE
  scrivener transcribe --book B00EXAMPLE --follow`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		bookDir, err := a.locate()
		if err != nil {
			return err
		}
		sink, err := a.openLog("transcribe")
		if err != nil {
			return err
		}
		defer sink.Close()
		logger := sink.Logger()
		ctx := cmd.Context()

		if transcribeFollow {
			return followTranscribe(ctx, a, logger, bookDir)
		}

		res, err := runTranscribe(ctx, a, logger, bookDir)
		if res != nil {
			if perr := a.printer.Print(res); perr != nil {
				return perr
			}
		}
		return err
	},
}

func newPipeline(ctx context.Context, a *app, logger *slog.Logger, bookDir string) (*transcribe.Pipeline, *recognizer.Registry, error) {
	reg := a.recognizers(ctx, logger)
	rec, err := selectRecognizer(reg, a.cfg.Transcribe.Provider)
	if err != nil {
		return nil, nil, err
	}

	t := a.cfg.Transcribe
	p, err := transcribe.New(transcribe.Config{
		Recognizer:       rec,
		BookDir:          bookDir,
		Concurrency:      t.Concurrency,
		MaxRetries:       t.MaxRetries,
		BaseDelay:        config.Duration(t.BaseDelayMS),
		MaxDelay:         config.Duration(t.MaxDelayMS),
		RetryTemperature: t.RetryTemperature,
		RefusalThreshold: t.RefusalThreshold,
		Logger:           logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, reg, nil
}

func runTranscribe(ctx context.Context, a *app, logger *slog.Logger, bookDir string) (*transcribe.Result, error) {
	p, _, err := newPipeline(ctx, a, logger, bookDir)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

func followTranscribe(ctx context.Context, a *app, logger *slog.Logger, bookDir string) error {
	p, reg, err := newPipeline(ctx, a, logger, bookDir)
	if err != nil {
		return err
	}
	a.mgr.WatchConfig(logger)

	return p.Follow(ctx, transcribe.FollowOptions{
		Debounce: config.Duration(a.cfg.Transcribe.FollowDebounceMS),
		Resolve: func(ctx context.Context) (recognizer.Recognizer, error) {
			cfg := a.mgr.Get()
			if err := reg.Reload(ctx, cfg.ProviderConfigs()); err != nil {
				logger.Warn("some recognizers are unavailable", "error", err)
			}
			return selectRecognizer(reg, cfg.Transcribe.Provider)
		},
		OnResult: func(res *transcribe.Result) {
			if res.Pending == 0 {
				return
			}
			if err := a.printer.Print(res); err != nil {
				logger.Warn("failed to print result", "error", err)
			}
		},
	})
}

func init() {
	transcribeCmd.Flags().BoolVar(&transcribeFollow, "follow", false, "keep transcribing new pages as they are captured")
	rootCmd.AddCommand(transcribeCmd)
}
