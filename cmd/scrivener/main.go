package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Cancellation stops the run after the manifests are written
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
