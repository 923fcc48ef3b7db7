package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quix-labs/incremental-writer/internals"
	"github.com/quix-labs/incremental-writer/publishers"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(publishers.LogOutput).With().Timestamp().Str("service", "main").Logger()

	runner, err := internals.NewRunner()
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot initialise task")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = runner.Run(ctx, os.Stdin, os.Stdout)
	stop()
	runner.Terminate()
	if err != nil {
		logger.Fatal().Err(err).Msg("Task failed")
	}
}
