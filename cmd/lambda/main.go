package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/berniyo/twikey-lambda/internal/common/logger"
	"github.com/berniyo/twikey-lambda/internal/handler"
	"github.com/berniyo/twikey-lambda/internal/twikey"
)

func main() {
	log := logger.New(
		logger.WithLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL"))),
		logger.WithService("twikey-feed-sync"),
	)
	slog.SetDefault(log)

	client, err := twikey.NewClientFromEnv(nil, twikey.WithLogger(log))
	if err != nil {
		log.Error("failed to configure twikey client", "error", err)
		os.Exit(1)
	}

	processor, closeStore, err := handler.NewProcessorFromEnv(context.Background(), client, log)
	if err != nil {
		log.Error("failed to configure feed processor", "error", err)
		os.Exit(1)
	}

	lambda.StartWithOptions(processor.Handle, lambda.WithEnableSIGTERM(closeOnShutdown(closeStore, log)))
}

// closeOnShutdown releases the cursor store when the runtime sends SIGTERM, since the handler
// loop never returns.
func closeOnShutdown(closeStore func() error, log *slog.Logger) func() {
	return func() {
		if err := closeStore(); err != nil {
			log.Warn("failed to close cursor store", "error", err)
			return
		}
		log.Info("cursor store closed")
	}
}
