package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/berniyo/twikey-lambda/internal/common/logger"
	"github.com/berniyo/twikey-lambda/internal/handler"
	"github.com/berniyo/twikey-lambda/internal/server"
	"github.com/berniyo/twikey-lambda/internal/twikey"
	"github.com/berniyo/twikey-lambda/internal/webhook"
)

func main() {
	log := logger.New(
		logger.WithLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL"))),
		logger.WithService("twikey-webhook"),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := twikey.NewClientFromEnv(nil, twikey.WithLogger(log))
	if err != nil {
		log.Error("failed to configure twikey client", "error", err)
		os.Exit(1)
	}

	processor, closeStore, err := handler.NewProcessorFromEnv(ctx, client, log)
	if err != nil {
		log.Error("failed to configure feed processor", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	webhookService, err := webhook.New(os.Getenv("TWIKEY_API_KEY"), processor, log)
	if err != nil {
		log.Error("failed to configure webhook service", "error", err)
		os.Exit(1)
	}

	host := strings.TrimSpace(os.Getenv("WEBHOOK_HOST"))
	if host == "" {
		host = server.AnyHost
	}

	s := server.New(os.Getenv("LISTEN_ADDR"))
	s.RegisterDomain(host, webhookService.Chi())

	log.Info("starting webhook server", "addr", s.Addr, "host", host)
	if err := s.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	if err := client.Logout(context.Background()); err != nil {
		log.Warn("twikey logout failed", "error", err)
	}
}
