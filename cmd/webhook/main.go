package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/smiyakawa/kiosk-relay/api/routes"
	"github.com/smiyakawa/kiosk-relay/internal/linewebhook"
	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/db"
	"github.com/smiyakawa/kiosk-relay/pkg/line"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
	"github.com/smiyakawa/kiosk-relay/pkg/pubsub"
	"github.com/smiyakawa/kiosk-relay/pkg/redis"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "kiosk-webhook",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "redis unavailable", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "pubsub unavailable", err)
		os.Exit(1)
	}
	defer psClient.Close()

	topic := psClient.EventsTopic()
	if topic == nil {
		logg.Error(ctx, "events topic is not configured", nil)
		os.Exit(1)
	}
	defer topic.Stop()

	lineClient, err := line.NewClient(ctx, cfg.Line, logg)
	if err != nil {
		logg.Error(ctx, "line client init failed", err)
		os.Exit(1)
	}

	service := linewebhook.NewService(
		lineClient,
		topic,
		linewebhook.NewArchiveRepository(dbClient.DB()),
		linewebhook.NewDeliveryGuard(redisClient, 0),
		cfg.Line,
		logg,
	)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           routes.Webhook(service, cfg.Line, logg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, fmt.Sprintf("webhook listening on :%s", cfg.App.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "server stopped", err)
		os.Exit(1)
	}
}
