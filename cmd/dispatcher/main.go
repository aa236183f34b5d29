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
	"github.com/smiyakawa/kiosk-relay/internal/choices"
	"github.com/smiyakawa/kiosk-relay/internal/events"
	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/db"
	"github.com/smiyakawa/kiosk-relay/pkg/genai"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
	"github.com/smiyakawa/kiosk-relay/pkg/pubsub"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "kiosk-dispatcher",
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

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "pubsub unavailable", err)
		os.Exit(1)
	}
	defer psClient.Close()
	if err := psClient.EnsurePushSubscription(ctx); err != nil {
		logg.Error(ctx, "push subscription check failed", err)
		os.Exit(1)
	}

	var generator events.ChoiceGenerator
	if cfg.Gemini.Enabled() {
		model, err := genai.NewClient(ctx, cfg.Gemini, logg)
		if err != nil {
			logg.Error(ctx, "gemini client init failed", err)
			os.Exit(1)
		}
		generator = choices.NewGenerator(model, logg)
	} else {
		logg.Info(ctx, "gemini disabled, reply choices fall back to defaults")
		generator = choices.NewGenerator(nil, logg)
	}

	repo := events.NewRepository(dbClient.DB())
	ingestor := events.NewIngestor(repo, generator, logg)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           routes.Dispatcher(ingestor, logg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, fmt.Sprintf("dispatcher listening on :%s", cfg.App.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "server stopped", err)
		os.Exit(1)
	}
}
