package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smiyakawa/kiosk-relay/api/routes"
	"github.com/smiyakawa/kiosk-relay/internal/events"
	"github.com/smiyakawa/kiosk-relay/internal/relay"
	"github.com/smiyakawa/kiosk-relay/internal/stream"
	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/db"
	"github.com/smiyakawa/kiosk-relay/pkg/line"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
	"github.com/smiyakawa/kiosk-relay/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "kiosk-gateway",
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

	lineClient, err := line.NewClient(ctx, cfg.Line, logg)
	if err != nil {
		logg.Error(ctx, "line client init failed", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	streamMetrics := metrics.NewStreamMetrics(registry)

	repo := events.NewRepository(dbClient.DB())
	publisher := stream.NewPublisher(repo, streamMetrics, logg, cfg.Stream)
	sender := relay.NewService(lineClient, repo, cfg.Line.DefaultDeviceID, logg)

	// Open SSE connections inherit the signal context, so a shutdown cancels
	// every stream before the listener closes.
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           routes.Gateway(publisher, sender, registry, logg),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, fmt.Sprintf("gateway listening on :%s", cfg.App.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "server stopped", err)
		os.Exit(1)
	}
}
