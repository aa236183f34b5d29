package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/smiyakawa/kiosk-relay/pkg/config"
	"github.com/smiyakawa/kiosk-relay/pkg/db"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
	"github.com/smiyakawa/kiosk-relay/pkg/migrate"
)

// Usage: migrate <up|down|status|...> [args]
func main() {
	_ = godotenv.Load()

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "kiosk-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.SQLDB()
	if err != nil {
		logg.Error(ctx, "getting sql handle", err)
		os.Exit(1)
	}

	if err := migrate.Run(ctx, sqlDB, migrate.DefaultDir, command, args...); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, fmt.Sprintf("migration %s complete", command))
}
