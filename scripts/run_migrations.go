package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/pickle-storefront/internal/config"
	"github.com/safar/pickle-storefront/internal/database"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	run := database.MigrateUp
	if direction == "down" {
		run = database.MigrateDown
	}

	if err := run(db); err != nil {
		logger.Fatal("run migrations", zap.String("direction", direction), zap.Error(err))
	}
	logger.Info("cart schema migrated", zap.String("direction", direction))
}
