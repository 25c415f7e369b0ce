package main

import (
	"context"
	"flag"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/pkg/config"
	"github.com/noah-isme/sma-health-api/pkg/database"
	"github.com/noah-isme/sma-health-api/pkg/logger"
)

func main() {
	steps := flag.Int("steps", 0, "maximum migrations to apply (0 = all for up, 1 for down)")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	switch command {
	case "up":
		n, err := database.Migrate(db, migrate.Up, *steps)
		if err != nil {
			logr.Fatal("migrate up failed", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Int("count", n))
	case "down":
		limit := *steps
		if limit <= 0 {
			limit = 1
		}
		n, err := database.Migrate(db, migrate.Down, limit)
		if err != nil {
			logr.Fatal("migrate down failed", zap.Error(err))
		}
		logr.Info("migrations rolled back", zap.Int("count", n))
	case "status":
		pending, err := database.Pending(db)
		if err != nil {
			logr.Fatal("migrate status failed", zap.Error(err))
		}
		logr.Info("pending migrations", zap.Int("count", len(pending)), zap.Strings("ids", pending))
	default:
		logr.Fatal("unknown command, expected up, down or status", zap.String("command", command))
	}
}
