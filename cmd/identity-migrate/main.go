// Command identity-migrate applies the embedded accounts schema migrations.
package main

import (
	"flag"
	"os"

	"github.com/allocar/identity/settings"
	"github.com/allocar/identity/store/postgres"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := settings.Load("")
	if err != nil {
		logger.Fatal("load settings", zap.Error(err))
	}

	if err := postgres.Migrate(cfg.DatabaseURL, *direction); err != nil {
		logger.Fatal("migrate failed", zap.String("direction", *direction), zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("direction", *direction))
}
