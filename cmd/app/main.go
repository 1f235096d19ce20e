package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/bootstrap"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := bootstrap.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("wire dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close(logger)

	if err := bootstrap.Run(ctx, cfg, deps.Service, deps.Registry, logger, deps.Probes()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
