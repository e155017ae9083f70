package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/existflow/irontrack/internal/cli"
	"github.com/existflow/irontrack/internal/config"
	"github.com/existflow/irontrack/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	logCfg.Console = true
	if cfg.LogFile != "" {
		logCfg.FilePath = cfg.LogFile
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("IronTrack sync server starting", logger.F("addr", cfg.Server.Addr))
	if err := cli.Serve(ctx, cfg); err != nil {
		logger.Error("Server failed", logger.F("error", err))
		os.Exit(1)
	}
}
