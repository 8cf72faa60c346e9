package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"keyforge/internal/app"
	"keyforge/internal/config"
	"keyforge/internal/infrastructure"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file (defaults to KEYFORGE_CONFIG or ./config.yaml)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadFrom(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	paths, err := config.GetPaths(cfg)
	if err == nil {
		err = paths.EnsureDirectories()
	}
	if err != nil {
		slog.Error("Failed to prepare data directories", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", slog.String("error", err.Error()))
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	application, err := app.NewApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		infrastructure.CloseLogFile()
		os.Exit(1)
	}
}
