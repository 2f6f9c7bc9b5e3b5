// Package main is the entry point for the CareDraft API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caredraft/config"
	"caredraft/internal/app"
	"caredraft/internal/logging"
	"caredraft/internal/version"
)

const defaultShutdownTimeout = 30 * time.Second

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	configPath := flag.String("config", "", "Path to the YAML config file (default: $"+config.PathEnv+" or "+config.DefaultPath+")")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Format, cfg.Logging.Level)
	slog.SetDefault(logger)

	logger.Info("starting caredraft",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + cfg.Server.Port); err != nil {
		logger.Error("server error", "error", err)
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}
	<-done
}
