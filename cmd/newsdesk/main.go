package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"NewsDesk/internal/app"
	"NewsDesk/internal/config"
	"NewsDesk/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single refresh and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if *once {
		if err := application.RunOnce(ctx); err != nil {
			logger.Error("refresh run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
