// Package main provides the HTTP server for pricecat.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/pricecat/internal/app"
	"github.com/raphaelgruber/pricecat/internal/config"
	"github.com/raphaelgruber/pricecat/internal/server"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from the store on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	// Dual output: stderr text + file JSON
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("pricecat-server starting",
		"version", version,
		"store", cfg.Store,
		"embed_provider", cfg.EmbedProvider,
		"embed_model", cfg.EmbedModel,
		"port", cfg.ServerPort,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close app", "error", err)
		}
	}()

	if *wipeDB || os.Getenv("PRICECAT_WIPE_DB") == "true" {
		wipeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := a.WipeData(wipeCtx)
		cancel()
		if err != nil {
			logger.Error("failed to wipe store", "error", err)
			os.Exit(1)
		}
		logger.Warn("store wiped")
	}

	srv := server.New(server.Deps{
		Catalog:   a.Catalog,
		Jobs:      a.Jobs,
		Search:    a.Search,
		Vectorize: a.Vectorize,
		Metrics:   a.Metrics,
		BatchSize: cfg.BatchSize,
	}, logger)

	if cfg.AutoVectorize {
		if nc := a.NATS(); nc != nil {
			sub, err := srv.EnableAutoVectorize(nc)
			if err != nil {
				logger.Error("failed to enable auto-vectorize", "error", err)
				os.Exit(1)
			}
			defer func() { _ = sub.Unsubscribe() }()
		} else {
			logger.Warn("auto-vectorize needs NATS_URL; disabled")
		}
	}

	if err := srv.Run(ctx, fmt.Sprintf(":%d", cfg.ServerPort)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
