// cmd/featured runs scheduled indicator batches over the bar store and serves
// metrics, health, profile reload and the websocket row feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"market-features/config"
	"market-features/internal/logger"
	"market-features/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[featured] %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init("featured", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[featured] logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := pipeline.NewApp(ctx, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		log.Fatal("init failed", zap.Error(err))
	}
	if err := app.Run(ctx); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
	log.Info("stopped")
}
