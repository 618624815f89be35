package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"donasi/internal/bootstrap"
	"donasi/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel, "worker")
	if cfg.StoreDriver == infra.StoreDriverMemory {
		logger.Fatal().Msg("worker: memory store cannot be shared with the api, use STORE_DRIVER=postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer stores.Close()

	notifier := bootstrap.NewNotifier(cfg, logger)
	engine := bootstrap.NewEngine(cfg, stores, notifier, logger)

	sw, cleanup, err := bootstrap.NewSweeper(ctx, cfg, stores, engine, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure sweeper")
	}
	defer cleanup()

	if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := notifier.Close(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("worker: notifier did not drain")
	}
	logger.Info().Msg("worker: stopped")
}
