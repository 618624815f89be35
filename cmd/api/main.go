package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"donasi/internal/bootstrap"
	"donasi/internal/gateway"
	"donasi/internal/http/handlers"
	httpapi "donasi/internal/http/httpapi"
	"donasi/internal/infra"
	"donasi/internal/infra/geoip"
	"donasi/internal/middleware"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer stores.Close()

	notifier := bootstrap.NewNotifier(cfg, logger)
	engine := bootstrap.NewEngine(cfg, stores, notifier, logger)

	app := handlers.NewApp(engine, stores.Donations, stores.Ledger, gateway.NewVerifier(cfg.GatewayServerKey), logger, cfg.Location())
	app.Ping = stores.Ping

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open geoip database")
	}
	var lookup middleware.CountryLookup
	if geo != nil {
		defer geo.Close()
		lookup = geo.CountryCode
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.NotifyLocale,
		CountryLookup:   lookup,
	})
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, donor routes accept anonymous requests only")
	}

	// The memory store is private to this process, so the worker cannot
	// reach it; sweep here instead.
	sweepDone := make(chan struct{})
	if cfg.StoreDriver == infra.StoreDriverMemory {
		sw, cleanup, err := bootstrap.NewSweeper(ctx, cfg, stores, engine, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure sweeper")
		}
		go func() {
			defer close(sweepDone)
			defer cleanup()
			if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("sweeper stopped")
			}
		}()
	} else {
		close(sweepDone)
	}

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	<-sweepDone
	if err := notifier.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("notifier did not drain")
	}
	logger.Info().Msg("server stopped")
}
