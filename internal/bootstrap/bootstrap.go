// Package bootstrap wires configuration into the stores, engine, notifier
// and sweeper shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"donasi/internal/adapter/memstore"
	"donasi/internal/adapter/repo"
	"donasi/internal/domain"
	"donasi/internal/infra"
	"donasi/internal/notify"
	"donasi/internal/reconcile"
	"donasi/internal/sweeper"
)

// Stores groups the storage ports of one backend.
type Stores struct {
	Donations   domain.DonationRepository
	Ledger      domain.LedgerRepository
	Transitions domain.TransitionStore
	// Ping is nil for the memory backend.
	Ping  func(ctx context.Context) error
	close func()
}

func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores connects the backend selected by STORE_DRIVER.
func OpenStores(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Stores, error) {
	if cfg.StoreDriver == infra.StoreDriverMemory {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		m := memstore.New()
		return &Stores{Donations: m, Ledger: m, Transitions: m}, nil
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	return &Stores{
		Donations:   repo.NewDonationRepository(runner),
		Ledger:      repo.NewLedgerRepository(runner),
		Transitions: repo.NewTransitionStore(runner),
		Ping:        pool.Ping,
		close:       pool.Close,
	}, nil
}

// NewNotifier returns the asynchronous log notifier. Callers must Close it
// on shutdown to flush queued transitions.
func NewNotifier(cfg *infra.Config, logger zerolog.Logger) *notify.Async {
	return notify.NewAsync(notify.NewLogNotifier(logger, cfg.NotifyLocale), cfg.NotifyQueueSize, logger)
}

func NewEngine(cfg *infra.Config, stores *Stores, notifier domain.Notifier, logger zerolog.Logger) *reconcile.Engine {
	return reconcile.NewEngine(stores.Transitions, notifier, logger, reconcile.Options{
		MaxAttempts: cfg.Reconcile.MaxAttempts,
		Backoff:     cfg.Reconcile.Backoff,
	})
}

// NewSweeper builds the expiration sweeper. With REDIS_URL set, cycles are
// coordinated across instances through a Redis lease; an unreachable Redis
// only downgrades to uncoordinated sweeping.
func NewSweeper(ctx context.Context, cfg *infra.Config, stores *Stores, engine sweeper.Transitioner, logger zerolog.Logger) (*sweeper.Sweeper, func(), error) {
	sweepCfg := sweeper.Config{
		Interval:    cfg.Sweep.Interval,
		PendingTTL:  cfg.Sweep.PendingTTL,
		BatchSize:   cfg.Sweep.BatchSize,
		Concurrency: cfg.Sweep.Concurrency,
	}
	if sweepCfg.Interval <= 0 {
		return nil, nil, fmt.Errorf("sweep interval must be positive")
	}

	cleanup := func() {}
	var lease sweeper.Lease
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, sweeping without lease")
		} else {
			lease = infra.NewRedisLease(client, cfg.Sweep.LeaseKey)
			cleanup = func() { _ = client.Close() }
		}
	}
	return sweeper.New(stores.Donations, engine, lease, logger, sweepCfg), cleanup, nil
}
