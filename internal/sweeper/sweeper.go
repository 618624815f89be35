// Package sweeper expires donations that stayed PENDING past their checkout
// window by asking the reconciliation engine for the EXPIRED status.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"donasi/internal/domain"
	"donasi/internal/reconcile"
)

// Transitioner is the slice of the reconciliation engine the sweeper uses.
type Transitioner interface {
	RequestTransition(ctx context.Context, req reconcile.TransitionRequest) (reconcile.TransitionResult, error)
}

// Lease keeps sweep cycles of different processes from overlapping.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// Config tunes a Sweeper.
type Config struct {
	Interval    time.Duration
	PendingTTL  time.Duration
	BatchSize   int
	Concurrency int
}

// Report summarises one sweep cycle.
type Report struct {
	Bucket         int64
	Scanned        int
	Expired        int
	AlreadyExpired int
	Conflicts      int
	NotFound       int
	Failed         int
	Skipped        bool
}

// Sweeper periodically expires stale pending donations.
type Sweeper struct {
	store   domain.DonationRepository
	engine  Transitioner
	lease   Lease
	logger  zerolog.Logger
	cfg     Config
	now     func() time.Time
	running atomic.Bool
}

// New builds a sweeper. lease may be nil for single-instance deployments.
func New(store domain.DonationRepository, engine Transitioner, lease Lease, logger zerolog.Logger, cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Sweeper{
		store:  store,
		engine: engine,
		lease:  lease,
		logger: logger.With().Str("component", "sweeper").Logger(),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("pending_ttl", s.cfg.PendingTTL).
		Msg("sweeper: started")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("sweeper: cycle failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single cycle. A cycle that overlaps a still-running one,
// in this process or another holding the lease, is skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	start := s.now()
	report := Report{Bucket: start.Truncate(s.cfg.Interval).Unix()}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("sweeper: previous cycle still running, skipping")
		report.Skipped = true
		return report, nil
	}
	defer s.running.Store(false)

	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.cfg.Interval)
		if err != nil {
			// Overlap only wastes work, so a lease outage does not stop sweeping.
			s.logger.Warn().Err(err).Msg("sweeper: lease unavailable, sweeping without it")
		} else if !ok {
			s.logger.Debug().Msg("sweeper: lease held elsewhere, skipping")
			report.Skipped = true
			return report, nil
		} else {
			defer func() {
				if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn().Err(err).Msg("sweeper: release lease failed")
				}
			}()
		}
	}

	stale, err := s.store.ListStalePending(ctx, start.Add(-s.cfg.PendingTTL), s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list stale donations: %w", err)
	}
	report.Scanned = len(stale)
	if len(stale) == 0 {
		return report, nil
	}

	outcomes := make([]outcome, len(stale))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, d := range stale {
		i, d := i, d
		g.Go(func() error {
			outcomes[i] = s.expire(gctx, d.ID, report.Bucket)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeExpired:
			report.Expired++
		case outcomeNoop:
			report.AlreadyExpired++
		case outcomeConflict:
			report.Conflicts++
		case outcomeNotFound:
			report.NotFound++
		default:
			report.Failed++
		}
	}

	s.logger.Info().
		Int64("bucket", report.Bucket).
		Int("scanned", report.Scanned).
		Int("expired", report.Expired).
		Int("already_expired", report.AlreadyExpired).
		Int("conflicts", report.Conflicts).
		Int("failed", report.Failed).
		Dur("took", s.now().Sub(start)).
		Msg("sweeper: cycle done")
	return report, ctx.Err()
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeExpired
	outcomeNoop
	outcomeConflict
	outcomeNotFound
)

func (s *Sweeper) expire(ctx context.Context, donationID string, bucket int64) outcome {
	res, err := s.engine.RequestTransition(ctx, reconcile.TransitionRequest{
		DonationID:    donationID,
		Target:        domain.StatusExpired,
		SourceEventID: SweepEventID(donationID, bucket),
		Source:        domain.SourceSweeper,
	})
	switch {
	case err == nil && res.Applied:
		return outcomeExpired
	case err == nil:
		return outcomeNoop
	case errors.Is(err, domain.ErrConflict):
		// A genuine callback won the race; nothing to do.
		s.logger.Info().Str("donation_id", donationID).Msg("sweeper: donation settled before expiry")
		return outcomeConflict
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn().Str("donation_id", donationID).Msg("sweeper: donation vanished")
		return outcomeNotFound
	default:
		s.logger.Error().Err(err).Str("donation_id", donationID).Msg("sweeper: expire failed, will retry next cycle")
		return outcomeFailed
	}
}

// SweepEventID is the idempotency token of one sweep attempt on a donation.
func SweepEventID(donationID string, bucket int64) string {
	return fmt.Sprintf("sweep:%s:%d", donationID, bucket)
}
