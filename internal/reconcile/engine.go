// Package reconcile applies donation status transitions and their ledger
// effect exactly once per logical payment event.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"donasi/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 50 * time.Millisecond
)

// TransitionRequest asks for a donation to reach a terminal status.
// SourceEventID is the caller's idempotency token; it is kept for audit and
// notification dedup, correctness does not depend on it.
type TransitionRequest struct {
	DonationID    string
	Target        domain.DonationStatus
	SourceEventID string
	Source        domain.TransitionSource
}

// TransitionResult describes the donation after the request was handled.
type TransitionResult struct {
	Donation domain.Donation
	Previous domain.DonationStatus
	Applied  bool
	Period   *domain.LedgerPeriod
}

// Options tune an Engine.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Now         func() time.Time
}

// Engine is the donation status state machine.
type Engine struct {
	store       domain.TransitionStore
	notifier    domain.Notifier
	logger      zerolog.Logger
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

// NewEngine wires an engine. notifier may be nil.
func NewEngine(store domain.TransitionStore, notifier domain.Notifier, logger zerolog.Logger, opts Options) *Engine {
	e := &Engine{
		store:       store,
		notifier:    notifier,
		logger:      logger.With().Str("component", "reconcile").Logger(),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		now:         opts.Now,
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultMaxAttempts
	}
	if e.backoff <= 0 {
		e.backoff = defaultBackoff
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Accept requests the ACCEPTED status.
func (e *Engine) Accept(ctx context.Context, donationID, sourceEventID string, source domain.TransitionSource) (TransitionResult, error) {
	return e.RequestTransition(ctx, TransitionRequest{
		DonationID:    donationID,
		Target:        domain.StatusAccepted,
		SourceEventID: sourceEventID,
		Source:        source,
	})
}

// Expire requests the EXPIRED status.
func (e *Engine) Expire(ctx context.Context, donationID, sourceEventID string, source domain.TransitionSource) (TransitionResult, error) {
	return e.RequestTransition(ctx, TransitionRequest{
		DonationID:    donationID,
		Target:        domain.StatusExpired,
		SourceEventID: sourceEventID,
		Source:        source,
	})
}

// RequestTransition moves a pending donation to req.Target and applies the
// ledger delta in the same unit of work. A replay towards the status the
// donation already holds succeeds without side effects; a request towards a
// different terminal status fails with a *domain.ConflictError.
func (e *Engine) RequestTransition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	if err := validate(req); err != nil {
		return TransitionResult{}, err
	}

	var (
		res TransitionResult
		err error
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		res, err = e.attempt(ctx, req)
		if err == nil || !errors.Is(err, domain.ErrTransientStorage) || attempt == e.maxAttempts {
			break
		}
		e.logger.Warn().Err(err).
			Str("donation_id", req.DonationID).
			Str("source_event_id", req.SourceEventID).
			Int("attempt", attempt).
			Msg("reconcile: transient storage failure, retrying")
		select {
		case <-ctx.Done():
			return TransitionResult{}, ctx.Err()
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}

	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		e.recordConflict(ctx, req, conflict)
		return TransitionResult{}, err
	case err != nil:
		return TransitionResult{}, err
	}

	log := e.logger.Info()
	if !res.Applied {
		log = e.logger.Debug()
	}
	log.Str("donation_id", req.DonationID).
		Str("source_event_id", req.SourceEventID).
		Str("source", string(req.Source)).
		Str("from", string(res.Previous)).
		Str("to", string(res.Donation.Status)).
		Bool("applied", res.Applied).
		Msg("reconcile: transition handled")

	if res.Applied {
		e.notify(ctx, req, res)
	}
	return res, nil
}

func (e *Engine) attempt(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	var res TransitionResult
	err := e.store.WithDonationLock(ctx, req.DonationID, func(tx domain.DonationTx) error {
		current := tx.Donation()
		res = TransitionResult{Donation: current, Previous: current.Status}

		decision, err := domain.Decide(current.Status, req.Target)
		if err != nil {
			return err
		}
		switch decision {
		case domain.DecisionNoop:
			return nil
		case domain.DecisionConflict:
			return &domain.ConflictError{
				DonationID: current.ID,
				Current:    current.Status,
				Requested:  req.Target,
			}
		}

		at := e.now().UTC()
		if err := tx.SetStatus(ctx, req.Target, at); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		if req.Target == domain.StatusAccepted {
			period, err := tx.AddIncome(ctx, current.PeriodKey, current.Amount, at)
			if err != nil {
				return fmt.Errorf("add income: %w", err)
			}
			res.Period = period
		}
		if err := tx.RecordTransition(ctx, domain.Transition{
			DonationID:    current.ID,
			SourceEventID: req.SourceEventID,
			Source:        req.Source,
			From:          current.Status,
			To:            req.Target,
			Amount:        current.Amount,
			PeriodKey:     current.PeriodKey,
			At:            at,
		}); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}

		res.Applied = true
		res.Donation.Status = req.Target
		res.Donation.LastTransitionAt = &at
		res.Donation.UpdatedAt = at
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return res, nil
}

func (e *Engine) recordConflict(ctx context.Context, req TransitionRequest, conflict *domain.ConflictError) {
	e.logger.Warn().
		Str("donation_id", req.DonationID).
		Str("source_event_id", req.SourceEventID).
		Str("source", string(req.Source)).
		Str("current", string(conflict.Current)).
		Str("requested", string(conflict.Requested)).
		Msg("reconcile: conflicting transition rejected")

	rec := domain.ConflictRecord{
		DonationID:    req.DonationID,
		SourceEventID: req.SourceEventID,
		Source:        req.Source,
		Current:       conflict.Current,
		Requested:     conflict.Requested,
		At:            e.now().UTC(),
	}
	if err := e.store.RecordConflict(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Error().Err(err).Str("donation_id", req.DonationID).Msg("reconcile: record conflict failed")
	}
}

func (e *Engine) notify(ctx context.Context, req TransitionRequest, res TransitionResult) {
	if e.notifier == nil {
		return
	}
	t := domain.Transition{
		DonationID:    res.Donation.ID,
		SourceEventID: req.SourceEventID,
		Source:        req.Source,
		From:          res.Previous,
		To:            res.Donation.Status,
		Amount:        res.Donation.Amount,
		PeriodKey:     res.Donation.PeriodKey,
		At:            *res.Donation.LastTransitionAt,
	}
	if err := e.notifier.NotifyTransition(context.WithoutCancel(ctx), t); err != nil {
		e.logger.Error().Err(err).Str("donation_id", t.DonationID).Msg("reconcile: notify failed")
	}
}

func validate(req TransitionRequest) error {
	if strings.TrimSpace(req.DonationID) == "" {
		return domain.ErrNotFound
	}
	if !req.Target.Terminal() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTarget, req.Target)
	}
	if strings.TrimSpace(req.SourceEventID) == "" {
		return fmt.Errorf("%w: source event id required", domain.ErrInvalidRequest)
	}
	return nil
}
