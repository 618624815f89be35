// Package notify delivers committed donation transitions to user-facing
// channels without ever blocking or reversing the transition itself.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"donasi/internal/domain"
)

// ErrClosed is returned when a transition is queued after Close.
var ErrClosed = errors.New("notifier closed")

// Async queues transitions for a wrapped Notifier and delivers them from a
// single background goroutine. Enqueueing never blocks: when the queue is
// full the transition is dropped and logged.
type Async struct {
	next    domain.Notifier
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Transition
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. size is the queue capacity.
func NewAsync(next domain.Notifier, size int, logger zerolog.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		next:    next,
		logger:  logger.With().Str("component", "notify").Logger(),
		timeout: 10 * time.Second,
		queue:   make(chan domain.Transition, size),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// NotifyTransition enqueues t for delivery.
func (a *Async) NotifyTransition(_ context.Context, t domain.Transition) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- t:
		return nil
	default:
		a.logger.Warn().
			Str("donation_id", t.DonationID).
			Str("status", string(t.To)).
			Msg("notify: queue full, dropping transition")
		return nil
	}
}

// Close stops accepting transitions and waits for queued ones to be
// delivered or for ctx to expire.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for t := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.NotifyTransition(ctx, t); err != nil {
			a.logger.Error().Err(err).
				Str("donation_id", t.DonationID).
				Str("status", string(t.To)).
				Msg("notify: delivery failed")
		}
		cancel()
	}
}

// Multi fans a transition out to several notifiers, returning the joined
// errors of the ones that failed.
type Multi []domain.Notifier

func (m Multi) NotifyTransition(ctx context.Context, t domain.Transition) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyTransition(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
