package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DonationRepository handles donation persistence outside of transitions.
type DonationRepository interface {
	Create(ctx context.Context, donation NewDonation, periodKey string) (*Donation, error)
	GetByID(ctx context.Context, id string) (*Donation, error)
	GetByExternalRef(ctx context.Context, ref string) (*Donation, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Donation, error)
}

// LedgerRepository exposes committed ledger totals.
type LedgerRepository interface {
	GetPeriod(ctx context.Context, periodKey string) (*LedgerPeriod, error)
	ListPeriods(ctx context.Context, limit int) ([]LedgerPeriod, error)
	Verify(ctx context.Context, periodKey string) (*LedgerDrift, error)
}

// TransitionStore runs units of work scoped to one donation row and the
// ledger period it belongs to. Implementations must hold an exclusive lock
// on the donation for the whole callback and commit every write made through
// DonationTx atomically, or none of them when fn returns an error.
type TransitionStore interface {
	WithDonationLock(ctx context.Context, donationID string, fn func(tx DonationTx) error) error
	RecordConflict(ctx context.Context, rec ConflictRecord) error
}

// DonationTx is the locked view handed to a TransitionStore callback.
type DonationTx interface {
	// Donation returns the state read under the lock.
	Donation() Donation
	SetStatus(ctx context.Context, status DonationStatus, at time.Time) error
	// AddIncome stamps the period with at, the time of the transition.
	AddIncome(ctx context.Context, periodKey string, amount decimal.Decimal, at time.Time) (*LedgerPeriod, error)
	RecordTransition(ctx context.Context, t Transition) error
}

// Notifier surfaces committed transitions to the outside world. Calls are
// fire-and-forget from the reconciliation path: an error is logged and never
// reverses the transition.
type Notifier interface {
	NotifyTransition(ctx context.Context, t Transition) error
}
