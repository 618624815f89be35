package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DonationStatus is the lifecycle state of a donation.
type DonationStatus string

const (
	StatusPending  DonationStatus = "PENDING"
	StatusAccepted DonationStatus = "ACCEPTED"
	StatusExpired  DonationStatus = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s DonationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected from s.
func (s DonationStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusExpired
}

// ParseStatus normalizes user or database input into a DonationStatus.
func ParseStatus(v string) (DonationStatus, error) {
	s := DonationStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown donation status %q", v)
	}
	return s, nil
}

// MaxAmount is the largest amount a numeric(18,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999999999.99")

// Donation represents a supporter contribution record.
type Donation struct {
	ID                     string
	DonorReference         *string
	Amount                 decimal.Decimal
	Note                   string
	PeriodKey              string
	Status                 DonationStatus
	ExternalTransactionRef string
	CreatedAt              time.Time
	LastTransitionAt       *time.Time
	UpdatedAt              time.Time
}

// NewDonation captures the immutable fields of a checkout that has just been
// started. ID and ExternalTransactionRef are filled by the caller.
type NewDonation struct {
	ID                     string
	DonorReference         *string
	Amount                 decimal.Decimal
	Note                   string
	ExternalTransactionRef string
	CreatedAt              time.Time
}

// Validate checks the creation payload.
func (n NewDonation) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidRequest)
	}
	if strings.TrimSpace(n.ExternalTransactionRef) == "" {
		return fmt.Errorf("%w: external transaction ref required", ErrInvalidRequest)
	}
	if !n.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if n.Amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: amount exceeds %s", ErrInvalidRequest, MaxAmount.String())
	}
	if n.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at required", ErrInvalidRequest)
	}
	return nil
}

// TransitionSource identifies which caller asked for a transition.
type TransitionSource string

const (
	SourceGateway TransitionSource = "gateway"
	SourceSweeper TransitionSource = "sweeper"
	SourceCancel  TransitionSource = "cancel"
)

// Transition is a committed status change, handed to the notifier.
type Transition struct {
	DonationID    string
	SourceEventID string
	Source        TransitionSource
	From          DonationStatus
	To            DonationStatus
	Amount        decimal.Decimal
	PeriodKey     string
	At            time.Time
}

// ConflictRecord captures a rejected contradictory transition request.
type ConflictRecord struct {
	DonationID    string
	SourceEventID string
	Source        TransitionSource
	Current       DonationStatus
	Requested     DonationStatus
	At            time.Time
}

// Decision is the outcome of evaluating a transition request against the
// donation's current status.
type Decision int

const (
	DecisionApply Decision = iota
	DecisionNoop
	DecisionConflict
)

// Decide evaluates a transition from current to target. It never mutates
// anything; callers must have read current under the same unit of work that
// will apply the change.
func Decide(current, target DonationStatus) (Decision, error) {
	if !target.Terminal() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	switch {
	case current == target:
		return DecisionNoop, nil
	case current == StatusPending:
		return DecisionApply, nil
	case current.Terminal():
		return DecisionConflict, nil
	default:
		return 0, fmt.Errorf("donation in unknown status %q", current)
	}
}
