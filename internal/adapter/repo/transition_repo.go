package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"donasi/internal/domain"
	"donasi/internal/infra"
	"donasi/internal/sqlinline"
)

// TransitionStorePG implements domain.TransitionStore with a row lock on the
// donation (SELECT ... FOR UPDATE) and an additive update of its ledger
// period inside the same transaction. Unrelated donations never contend; two
// donations of the same period only serialize on the short period update.
type TransitionStorePG struct {
	sql infra.TxExecutor
}

// NewTransitionStore constructs the store.
func NewTransitionStore(sql infra.TxExecutor) *TransitionStorePG {
	return &TransitionStorePG{sql: sql}
}

func (s *TransitionStorePG) WithDonationLock(ctx context.Context, donationID string, fn func(tx domain.DonationTx) error) error {
	if _, err := uuid.Parse(donationID); err != nil {
		return domain.ErrNotFound
	}
	err := s.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		current, err := scanDonation(tx.QueryRow(ctx, sqlinline.QLockDonation, donationID))
		if err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("lock donation: %w", err)
		}
		return fn(&pgDonationTx{sql: tx, current: *current})
	})
	if err == nil || isDomainOutcome(err) {
		return err
	}
	return infra.ClassifyStorageError("donation transition", err)
}

func (s *TransitionStorePG) RecordConflict(ctx context.Context, rec domain.ConflictRecord) error {
	_, err := s.sql.Exec(ctx, sqlinline.QInsertTransitionConflict,
		rec.DonationID, rec.SourceEventID, string(rec.Source), string(rec.Current), string(rec.Requested), rec.At)
	return infra.ClassifyStorageError("record conflict", err)
}

func isDomainOutcome(err error) bool {
	return errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidTarget)
}

type pgDonationTx struct {
	sql     infra.SQLExecutor
	current domain.Donation
}

func (t *pgDonationTx) Donation() domain.Donation { return t.current }

func (t *pgDonationTx) SetStatus(ctx context.Context, status domain.DonationStatus, at time.Time) error {
	tag, err := t.sql.Exec(ctx, sqlinline.QUpdateDonationStatus, t.current.ID, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("donation %s left PENDING under lock", t.current.ID)
	}
	return nil
}

func (t *pgDonationTx) AddIncome(ctx context.Context, periodKey string, amount decimal.Decimal, at time.Time) (*domain.LedgerPeriod, error) {
	p, err := scanPeriod(t.sql.QueryRow(ctx, sqlinline.QAddLedgerIncome, periodKey, amount, at.UTC()))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("ledger period %s missing", periodKey)
		}
		return nil, err
	}
	return p, nil
}

func (t *pgDonationTx) RecordTransition(ctx context.Context, tr domain.Transition) error {
	_, err := t.sql.Exec(ctx, sqlinline.QInsertDonationTransition,
		tr.DonationID, tr.SourceEventID, string(tr.Source), string(tr.From), string(tr.To), tr.Amount, tr.PeriodKey, tr.At)
	return err
}

var _ domain.TransitionStore = (*TransitionStorePG)(nil)
