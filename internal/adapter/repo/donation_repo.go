package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"donasi/internal/domain"
	"donasi/internal/infra"
	"donasi/internal/sqlinline"
)

// DonationRepositoryPG implements DonationRepository using PostgreSQL.
type DonationRepositoryPG struct {
	sql infra.TxExecutor
}

// NewDonationRepository creates a new donation repo.
func NewDonationRepository(sql infra.TxExecutor) *DonationRepositoryPG {
	return &DonationRepositoryPG{sql: sql}
}

// Create inserts a pending donation and the ledger period it belongs to in
// one transaction.
func (r *DonationRepositoryPG) Create(ctx context.Context, in domain.NewDonation, periodKey string) (*domain.Donation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(in.ID); err != nil {
		return nil, fmt.Errorf("%w: id must be a uuid", domain.ErrInvalidRequest)
	}
	donor := ""
	if in.DonorReference != nil {
		donor = *in.DonorReference
	}

	var out *domain.Donation
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QEnsureLedgerPeriod, periodKey); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, sqlinline.QInsertDonation,
			in.ID, donor, in.Amount, in.Note, periodKey, in.ExternalTransactionRef, in.CreatedAt.UTC())
		d, err := scanDonation(row)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: donation already exists", domain.ErrInvalidRequest)
		}
		return nil, infra.ClassifyStorageError("create donation", err)
	}
	return out, nil
}

// GetByID returns the committed state of a donation.
func (r *DonationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	d, err := scanDonation(r.sql.QueryRow(ctx, sqlinline.QSelectDonationByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, infra.ClassifyStorageError("get donation", err)
	}
	return d, nil
}

// GetByExternalRef resolves the gateway correlation key.
func (r *DonationRepositoryPG) GetByExternalRef(ctx context.Context, ref string) (*domain.Donation, error) {
	d, err := scanDonation(r.sql.QueryRow(ctx, sqlinline.QSelectDonationByExternalRef, ref))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, infra.ClassifyStorageError("get donation by ref", err)
	}
	return d, nil
}

// ListStalePending returns pending donations created before the cutoff.
func (r *DonationRepositoryPG) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Donation, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListStalePendingDonations, createdBefore.UTC(), limit)
	if err != nil {
		return nil, infra.ClassifyStorageError("list stale donations", err)
	}
	defer rows.Close()

	var items []domain.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, infra.ClassifyStorageError("scan stale donation", err)
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.ClassifyStorageError("list stale donations", err)
	}
	return items, nil
}

// scanDonation reads the column list shared by every donation select.
func scanDonation(row pgx.Row) (*domain.Donation, error) {
	var (
		d      domain.Donation
		status string
	)
	if err := row.Scan(
		&d.ID,
		&d.DonorReference,
		&d.Amount,
		&d.Note,
		&d.PeriodKey,
		&status,
		&d.ExternalTransactionRef,
		&d.CreatedAt,
		&d.LastTransitionAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	d.Status = parsed
	return &d, nil
}

var _ domain.DonationRepository = (*DonationRepositoryPG)(nil)
