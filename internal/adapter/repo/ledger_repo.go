package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"donasi/internal/domain"
	"donasi/internal/infra"
	"donasi/internal/sqlinline"
)

// LedgerRepositoryPG reads committed ledger totals.
type LedgerRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(sql infra.SQLExecutor) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql}
}

func (r *LedgerRepositoryPG) GetPeriod(ctx context.Context, periodKey string) (*domain.LedgerPeriod, error) {
	if !domain.ValidPeriodKey(periodKey) {
		return nil, domain.ErrNotFound
	}
	p, err := scanPeriod(r.sql.QueryRow(ctx, sqlinline.QSelectLedgerPeriod, periodKey))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, infra.ClassifyStorageError("get ledger period", err)
	}
	return p, nil
}

func (r *LedgerRepositoryPG) ListPeriods(ctx context.Context, limit int) ([]domain.LedgerPeriod, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListLedgerPeriods, limit)
	if err != nil {
		return nil, infra.ClassifyStorageError("list ledger periods", err)
	}
	defer rows.Close()

	var items []domain.LedgerPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, infra.ClassifyStorageError("scan ledger period", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.ClassifyStorageError("list ledger periods", err)
	}
	return items, nil
}

// Verify recomputes the accepted income of a period from the donation rows.
func (r *LedgerRepositoryPG) Verify(ctx context.Context, periodKey string) (*domain.LedgerDrift, error) {
	if !domain.ValidPeriodKey(periodKey) {
		return nil, domain.ErrNotFound
	}
	var d domain.LedgerDrift
	row := r.sql.QueryRow(ctx, sqlinline.QVerifyLedgerPeriod, periodKey)
	if err := row.Scan(&d.PeriodKey, &d.StoredIncome, &d.AcceptedIncome, &d.StoredBalance, &d.TotalExpense); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, infra.ClassifyStorageError("verify ledger period", err)
	}
	return &d, nil
}

func scanPeriod(row pgx.Row) (*domain.LedgerPeriod, error) {
	var p domain.LedgerPeriod
	if err := row.Scan(&p.PeriodKey, &p.TotalIncome, &p.TotalExpense, &p.Balance, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ domain.LedgerRepository = (*LedgerRepositoryPG)(nil)
