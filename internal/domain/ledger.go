package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodKeyLayout formats the calendar month a donation is bucketed into.
const PeriodKeyLayout = "2006-01"

// PeriodKey returns the ledger period for t in loc.
func PeriodKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(PeriodKeyLayout)
}

// ValidPeriodKey reports whether key is a well-formed period key.
func ValidPeriodKey(key string) bool {
	_, err := time.Parse(PeriodKeyLayout, key)
	return err == nil
}

// LedgerPeriod holds running totals for one reporting period.
type LedgerPeriod struct {
	PeriodKey    string
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Balance      decimal.Decimal
	UpdatedAt    time.Time
}

// AddIncome applies an accepted donation to the period totals.
func (p *LedgerPeriod) AddIncome(amount decimal.Decimal) {
	p.TotalIncome = p.TotalIncome.Add(amount)
	p.Balance = p.TotalIncome.Sub(p.TotalExpense)
}

// LedgerDrift compares the stored income of a period against the value
// recomputed from accepted donations.
type LedgerDrift struct {
	PeriodKey      string
	StoredIncome   decimal.Decimal
	AcceptedIncome decimal.Decimal
	StoredBalance  decimal.Decimal
	TotalExpense   decimal.Decimal
}

// Consistent reports whether the stored totals match the recomputed ones.
func (d LedgerDrift) Consistent() bool {
	return d.StoredIncome.Equal(d.AcceptedIncome) &&
		d.StoredBalance.Equal(d.StoredIncome.Sub(d.TotalExpense))
}

func (d LedgerDrift) String() string {
	return fmt.Sprintf("%s stored=%s accepted=%s balance=%s expense=%s",
		d.PeriodKey, d.StoredIncome, d.AcceptedIncome, d.StoredBalance, d.TotalExpense)
}
