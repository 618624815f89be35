package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"donasi/internal/domain"
)

const (
	defaultPeriodLimit = 12
	maxPeriodLimit     = 120
)

type periodResponse struct {
	Period       string          `json:"period"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	Balance      decimal.Decimal `json:"balance"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func periodJSON(p domain.LedgerPeriod) periodResponse {
	return periodResponse{
		Period:       p.PeriodKey,
		TotalIncome:  p.TotalIncome,
		TotalExpense: p.TotalExpense,
		Balance:      p.Balance,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (a *App) LedgerPeriods(w http.ResponseWriter, r *http.Request) {
	limit := defaultPeriodLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPeriodLimit {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 120")
			return
		}
		limit = n
	}
	periods, err := a.Ledger.ListPeriods(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		items = append(items, periodJSON(p))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) LedgerPeriod(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "period")
	if !domain.ValidPeriodKey(key) {
		a.error(w, http.StatusBadRequest, "bad_request", "period must look like 2024-03")
		return
	}
	p, err := a.Ledger.GetPeriod(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "period not found")
			return
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, periodJSON(*p))
}
