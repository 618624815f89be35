package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"donasi/internal/domain"
	"donasi/internal/middleware"
	"donasi/internal/reconcile"
)

const (
	maxNoteLength   = 500
	maxRequestBytes = 64 << 10
)

type donationRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type donationResponse struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Note             string          `json:"note,omitempty"`
	Period           string          `json:"period"`
	DonorReference   *string         `json:"donor_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	LastTransitionAt *time.Time      `json:"last_transition_at,omitempty"`
	Message          string          `json:"message"`
}

func (a *App) donationJSON(r *http.Request, d domain.Donation) donationResponse {
	return donationResponse{
		ID:               d.ID,
		OrderID:          d.ExternalTransactionRef,
		Status:           string(d.Status),
		Amount:           d.Amount,
		Note:             d.Note,
		Period:           d.PeriodKey,
		DonorReference:   d.DonorReference,
		CreatedAt:        d.CreatedAt,
		LastTransitionAt: d.LastTransitionAt,
		Message:          a.message(r, d),
	}
}

// DonationsCreate starts a checkout: the donation is PENDING until the
// gateway, the donor or the sweeper settles it.
func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if !req.Amount.IsPositive() {
		a.error(w, http.StatusBadRequest, "bad_request", "amount must be positive")
		return
	}
	if req.Amount.GreaterThan(domain.MaxAmount) {
		a.error(w, http.StatusBadRequest, "bad_request", "amount too large")
		return
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		a.error(w, http.StatusBadRequest, "bad_request", "amount has more than two decimals")
		return
	}
	note := strings.TrimSpace(req.Note)
	if len([]rune(note)) > maxNoteLength {
		a.error(w, http.StatusBadRequest, "bad_request", "note too long")
		return
	}

	var donor *string
	if userID := a.currentUserID(r); userID != "" {
		donor = &userID
	}
	id := uuid.NewString()
	createdAt := a.now().In(a.Location)
	d, err := a.Donations.Create(r.Context(), domain.NewDonation{
		ID:                     id,
		DonorReference:         donor,
		Amount:                 req.Amount,
		Note:                   note,
		ExternalTransactionRef: "DON-" + id,
		CreatedAt:              createdAt,
	}, domain.PeriodKey(createdAt, a.Location))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().
		Str("donation_id", d.ID).
		Str("order_id", d.ExternalTransactionRef).
		Str("amount", d.Amount.String()).
		Str("period", d.PeriodKey).
		Str("country", middleware.CountryFromContext(r.Context())).
		Msg("donation created")
	a.json(w, http.StatusCreated, a.donationJSON(r, *d))
}

func (a *App) DonationsGet(w http.ResponseWriter, r *http.Request) {
	d, ok := a.loadOwned(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.donationJSON(r, *d))
}

// DonationsCancel expires a pending donation on the donor's request. A
// donation that was accepted in the meantime stays accepted and is returned
// as is.
func (a *App) DonationsCancel(w http.ResponseWriter, r *http.Request) {
	d, ok := a.loadOwned(w, r)
	if !ok {
		return
	}
	res, err := a.Engine.RequestTransition(r.Context(), reconcile.TransitionRequest{
		DonationID:    d.ID,
		Target:        domain.StatusExpired,
		SourceEventID: "cancel:" + d.ID + ":" + middleware.RequestIDFromContext(r.Context()),
		Source:        domain.SourceCancel,
	})
	switch {
	case errors.Is(err, domain.ErrConflict):
		current, gerr := a.Donations.GetByID(r.Context(), d.ID)
		if gerr != nil {
			a.fail(w, r, gerr)
			return
		}
		a.json(w, http.StatusOK, a.donationJSON(r, *current))
	case err != nil:
		a.fail(w, r, err)
	default:
		a.json(w, http.StatusOK, a.donationJSON(r, res.Donation))
	}
}

// loadOwned fetches the donation named in the URL. Donations made by a
// signed-in donor are only visible to that donor; anonymous ones are
// reachable by anyone holding the id.
func (a *App) loadOwned(w http.ResponseWriter, r *http.Request) (*domain.Donation, bool) {
	d, err := a.Donations.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if d.DonorReference != nil && *d.DonorReference != a.currentUserID(r) {
		a.error(w, http.StatusNotFound, "not_found", "donation not found")
		return nil, false
	}
	return d, true
}
