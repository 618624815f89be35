package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"donasi/internal/domain"
	"donasi/internal/gateway"
	"donasi/internal/middleware"
	"donasi/internal/notify"
	"donasi/internal/reconcile"
)

// Transitioner is the part of the reconciliation engine the handlers call.
type Transitioner interface {
	RequestTransition(ctx context.Context, req reconcile.TransitionRequest) (reconcile.TransitionResult, error)
}

type App struct {
	Engine    Transitioner
	Donations domain.DonationRepository
	Ledger    domain.LedgerRepository
	Verifier  *gateway.Verifier
	Logger    zerolog.Logger
	Location  *time.Location
	// Ping reports storage readiness; nil means always ready.
	Ping func(ctx context.Context) error

	messages map[string]notify.Formatter
	now      func() time.Time
}

func NewApp(engine Transitioner, donations domain.DonationRepository, ledger domain.LedgerRepository, verifier *gateway.Verifier, logger zerolog.Logger, loc *time.Location) *App {
	if loc == nil {
		loc = time.UTC
	}
	return &App{
		Engine:    engine,
		Donations: donations,
		Ledger:    ledger,
		Verifier:  verifier,
		Logger:    logger.With().Str("component", "http").Logger(),
		Location:  loc,
		messages: map[string]notify.Formatter{
			"id": notify.NewFormatter("id"),
			"en": notify.NewFormatter("en"),
		},
		now: time.Now,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: msg}})
}

// fail maps a domain error onto an HTTP response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "donation not found")
	case errors.Is(err, domain.ErrAmountMismatch):
		a.error(w, http.StatusBadRequest, "amount_mismatch", err.Error())
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidTarget):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrTransientStorage), errors.Is(err, context.DeadlineExceeded):
		a.Logger.Warn().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("storage unavailable")
		a.error(w, http.StatusServiceUnavailable, "unavailable", "please retry")
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) message(r *http.Request, d domain.Donation) string {
	f, ok := a.messages[middleware.LocaleFromContext(r.Context())]
	if !ok {
		f = a.messages["id"]
	}
	return f.Message(d.Status, d.Amount)
}
