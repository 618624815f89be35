package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"donasi/internal/domain"
	"donasi/internal/gateway"
	"donasi/internal/reconcile"
)

// GatewayCallback handles payment notifications. A signed notification the
// service cannot act on is logged and answered with 200 so the gateway stops
// resending it; only transient storage failures ask for a retry.
func (a *App) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	var n gateway.Notification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&n); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	log := a.Logger.With().
		Str("order_id", n.OrderID).
		Str("transaction_id", n.TransactionID).
		Str("transaction_status", n.TransactionStatus).
		Logger()

	if !a.Verifier.Verify(n) {
		log.Warn().Msg("gateway: invalid signature")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}
	if err := n.Validate(); err != nil {
		a.rejectNotification(w, log, err)
		return
	}
	outcome, err := gateway.Interpret(n)
	if err != nil {
		a.rejectNotification(w, log, err)
		return
	}

	d, err := a.Donations.GetByExternalRef(r.Context(), n.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Msg("gateway: notification for unknown order")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := gateway.CheckAmount(n, d.Amount); err != nil {
		a.rejectNotification(w, log.With().Str("donation_id", d.ID).Logger(), err)
		return
	}

	switch outcome.Action {
	case gateway.ActionIgnore:
		log.Debug().Str("donation_id", d.ID).Msg("gateway: non-final status acknowledged")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case gateway.ActionReversal:
		log.Warn().Str("donation_id", d.ID).Str("current", string(d.Status)).
			Msg("gateway: reversal needs manual ledger adjustment")
		a.json(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	res, err := a.Engine.RequestTransition(r.Context(), reconcile.TransitionRequest{
		DonationID:    d.ID,
		Target:        outcome.Target,
		SourceEventID: gateway.EventID(n),
		Source:        domain.SourceGateway,
	})
	switch {
	case errors.Is(err, domain.ErrConflict):
		a.json(w, http.StatusOK, map[string]string{"status": "conflict"})
	case err != nil:
		a.fail(w, r, err)
	case res.Applied:
		a.json(w, http.StatusOK, map[string]string{"status": "applied"})
	default:
		a.json(w, http.StatusOK, map[string]string{"status": "duplicate"})
	}
}

func (a *App) rejectNotification(w http.ResponseWriter, log zerolog.Logger, err error) {
	log.Error().Err(err).Msg("gateway: notification rejected")
	a.json(w, http.StatusOK, map[string]string{"status": "rejected", "reason": err.Error()})
}
