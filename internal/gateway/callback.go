package gateway

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"donasi/internal/domain"
)

// Notification is the HTTP notification body posted by the gateway.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	SignatureKey      string `json:"signature_key"`
}

// Action tells the callback handler what to do with a notification.
type Action int

const (
	// ActionIgnore acknowledges the notification without touching state.
	ActionIgnore Action = iota
	ActionTransition
	// ActionReversal marks a refund or chargeback of a settled payment.
	ActionReversal
)

func (a Action) String() string {
	switch a {
	case ActionTransition:
		return "transition"
	case ActionReversal:
		return "reversal"
	default:
		return "ignore"
	}
}

// Outcome is the interpretation of a notification.
type Outcome struct {
	Action Action
	Target domain.DonationStatus
}

// Interpret maps the gateway transaction status onto a donation outcome.
func Interpret(n Notification) (Outcome, error) {
	status := strings.ToLower(strings.TrimSpace(n.TransactionStatus))
	fraud := strings.ToLower(strings.TrimSpace(n.FraudStatus))
	switch status {
	case "settlement":
		return Outcome{Action: ActionTransition, Target: domain.StatusAccepted}, nil
	case "capture":
		if fraud == "" || fraud == "accept" {
			return Outcome{Action: ActionTransition, Target: domain.StatusAccepted}, nil
		}
		// challenge: a final status follows once the merchant reviews it
		return Outcome{Action: ActionIgnore}, nil
	case "expire", "cancel", "deny", "failure":
		return Outcome{Action: ActionTransition, Target: domain.StatusExpired}, nil
	case "pending", "authorize":
		return Outcome{Action: ActionIgnore}, nil
	case "refund", "partial_refund", "chargeback", "partial_chargeback":
		return Outcome{Action: ActionReversal}, nil
	case "":
		return Outcome{}, fmt.Errorf("%w: transaction_status required", domain.ErrInvalidRequest)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown transaction_status %q", domain.ErrInvalidRequest, n.TransactionStatus)
	}
}

// Validate checks the fields every notification must carry.
func (n Notification) Validate() error {
	var missing []string
	if strings.TrimSpace(n.OrderID) == "" {
		missing = append(missing, "order_id")
	}
	if strings.TrimSpace(n.TransactionID) == "" {
		missing = append(missing, "transaction_id")
	}
	if strings.TrimSpace(n.GrossAmount) == "" {
		missing = append(missing, "gross_amount")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// EventID is the idempotency token of a notification. The gateway resends
// the same transaction id and status on retry.
func EventID(n Notification) string {
	return "gateway:" + n.TransactionID + ":" + strings.ToLower(strings.TrimSpace(n.TransactionStatus))
}

// CheckAmount compares gross_amount ("50000.00") with the donation amount.
func CheckAmount(n Notification, want decimal.Decimal) error {
	got, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
	if err != nil {
		return fmt.Errorf("%w: gross_amount %q", domain.ErrInvalidRequest, n.GrossAmount)
	}
	if !got.Equal(want) {
		return fmt.Errorf("%w: gateway %s, donation %s", domain.ErrAmountMismatch, got.String(), want.String())
	}
	return nil
}
