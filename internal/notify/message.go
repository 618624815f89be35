package notify

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"donasi/internal/domain"
)

// Formatter renders donor-facing texts in one locale.
type Formatter struct {
	printer *message.Printer
	tag     language.Tag
}

// NewFormatter builds a formatter for locale ("id" or "en"; anything else
// falls back to Indonesian).
func NewFormatter(locale string) Formatter {
	tag := language.Indonesian
	if locale == "en" {
		tag = language.English
	}
	return Formatter{printer: message.NewPrinter(tag), tag: tag}
}

// Message describes a donation of amount that is now in status.
func (f Formatter) Message(status domain.DonationStatus, amount decimal.Decimal) string {
	amt := f.Amount(amount)
	if f.tag == language.English {
		switch status {
		case domain.StatusAccepted:
			return "Thank you, your donation of " + amt + " has been received."
		case domain.StatusExpired:
			return "Your donation of " + amt + " was not completed and has expired."
		case domain.StatusPending:
			return "Waiting for payment of your " + amt + " donation."
		}
		return "Your donation status is now " + string(status) + "."
	}
	switch status {
	case domain.StatusAccepted:
		return "Terima kasih, donasi sebesar " + amt + " telah diterima."
	case domain.StatusExpired:
		return "Donasi sebesar " + amt + " tidak diselesaikan dan telah kedaluwarsa."
	case domain.StatusPending:
		return "Menunggu pembayaran donasi sebesar " + amt + "."
	}
	return "Status donasi Anda sekarang " + string(status) + "."
}

// Amount renders amount in rupiah with locale digit grouping. Amounts with a
// fractional part keep two decimals.
func (f Formatter) Amount(amount decimal.Decimal) string {
	if amount.IsInteger() {
		return f.printer.Sprintf("Rp%d", amount.IntPart())
	}
	v, _ := amount.Round(2).Float64()
	return f.printer.Sprintf("Rp%.2f", v)
}
