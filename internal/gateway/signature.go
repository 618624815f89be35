// Package gateway parses payment gateway notifications and maps them onto
// donation transitions.
package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Verifier checks notification signatures against the merchant server key.
type Verifier struct {
	serverKey string
}

func NewVerifier(serverKey string) *Verifier {
	return &Verifier{serverKey: serverKey}
}

// Sign returns the signature the gateway would send for n.
func (v *Verifier) Sign(n Notification) string {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + v.serverKey))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether n carries a valid signature.
func (v *Verifier) Verify(n Notification) bool {
	if v.serverKey == "" || n.SignatureKey == "" {
		return false
	}
	want := v.Sign(n)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
