package membership

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Idempotency keys are derived only from immutable facts of the source
// event, so redelivery of the same external event converges to the same key
// no matter how often or in what order it arrives.

// DeriveStripeKey builds the ledger key for a Stripe invoice payment. The
// invoice ID is already globally unique and immutable on Stripe's side.
func DeriveStripeKey(invoiceID string) string {
	return "stripe:invoice:" + strings.TrimSpace(invoiceID)
}

// DerivePretixKey builds the ledger key for a paid Pretix order. Organizer,
// event and order code identify an order globally; order codes alone are only
// unique per event.
func DerivePretixKey(organizer, event, orderCode string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(organizer) + "\n" + strings.TrimSpace(event) + "\n" + strings.TrimSpace(orderCode)))
	return "pretix:" + hex.EncodeToString(sum[:])
}
