package membership

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/go-playground/validator/v10"
)

// Normalized inbound events. Provider webhook payloads are mapped to this
// closed set at the boundary (stripeclient/pretixclient); everything required
// is validated here before it reaches the ledger or the state machine.

// StripeInvoiceRef identifies the Stripe invoice a payment event came from.
type StripeInvoiceRef struct {
	SubscriptionID string `validate:"required"`
	InvoiceID      string `validate:"required"`
	ReceiptURL     string
}

// PretixOrderRef identifies the Pretix order a payment event came from.
type PretixOrderRef struct {
	Organizer string `validate:"required"`
	Event     string `validate:"required"`
	OrderCode string `validate:"required"`
}

// PaymentEvent is a normalized payment_succeeded event from either provider.
// Exactly one of Stripe / Pretix must be set and must match Provider.
type PaymentEvent struct {
	Provider    string    `validate:"required,oneof=stripe pretix"`
	CustomerRef string    `validate:"required"`
	AmountCents int64     `validate:"gte=0"`
	Currency    string    `validate:"required,len=3"`
	PaymentDate time.Time `validate:"required"`
	PeriodStart time.Time `validate:"required"`
	PeriodEnd   time.Time `validate:"required"`

	Stripe *StripeInvoiceRef
	Pretix *PretixOrderRef
}

// Validate checks all required fields and the cross-field invariants before
// the event may touch the ledger.
func (e *PaymentEvent) Validate() error {
	v := validator.New()
	if err := v.Struct(e); err != nil {
		return err
	}
	if e.PeriodEnd.Before(e.PeriodStart) {
		return errors.New("period_end must not precede period_start")
	}

	switch e.Provider {
	case models.PaymentProviderStripe:
		if e.Stripe == nil || e.Pretix != nil {
			return fmt.Errorf("stripe payment event requires exactly the stripe source reference")
		}
		return v.Struct(e.Stripe)
	case models.PaymentProviderPretix:
		if e.Pretix == nil || e.Stripe != nil {
			return fmt.Errorf("pretix payment event requires exactly the pretix source reference")
		}
		return v.Struct(e.Pretix)
	}
	return fmt.Errorf("unknown payment provider: %s", e.Provider)
}

// IdempotencyKey derives the ledger dedup key from the event's immutable
// source facts.
func (e *PaymentEvent) IdempotencyKey() string {
	if e.Stripe != nil {
		return DeriveStripeKey(e.Stripe.InvoiceID)
	}
	return DerivePretixKey(e.Pretix.Organizer, e.Pretix.Event, e.Pretix.OrderCode)
}

// CancellationEvent is a normalized subscription_canceled event.
type CancellationEvent struct {
	Provider    string    `validate:"required,oneof=stripe pretix"`
	CustomerRef string    `validate:"required"`
	CanceledAt  time.Time `validate:"required"`
}

// Validate checks the cancellation event's required fields.
func (e *CancellationEvent) Validate() error {
	return validator.New().Struct(e)
}

// PaymentFailureEvent signals that a checkout or payment never completed.
// It never records a ledger row; its only use is the contradiction guard.
type PaymentFailureEvent struct {
	Provider    string `validate:"required,oneof=stripe pretix"`
	CustomerRef string `validate:"required"`
	Reason      string
}

// Validate checks the failure event's required fields.
func (e *PaymentFailureEvent) Validate() error {
	return validator.New().Struct(e)
}
