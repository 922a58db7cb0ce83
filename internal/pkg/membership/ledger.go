package membership

import (
	"errors"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/app/repository"
)

// Ledger is the append-only payment record. Its only write operation is the
// idempotent compare-and-insert on the idempotency key; state transitions are
// the caller's business, keeping the dedup boundary separate from the rules.
type Ledger struct {
	payments repository.PaymentRepository
}

// NewLedger creates a ledger over the payment repository.
func NewLedger(payments repository.PaymentRepository) *Ledger {
	return &Ledger{payments: payments}
}

// RecordResult reports the outcome of a RecordPayment call. Created is false
// when the idempotency key was already present; the stored row is returned in
// both cases.
type RecordResult struct {
	Created      bool
	Payment      *models.Payment
	Subscription *models.Subscription
}

// RecordPayment writes one ledger row for the event, deduplicated by the
// event's idempotency key. Redelivery returns the existing row unchanged and
// must not trigger any downstream side effect a second time.
func (l *Ledger) RecordPayment(sub *models.Subscription, ev *PaymentEvent) (*RecordResult, error) {
	if ev.PeriodEnd.Before(ev.PeriodStart) {
		return nil, errors.New("ledger: period_end precedes period_start")
	}

	payment := &models.Payment{
		IdempotencyKey: ev.IdempotencyKey(),
		SubscriptionID: sub.ID,
		AmountCents:    ev.AmountCents,
		Currency:       ev.Currency,
		PaymentDate:    ev.PaymentDate,
		PeriodStart:    ev.PeriodStart,
		PeriodEnd:      ev.PeriodEnd,
		Status:         models.PaymentStatusPaid,
	}

	var extension any
	switch {
	case ev.Stripe != nil:
		extension = &models.StripePayment{
			StripeSubscriptionID: ev.Stripe.SubscriptionID,
			StripeInvoiceID:      ev.Stripe.InvoiceID,
			ReceiptURL:           ev.Stripe.ReceiptURL,
		}
	case ev.Pretix != nil:
		extension = &models.PretixPayment{
			Organizer: ev.Pretix.Organizer,
			Event:     ev.Pretix.Event,
			OrderCode: ev.Pretix.OrderCode,
		}
	}

	created, stored, err := l.payments.CreateIfNotExists(payment, extension)
	if err != nil {
		return nil, err
	}
	return &RecordResult{Created: created, Payment: stored, Subscription: sub}, nil
}
