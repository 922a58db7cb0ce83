package stripeclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/membership"
)

// Webhook event types this service consumes. Everything else is recorded and
// acknowledged but otherwise ignored.
const (
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventCheckoutSessionExpired  = "checkout.session.expired"
)

// Event is the envelope Stripe posts to the webhook endpoint.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes the webhook envelope.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.ID) == "" {
		return nil, errors.New("stripe event payload missing id")
	}
	if strings.TrimSpace(ev.Type) == "" {
		return nil, errors.New("stripe event payload missing type")
	}
	return &ev, nil
}

// Invoice is the subset of Stripe's invoice object this service reads.
type Invoice struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	AmountPaid        int64  `json:"amount_paid"`
	Currency          string `json:"currency"`
	HostedInvoiceURL  string `json:"hosted_invoice_url"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Lines struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// Invoice decodes the event's data object as an invoice.
func (e *Event) Invoice() (*Invoice, error) {
	var inv Invoice
	if err := json.Unmarshal(e.Data.Object, &inv); err != nil {
		return nil, err
	}
	if strings.TrimSpace(inv.ID) == "" {
		return nil, errors.New("stripe invoice object missing id")
	}
	return &inv, nil
}

// SubscriptionObject is the subset of Stripe's subscription object read on
// customer.subscription.deleted.
type SubscriptionObject struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	CanceledAt int64  `json:"canceled_at"`
}

// Subscription decodes the event's data object as a subscription.
func (e *Event) Subscription() (*SubscriptionObject, error) {
	var sub SubscriptionObject
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, errors.New("stripe subscription object missing id")
	}
	return &sub, nil
}

// CheckoutSession is the subset of Stripe's checkout session object read on
// checkout.session.expired.
type CheckoutSession struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// CheckoutSession decodes the event's data object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &cs); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cs.ID) == "" {
		return nil, errors.New("stripe checkout session object missing id")
	}
	return &cs, nil
}

// PaymentEventFromInvoice maps a paid invoice to the normalized payment
// event. The validity window spans all invoice lines (earliest period start
// to latest period end).
func PaymentEventFromInvoice(inv *Invoice) (*membership.PaymentEvent, error) {
	if strings.TrimSpace(inv.Customer) == "" {
		return nil, errors.New("stripe invoice missing customer reference")
	}
	if len(inv.Lines.Data) == 0 {
		return nil, fmt.Errorf("stripe invoice %s has no line items", inv.ID)
	}

	start := inv.Lines.Data[0].Period.Start
	end := inv.Lines.Data[0].Period.End
	for _, line := range inv.Lines.Data[1:] {
		if line.Period.Start < start {
			start = line.Period.Start
		}
		if line.Period.End > end {
			end = line.Period.End
		}
	}
	if start == 0 || end == 0 {
		return nil, fmt.Errorf("stripe invoice %s has no usable billing period", inv.ID)
	}

	paidAt := inv.StatusTransitions.PaidAt
	if paidAt == 0 {
		paidAt = start
	}

	return &membership.PaymentEvent{
		Provider:    models.PaymentProviderStripe,
		CustomerRef: inv.Customer,
		AmountCents: inv.AmountPaid,
		Currency:    strings.ToUpper(inv.Currency),
		PaymentDate: time.Unix(paidAt, 0).UTC(),
		PeriodStart: time.Unix(start, 0).UTC(),
		PeriodEnd:   time.Unix(end, 0).UTC(),
		Stripe: &membership.StripeInvoiceRef{
			SubscriptionID: inv.Subscription,
			InvoiceID:      inv.ID,
			ReceiptURL:     inv.HostedInvoiceURL,
		},
	}, nil
}

// CancellationEventFromSubscription maps a deleted subscription to the
// normalized cancellation event.
func CancellationEventFromSubscription(sub *SubscriptionObject) (*membership.CancellationEvent, error) {
	if strings.TrimSpace(sub.Customer) == "" {
		return nil, errors.New("stripe subscription missing customer reference")
	}
	canceledAt := sub.CanceledAt
	if canceledAt == 0 {
		canceledAt = time.Now().Unix()
	}
	return &membership.CancellationEvent{
		Provider:    models.PaymentProviderStripe,
		CustomerRef: sub.Customer,
		CanceledAt:  time.Unix(canceledAt, 0).UTC(),
	}, nil
}

// FailureEventFromSession maps an expired checkout session to the normalized
// payment failure signal.
func FailureEventFromSession(cs *CheckoutSession) (*membership.PaymentFailureEvent, error) {
	if strings.TrimSpace(cs.Customer) == "" {
		return nil, errors.New("stripe checkout session missing customer reference")
	}
	return &membership.PaymentFailureEvent{
		Provider:    models.PaymentProviderStripe,
		CustomerRef: cs.Customer,
		Reason:      "checkout session expired",
	}, nil
}
