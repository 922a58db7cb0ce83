package stripeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
)

func signPayload(t *testing.T, payload []byte, secret string, timestamp int64) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	secret := "whsec_test"
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	header := signPayload(t, payload, secret, now.Unix())
	if !VerifyWebhookSignature(payload, header, secret, DefaultSignatureTolerance, now) {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyWebhookSignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	header := signPayload(t, payload, "whsec_other", now.Unix())
	if VerifyWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance, now) {
		t.Fatal("signature with wrong secret accepted")
	}
}

func TestVerifyWebhookSignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount_paid":5000}`)
	secret := "whsec_test"
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	header := signPayload(t, payload, secret, now.Unix())
	tampered := []byte(`{"id":"evt_1","amount_paid":9999}`)
	if VerifyWebhookSignature(tampered, header, secret, DefaultSignatureTolerance, now) {
		t.Fatal("tampered payload accepted")
	}
}

func TestVerifyWebhookSignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	header := signPayload(t, payload, secret, now.Add(-time.Hour).Unix())
	if VerifyWebhookSignature(payload, header, secret, DefaultSignatureTolerance, now) {
		t.Fatal("stale timestamp accepted")
	}
}

func TestVerifyWebhookSignatureSecondCandidate(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	// Key rotation sends two v1 signatures; one valid match is enough.
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", now.Unix())
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), "deadbeef", valid)

	if !VerifyWebhookSignature(payload, header, secret, DefaultSignatureTolerance, now) {
		t.Fatal("rotated key signature rejected")
	}
}

func TestVerifyWebhookSignatureGarbageHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=123"} {
		if VerifyWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance, now) {
			t.Fatalf("garbage header %q accepted", header)
		}
	}
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded","created":1755000000,"data":{"object":{"id":"in_1"}}}`)
	ev, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if ev.ID != "evt_1" || ev.Type != EventInvoicePaymentSucceeded {
		t.Fatalf("unexpected envelope: %+v", ev)
	}

	if _, err := ParseEvent([]byte(`{"type":"x"}`)); err == nil {
		t.Fatal("envelope without id accepted")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Fatal("non-json payload accepted")
	}
}

func TestPaymentEventFromInvoice(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "invoice.payment_succeeded",
		"data": {"object": {
			"id": "in_1",
			"customer": "cus_abc",
			"subscription": "sub_1",
			"amount_paid": 5000,
			"currency": "eur",
			"status_transitions": {"paid_at": 1755000100},
			"lines": {"data": [{"period": {"start": 1755000000, "end": 1757678400}}]}
		}}
	}`)
	event, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	inv, err := event.Invoice()
	if err != nil {
		t.Fatalf("invoice decode failed: %v", err)
	}

	ev, err := PaymentEventFromInvoice(inv)
	if err != nil {
		t.Fatalf("mapping failed: %v", err)
	}
	if ev.Provider != models.PaymentProviderStripe {
		t.Fatalf("unexpected provider: %s", ev.Provider)
	}
	if ev.CustomerRef != "cus_abc" || ev.AmountCents != 5000 || ev.Currency != "EUR" {
		t.Fatalf("unexpected mapping: %+v", ev)
	}
	if !ev.PeriodStart.Equal(time.Unix(1755000000, 0).UTC()) || !ev.PeriodEnd.Equal(time.Unix(1757678400, 0).UTC()) {
		t.Fatalf("unexpected window: [%s, %s]", ev.PeriodStart, ev.PeriodEnd)
	}
	if ev.Stripe == nil || ev.Stripe.InvoiceID != "in_1" {
		t.Fatalf("missing stripe ref: %+v", ev.Stripe)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("mapped event does not validate: %v", err)
	}
}

func TestPaymentEventFromInvoiceWithoutLines(t *testing.T) {
	inv := &Invoice{ID: "in_1", Customer: "cus_abc"}
	if _, err := PaymentEventFromInvoice(inv); err == nil {
		t.Fatal("invoice without line items accepted")
	}
}

func TestPaymentEventFromInvoiceWithoutCustomer(t *testing.T) {
	inv := &Invoice{ID: "in_1"}
	if _, err := PaymentEventFromInvoice(inv); err == nil {
		t.Fatal("invoice without customer accepted")
	}
}

func TestCancellationEventFromSubscription(t *testing.T) {
	ev, err := CancellationEventFromSubscription(&SubscriptionObject{
		ID:         "sub_1",
		Customer:   "cus_abc",
		CanceledAt: 1755000000,
	})
	if err != nil {
		t.Fatalf("mapping failed: %v", err)
	}
	if ev.CustomerRef != "cus_abc" || !ev.CanceledAt.Equal(time.Unix(1755000000, 0).UTC()) {
		t.Fatalf("unexpected mapping: %+v", ev)
	}
}

func TestFailureEventFromSession(t *testing.T) {
	ev, err := FailureEventFromSession(&CheckoutSession{ID: "cs_1", Customer: "cus_abc"})
	if err != nil {
		t.Fatalf("mapping failed: %v", err)
	}
	if ev.CustomerRef != "cus_abc" || ev.Provider != models.PaymentProviderStripe {
		t.Fatalf("unexpected mapping: %+v", ev)
	}

	if _, err := FailureEventFromSession(&CheckoutSession{ID: "cs_1"}); err == nil {
		t.Fatal("session without customer accepted")
	}
}
