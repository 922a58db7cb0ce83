package models

import "time"

const (
	PaymentStatusPaid     = "paid"
	PaymentStatusCanceled = "canceled"
)

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderPretix = "pretix"
)

// Payment is one append-only ledger row. The idempotency key is the dedup
// boundary: it is derived only from immutable facts of the source event, so
// redelivery of the same external event converges to exactly one row. Rows
// are immutable after creation except for the status column.
type Payment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	IdempotencyKey string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_idempotency_key" json:"idempotency_key"`
	SubscriptionID uint      `gorm:"not null;index" json:"subscription_id"`
	AmountCents    int64     `gorm:"not null;default:0" json:"amount_cents"`
	Currency       string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	PaymentDate    time.Time `gorm:"type:timestamp;not null" json:"payment_date"`
	PeriodStart    time.Time `gorm:"type:timestamp;not null;index" json:"period_start"`
	PeriodEnd      time.Time `gorm:"type:timestamp;not null;index" json:"period_end"`
	Status         string    `gorm:"type:varchar(20);not null;default:'paid';index" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CoversInstant reports whether the payment's validity window contains now.
func (p *Payment) CoversInstant(now time.Time) bool {
	return !now.Before(p.PeriodStart) && !now.After(p.PeriodEnd)
}

// StripePayment carries the billing-provider identifiers for a payment
// originating from a Stripe invoice.
type StripePayment struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	PaymentID            uint      `gorm:"not null;uniqueIndex:ux_stripe_payments_payment" json:"payment_id"`
	StripeSubscriptionID string    `gorm:"type:varchar(191);not null;index" json:"stripe_subscription_id"`
	StripeInvoiceID      string    `gorm:"type:varchar(191);not null;index" json:"stripe_invoice_id"`
	ReceiptURL           string    `gorm:"type:varchar(512);default:''" json:"receipt_url"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PretixPayment carries the ticket-shop identifiers for a payment originating
// from a paid Pretix order.
type PretixPayment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PaymentID uint      `gorm:"not null;uniqueIndex:ux_pretix_payments_payment" json:"payment_id"`
	Organizer string    `gorm:"type:varchar(191);not null" json:"organizer"`
	Event     string    `gorm:"type:varchar(191);not null" json:"event"`
	OrderCode string    `gorm:"type:varchar(64);not null;index" json:"order_code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
