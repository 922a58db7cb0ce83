package models

import "time"

const (
	SubscriptionStatusPending  = "pending"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription is the per-user membership aggregate. There is at most one
// subscription per user; it is created on the first recognized payment
// event and never deleted, only demoted to canceled.
type Subscription struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:ux_subscriptions_user" json:"user_id"`
	Status     string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	ModifiedAt time.Time `gorm:"autoUpdateTime" json:"modified_at"`
}

// IsActive reports whether the subscription currently grants membership.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
