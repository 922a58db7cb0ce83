package models

import "time"

// ProviderAccount links a provider-side customer reference to a local user.
// Webhook events only carry the provider's own reference (Stripe customer ID,
// Pretix order email), so this table is how inbound events are resolved to
// users.
type ProviderAccount struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index:ux_provider_accounts_user_provider,unique" json:"user_id"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_provider_accounts_user_provider,unique;index:ux_provider_accounts_provider_ref,unique,priority:1" json:"provider"`
	ProviderAccountID string    `gorm:"type:varchar(191);not null;index:ux_provider_accounts_provider_ref,unique,priority:2" json:"provider_account_id"`
	Email             string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
