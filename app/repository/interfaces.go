package repository

import (
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"gorm.io/gorm"
)

// SubscriptionRepository defines the interface for subscription aggregate persistence
type SubscriptionRepository interface {
	GetByUserID(userID uint) (*models.Subscription, error)
	GetOrCreateByUserID(userID uint) (*models.Subscription, error)
	UpdateStatus(sub *models.Subscription, status string) error
	ListByStatus(status string) ([]models.Subscription, error)
}

// PaymentRepository defines the interface for payment ledger persistence
type PaymentRepository interface {
	// CreateIfNotExists performs the compare-and-insert on the idempotency
	// key. It returns created=false together with the already stored row
	// when the key exists; the extension row is only written on first insert.
	CreateIfNotExists(payment *models.Payment, extension any) (bool, *models.Payment, error)
	GetByIdempotencyKey(key string) (*models.Payment, error)
	ListBySubscriptionID(subscriptionID uint) ([]models.Payment, error)
	LatestPaidBySubscriptionID(subscriptionID uint) (*models.Payment, error)
	CountPaidBySubscriptionID(subscriptionID uint) (int64, error)
	UpdateStatus(payment *models.Payment, status string) error
}

// ProviderAccountRepository defines the interface for provider account links
type ProviderAccountRepository interface {
	Upsert(account *models.ProviderAccount) error
	GetByProviderAccountID(provider, providerAccountID string) (*models.ProviderAccount, error)
	ListByUserID(userID uint) ([]models.ProviderAccount, error)
}

// WebhookEventRepository defines the interface for raw webhook event storage
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processedAt time.Time, processingError string) error
}

// Repositories holds all repository instances
type Repositories struct {
	Subscription    SubscriptionRepository
	Payment         PaymentRepository
	ProviderAccount ProviderAccountRepository
	WebhookEvent    WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscription:    NewSubscriptionRepository(db),
		Payment:         NewPaymentRepository(db),
		ProviderAccount: NewProviderAccountRepository(db),
		WebhookEvent:    NewWebhookEventRepository(db),
	}
}
