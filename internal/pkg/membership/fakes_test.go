package membership

import (
	"sync"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/app/repository"
	"gorm.io/gorm"
)

// In-memory repositories for service and reconciler tests. They mirror the
// persistence contract: unique constraints via map keys, gorm.ErrRecordNotFound
// for missing rows, safe for concurrent use like the database they stand in
// for.

type fakeSubscriptionRepo struct {
	mu     sync.Mutex
	nextID uint
	byUser map[uint]*models.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{nextID: 1, byUser: map[uint]*models.Subscription{}}
}

func (f *fakeSubscriptionRepo) GetByUserID(userID uint) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.byUser[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (f *fakeSubscriptionRepo) GetOrCreateByUserID(userID uint) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.byUser[userID]; ok {
		return sub, nil
	}
	sub := &models.Subscription{
		ID:     f.nextID,
		UserID: userID,
		Status: models.SubscriptionStatusPending,
	}
	f.nextID++
	f.byUser[userID] = sub
	return sub, nil
}

func (f *fakeSubscriptionRepo) UpdateStatus(sub *models.Subscription, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub.Status = status
	sub.ModifiedAt = time.Now()
	if stored, ok := f.byUser[sub.UserID]; ok && stored.ID == sub.ID {
		stored.Status = sub.Status
		stored.ModifiedAt = sub.ModifiedAt
	}
	return nil
}

func (f *fakeSubscriptionRepo) ListByStatus(status string) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subscription
	for _, sub := range f.byUser {
		if sub.Status == status {
			out = append(out, *sub)
		}
	}
	return out, nil
}

type fakePaymentRepo struct {
	mu     sync.Mutex
	nextID uint
	byKey  map[string]*models.Payment

	stripeExtensions map[uint]*models.StripePayment
	pretixExtensions map[uint]*models.PretixPayment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		nextID:           1,
		byKey:            map[string]*models.Payment{},
		stripeExtensions: map[uint]*models.StripePayment{},
		pretixExtensions: map[uint]*models.PretixPayment{},
	}
}

func (f *fakePaymentRepo) CreateIfNotExists(payment *models.Payment, extension any) (bool, *models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byKey[payment.IdempotencyKey]; ok {
		return false, existing, nil
	}
	stored := *payment
	stored.ID = f.nextID
	f.nextID++
	f.byKey[stored.IdempotencyKey] = &stored

	switch ext := extension.(type) {
	case *models.StripePayment:
		ext.PaymentID = stored.ID
		f.stripeExtensions[stored.ID] = ext
	case *models.PretixPayment:
		ext.PaymentID = stored.ID
		f.pretixExtensions[stored.ID] = ext
	}
	return true, &stored, nil
}

func (f *fakePaymentRepo) GetByIdempotencyKey(key string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byKey[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (f *fakePaymentRepo) ListBySubscriptionID(subscriptionID uint) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.byKey {
		if p.SubscriptionID == subscriptionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) LatestPaidBySubscriptionID(subscriptionID uint) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Payment
	for _, p := range f.byKey {
		if p.SubscriptionID != subscriptionID || p.Status != models.PaymentStatusPaid {
			continue
		}
		if latest == nil || p.PeriodEnd.After(latest.PeriodEnd) {
			latest = p
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (f *fakePaymentRepo) CountPaidBySubscriptionID(subscriptionID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, p := range f.byKey {
		if p.SubscriptionID == subscriptionID && p.Status == models.PaymentStatusPaid {
			count++
		}
	}
	return count, nil
}

func (f *fakePaymentRepo) UpdateStatus(payment *models.Payment, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment.Status = status
	if stored, ok := f.byKey[payment.IdempotencyKey]; ok {
		stored.Status = status
	}
	return nil
}

type fakeProviderAccountRepo struct {
	mu         sync.Mutex
	nextID     uint
	byProvider map[string]*models.ProviderAccount
}

func newFakeProviderAccountRepo() *fakeProviderAccountRepo {
	return &fakeProviderAccountRepo{nextID: 1, byProvider: map[string]*models.ProviderAccount{}}
}

func providerRefKey(provider, providerAccountID string) string {
	return provider + "|" + providerAccountID
}

func (f *fakeProviderAccountRepo) Upsert(account *models.ProviderAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := providerRefKey(account.Provider, account.ProviderAccountID)
	if existing, ok := f.byProvider[key]; ok {
		existing.UserID = account.UserID
		existing.Email = account.Email
		*account = *existing
		return nil
	}
	account.ID = f.nextID
	f.nextID++
	stored := *account
	f.byProvider[key] = &stored
	return nil
}

func (f *fakeProviderAccountRepo) GetByProviderAccountID(provider, providerAccountID string) (*models.ProviderAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byProvider[providerRefKey(provider, providerAccountID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return account, nil
}

func (f *fakeProviderAccountRepo) ListByUserID(userID uint) ([]models.ProviderAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProviderAccount
	for _, account := range f.byProvider {
		if account.UserID == userID {
			out = append(out, *account)
		}
	}
	return out, nil
}

type fakeWebhookEventRepo struct {
	mu     sync.Mutex
	nextID uint
	byKey  map[string]*models.WebhookEvent
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{nextID: 1, byKey: map[string]*models.WebhookEvent{}}
}

func (f *fakeWebhookEventRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if existing, ok := f.byKey[key]; ok {
		return false, existing, nil
	}
	stored := *event
	stored.ID = f.nextID
	f.nextID++
	f.byKey[key] = &stored
	return true, &stored, nil
}

func (f *fakeWebhookEventRepo) MarkProcessed(id uint, processedAt time.Time, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.byKey {
		if event.ID == id {
			at := processedAt
			event.ProcessedAt = &at
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func newFakeRepositories() *repository.Repositories {
	return &repository.Repositories{
		Subscription:    newFakeSubscriptionRepo(),
		Payment:         newFakePaymentRepo(),
		ProviderAccount: newFakeProviderAccountRepo(),
		WebhookEvent:    newFakeWebhookEventRepo(),
	}
}
