package membership

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/app/repository"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service wires the ledger and the aggregate behind the event ingestion
// handlers. One Service call per inbound delivery; no ordering between
// deliveries is assumed, the ledger's unique key is the serialization point.
type Service struct {
	accounts repository.ProviderAccountRepository
	subs     repository.SubscriptionRepository
	events   repository.WebhookEventRepository
	ledger   *Ledger
	agg      *Aggregate

	// Now is the clock used for window checks; replaced in tests.
	Now func() time.Time
}

// NewService creates a membership service from injected repositories.
func NewService(repos *repository.Repositories) *Service {
	return &Service{
		accounts: repos.ProviderAccount,
		subs:     repos.Subscription,
		events:   repos.WebhookEvent,
		ledger:   NewLedger(repos.Payment),
		agg:      NewAggregate(repos.Subscription, repos.Payment),
		Now:      time.Now,
	}
}

// NewServiceFromDB creates a membership service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewRepositories(db))
}

// HandlePaymentEvent records the payment fact and, when this delivery is the
// first one and the validity window covers now, activates the subscription.
// Redelivery of the same external event is a no-op beyond the ledger read.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev *PaymentEvent) (*RecordResult, error) {
	_ = ctx
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	account, err := s.resolveAccount(ev.Provider, ev.CustomerRef)
	if err != nil {
		return nil, err
	}
	// First recognized event for a user creates its subscription (pending).
	sub, err := s.subs.GetOrCreateByUserID(account.UserID)
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.RecordPayment(sub, ev)
	if err != nil {
		return nil, err
	}
	if !res.Created {
		// The activation side effect already ran (or is racing to run) on
		// the delivery that won the insert.
		return res, nil
	}

	now := s.Now()
	if !res.Payment.CoversInstant(now) {
		log.Infof("[Membership] recorded payment %s for subscription %d but window does not cover now, no activation",
			res.Payment.IdempotencyKey, sub.ID)
		return res, nil
	}
	if err := s.agg.MarkActive(sub, res.Payment, now); err != nil {
		return res, err
	}
	return res, nil
}

// HandleCancellationEvent cancels the customer's subscription. Safe to invoke
// again for an already-canceled subscription: no error, no duplicate effect.
func (s *Service) HandleCancellationEvent(ctx context.Context, ev *CancellationEvent) (*models.Subscription, error) {
	_ = ctx
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.resolveExistingSubscription(ev.Provider, ev.CustomerRef)
	if err != nil {
		return nil, err
	}
	if err := s.agg.MarkCanceled(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// HandlePaymentFailureEvent applies the contradiction guard for "payment
// never completed" signals. A subscription with paid ledger rows refuses the
// signal with ErrInconsistentState; without any it is left pending untouched.
func (s *Service) HandlePaymentFailureEvent(ctx context.Context, ev *PaymentFailureEvent) (*models.Subscription, error) {
	_ = ctx
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.resolveExistingSubscription(ev.Provider, ev.CustomerRef)
	if err != nil {
		return nil, err
	}
	if err := s.agg.RefuseIfPaymentsExist(sub, "payment_never_completed"); err != nil {
		return nil, err
	}
	log.Infof("[Membership] payment failure signal for subscription %d (user %d) with empty ledger, nothing to do (reason: %s)",
		sub.ID, sub.UserID, ev.Reason)
	return sub, nil
}

func (s *Service) resolveAccount(provider, customerRef string) (*models.ProviderAccount, error) {
	account, err := s.accounts.GetByProviderAccountID(provider, strings.TrimSpace(customerRef))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: provider=%s customer_ref=%s", ErrNoCustomerForEvent, provider, customerRef)
		}
		return nil, err
	}
	return account, nil
}

// resolveExistingSubscription is used by the paths that must not create a
// subscription as a side effect (cancellation, failure signals).
func (s *Service) resolveExistingSubscription(provider, customerRef string) (*models.Subscription, error) {
	account, err := s.resolveAccount(provider, customerRef)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.GetByUserID(account.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: provider=%s user_id=%d", ErrNoSubscriptionForEvent, provider, account.UserID)
		}
		return nil, err
	}
	return sub, nil
}

// ProviderAccountInput is the payload for linking a provider customer
// reference to a local user.
type ProviderAccountInput struct {
	UserID            uint   `json:"user_id" validate:"required"`
	Provider          string `json:"provider" validate:"required,oneof=stripe pretix"`
	ProviderAccountID string `json:"provider_account_id" validate:"required"`
	Email             string `json:"email" validate:"omitempty,email"`
}

// LinkProviderAccount upserts the link that resolves inbound webhook events
// to local users. The main application pushes links here when a user starts
// a checkout or connects a billing account; without a link every event for
// that customer answers ErrNoCustomerForEvent.
func (s *Service) LinkProviderAccount(ctx context.Context, in ProviderAccountInput) (*models.ProviderAccount, error) {
	_ = ctx
	if err := validator.New().Struct(&in); err != nil {
		return nil, err
	}
	account := &models.ProviderAccount{
		UserID:            in.UserID,
		Provider:          strings.ToLower(strings.TrimSpace(in.Provider)),
		ProviderAccountID: strings.TrimSpace(in.ProviderAccountID),
		Email:             strings.ToLower(strings.TrimSpace(in.Email)),
	}
	if err := s.accounts.Upsert(account); err != nil {
		return nil, err
	}
	return account, nil
}

// WebhookEventInput is the normalized input for raw webhook persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists webhook payloads idempotently. Deliveries
// without a provider event ID fall back to a payload hash.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.events.CreateIfNotExists(event)
}

// MarkWebhookProcessed marks a stored event as processed with an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(webhookEventID, s.Now(), errMsg)
}
