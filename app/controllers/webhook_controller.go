package controllers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/app/repository"
	"github.com/ManuelReschke/MemberFox/internal/pkg/cache"
	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
	"github.com/ManuelReschke/MemberFox/internal/pkg/membership"
	metrics "github.com/ManuelReschke/MemberFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/MemberFox/internal/pkg/pretixclient"
	"github.com/ManuelReschke/MemberFox/internal/pkg/stripeclient"
	"github.com/gofiber/fiber/v2"
)

// HandleStripeWebhook ingests Stripe event deliveries. Every payload is
// stored idempotently before any processing; redeliveries of cleanly
// processed events are acknowledged without re-running side effects, while
// redeliveries of failed events run processing again. Unresolvable events
// answer 422 so the provider keeps retrying and the failure stays visible.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	svc := membership.NewService(repository.GetGlobalRepositories())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	signatureValid := stripeclient.VerifyWebhookSignature(rawBody, signature, secret, stripeclient.DefaultSignatureTolerance, time.Now())

	event, parseErr := stripeclient.ParseEvent(rawBody)
	eventID := ""
	eventType := ""
	if parseErr == nil {
		eventID = event.ID
		eventType = event.Type
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, membership.WebhookEventInput{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		_ = metrics.AddFailed(models.PaymentProviderStripe)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// Only deliveries that already processed cleanly are acknowledged as
	// duplicates. A redelivery of a failed event runs processing again, so
	// provider retries can succeed once the blocking condition is resolved.
	if !created && stored.ProcessedOK() {
		_ = metrics.AddDuplicate(models.PaymentProviderStripe)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		_ = metrics.AddFailed(models.PaymentProviderStripe)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		_ = metrics.AddFailed(models.PaymentProviderStripe)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	sub, handleErr := dispatchStripeEvent(ctx, svc, event)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, handleErr)
	if handleErr != nil {
		_ = metrics.AddFailed(models.PaymentProviderStripe)
		return webhookErrorResponse(c, handleErr)
	}

	if sub != nil {
		_ = cache.Delete(memberCacheKey(sub.UserID))
	}
	_ = metrics.AddProcessed(models.PaymentProviderStripe)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func dispatchStripeEvent(ctx context.Context, svc *membership.Service, event *stripeclient.Event) (*models.Subscription, error) {
	switch event.Type {
	case stripeclient.EventInvoicePaymentSucceeded:
		invoice, err := event.Invoice()
		if err != nil {
			return nil, err
		}
		ev, err := stripeclient.PaymentEventFromInvoice(invoice)
		if err != nil {
			return nil, err
		}
		res, err := svc.HandlePaymentEvent(ctx, ev)
		if err != nil {
			return nil, err
		}
		return res.Subscription, nil

	case stripeclient.EventSubscriptionDeleted:
		subObj, err := event.Subscription()
		if err != nil {
			return nil, err
		}
		ev, err := stripeclient.CancellationEventFromSubscription(subObj)
		if err != nil {
			return nil, err
		}
		return svc.HandleCancellationEvent(ctx, ev)

	case stripeclient.EventCheckoutSessionExpired:
		session, err := event.CheckoutSession()
		if err != nil {
			return nil, err
		}
		ev, err := stripeclient.FailureEventFromSession(session)
		if err != nil {
			return nil, err
		}
		return svc.HandlePaymentFailureEvent(ctx, ev)
	}

	// Recorded but not interesting to this service.
	return nil, nil
}

// HandlePretixWebhook ingests Pretix order notifications. Pretix does not
// sign its webhooks; the endpoint is protected by a shared token instead, and
// the notification is only trusted as a pointer: the order itself is fetched
// back from the Pretix API.
func HandlePretixWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	token := env.GetEnv("PRETIX_WEBHOOK_TOKEN", "")
	got := strings.TrimSpace(c.Query("token"))
	tokenValid := token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(got)) == 1

	svc := membership.NewService(repository.GetGlobalRepositories())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	notification, parseErr := pretixclient.ParseNotification(rawBody)
	eventID := ""
	eventType := ""
	if parseErr == nil {
		eventID = notification.EventID()
		eventType = notification.Action
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, membership.WebhookEventInput{
		Provider:        models.PaymentProviderPretix,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  tokenValid,
	})
	if err != nil {
		_ = metrics.AddFailed(models.PaymentProviderPretix)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// Same retry rule as the Stripe endpoint: only cleanly processed
	// deliveries short-circuit as duplicates.
	if !created && stored.ProcessedOK() {
		_ = metrics.AddDuplicate(models.PaymentProviderPretix)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !tokenValid {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook token"))
		_ = metrics.AddFailed(models.PaymentProviderPretix)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token"})
	}
	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		_ = metrics.AddFailed(models.PaymentProviderPretix)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	sub, handleErr := dispatchPretixNotification(ctx, svc, notification)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, handleErr)
	if handleErr != nil {
		_ = metrics.AddFailed(models.PaymentProviderPretix)
		return webhookErrorResponse(c, handleErr)
	}

	if sub != nil {
		_ = cache.Delete(memberCacheKey(sub.UserID))
	}
	_ = metrics.AddProcessed(models.PaymentProviderPretix)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func dispatchPretixNotification(ctx context.Context, svc *membership.Service, notification *pretixclient.Notification) (*models.Subscription, error) {
	client := pretixclient.NewClientFromEnv()

	switch notification.Action {
	case pretixclient.ActionOrderPaid:
		order, err := client.FetchOrder(ctx, notification.Organizer, notification.Event, notification.Code)
		if err != nil {
			return nil, err
		}
		ev, err := pretixclient.PaymentEventFromOrder(notification, order, client.Currency)
		if err != nil {
			return nil, err
		}
		res, err := svc.HandlePaymentEvent(ctx, ev)
		if err != nil {
			return nil, err
		}
		return res.Subscription, nil

	case pretixclient.ActionOrderCanceled:
		order, err := client.FetchOrder(ctx, notification.Organizer, notification.Event, notification.Code)
		if err != nil {
			return nil, err
		}
		ev, err := pretixclient.CancellationEventFromOrder(order)
		if err != nil {
			return nil, err
		}
		return svc.HandleCancellationEvent(ctx, ev)
	}

	return nil, nil
}

// webhookErrorResponse maps the ingestion error taxonomy to HTTP statuses.
// Unresolvable references get 422 (retryable, visible); contradictions get
// 409 and need manual investigation.
func webhookErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, membership.ErrNoCustomerForEvent):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "no_customer_for_event", "message": err.Error()})
	case errors.Is(err, membership.ErrNoSubscriptionForEvent):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "no_subscription_for_event", "message": err.Error()})
	case errors.Is(err, membership.ErrInconsistentState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "inconsistent_state", "message": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
}

func memberCacheKey(userID uint) string {
	return fmt.Sprintf("member:%d", userID)
}
