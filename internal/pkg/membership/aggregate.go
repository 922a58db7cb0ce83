package membership

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/app/repository"
	"github.com/gofiber/fiber/v2/log"
)

// Aggregate is the per-user subscription state machine. States are pending
// (initial), active (a payment window currently covers now) and canceled
// (terminal until a new payment arrives). Every transition is idempotent so
// redelivered events and racing deliveries converge on the same end state.
type Aggregate struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
}

// NewAggregate creates the state machine over its repositories. The payment
// repository is only read, for the contradiction guard.
func NewAggregate(subs repository.SubscriptionRepository, payments repository.PaymentRepository) *Aggregate {
	return &Aggregate{subs: subs, payments: payments}
}

// MarkActive transitions pending or canceled to active, driven by a payment
// whose validity window must contain now. A payment with an elapsed or
// not-yet-started window must not re-activate anything; stale out-of-order
// deliveries hit exactly this guard. Already-active is a no-op.
func (a *Aggregate) MarkActive(sub *models.Subscription, payment *models.Payment, now time.Time) error {
	if sub.Status == models.SubscriptionStatusActive {
		return nil
	}
	if !payment.CoversInstant(now) {
		return fmt.Errorf("%w: payment %d window [%s, %s], now %s",
			ErrWindowNotCurrent, payment.ID,
			payment.PeriodStart.Format(time.RFC3339), payment.PeriodEnd.Format(time.RFC3339),
			now.Format(time.RFC3339))
	}
	return a.subs.UpdateStatus(sub, models.SubscriptionStatusActive)
}

// MarkCanceled transitions active or pending to canceled. Already-canceled is
// a no-op, so cancellation events and the reconciliation sweep can both hit
// the same subscription without error.
func (a *Aggregate) MarkCanceled(sub *models.Subscription) error {
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}
	return a.subs.UpdateStatus(sub, models.SubscriptionStatusCanceled)
}

// RefuseIfPaymentsExist is the contradiction guard: a "payment never
// completed" signal is incompatible with a subscription that already has paid
// ledger rows. The conflict is logged with enough context for manual
// investigation and nothing is mutated.
func (a *Aggregate) RefuseIfPaymentsExist(sub *models.Subscription, requested string) error {
	count, err := a.payments.CountPaidBySubscriptionID(sub.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Errorf("[Membership] refusing transition %q for subscription %d (user %d): %d paid ledger rows contradict it",
			requested, sub.ID, sub.UserID, count)
		return fmt.Errorf("%w: subscription %d has %d paid payments, transition %q refused",
			ErrInconsistentState, sub.ID, count, requested)
	}
	return nil
}
