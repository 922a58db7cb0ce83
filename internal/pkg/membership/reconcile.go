package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reconciler independently re-derives validity from the ledger: any active
// subscription whose latest paid window has elapsed is demoted. It only ever
// demotes; a subscription with an unprocessed-but-valid payment is expected
// to already be active via the event path. The sweep is a safety net for
// missed cancellation events, not a substitute for ingestion.
type Reconciler struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	agg      *Aggregate

	// Now is the clock used for window comparison; replaced in tests.
	Now func() time.Time

	mu      sync.Mutex
	running bool
}

// NewReconciler creates a reconciler from injected repositories.
func NewReconciler(repos *repository.Repositories) *Reconciler {
	return &Reconciler{
		subs:     repos.Subscription,
		payments: repos.Payment,
		agg:      NewAggregate(repos.Subscription, repos.Payment),
		Now:      time.Now,
	}
}

// NewReconcilerFromDB creates a reconciler from a GORM DB handle.
func NewReconcilerFromDB(db *gorm.DB) *Reconciler {
	return NewReconciler(repository.NewRepositories(db))
}

// ErrSweepAlreadyRunning is returned when a sweep is triggered while another
// one is still executing in this process.
var ErrSweepAlreadyRunning = errors.New("reconciliation sweep already running")

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	RunID    string `json:"run_id"`
	Examined int    `json:"examined"`
	Demoted  int    `json:"demoted"`
}

// ReconcileOnce runs a single sweep over all active subscriptions. A
// persistence error aborts the sweep; the next scheduled run retries, and
// re-evaluating an already-canceled subscription is a no-op, so partial
// failure is safe. At most one sweep executes per process at a time;
// cross-process exclusion is the scheduler's job (redis lock).
func (r *Reconciler) ReconcileOnce(ctx context.Context) (*SweepResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrSweepAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	result := &SweepResult{RunID: uuid.NewString()}
	now := r.Now()

	active, err := r.subs.ListByStatus(models.SubscriptionStatusActive)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: listing active subscriptions: %w", result.RunID, err)
	}

	for i := range active {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sub := &active[i]
		result.Examined++

		latest, err := r.payments.LatestPaidBySubscriptionID(sub.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Active with an empty ledger is drift; demote and say so.
				log.Warnf("[Reconcile %s] subscription %d (user %d) is active without any paid payment, demoting",
					result.RunID, sub.ID, sub.UserID)
				if err := r.agg.MarkCanceled(sub); err != nil {
					return result, fmt.Errorf("reconcile %s: demoting subscription %d: %w", result.RunID, sub.ID, err)
				}
				result.Demoted++
				continue
			}
			return result, fmt.Errorf("reconcile %s: loading latest payment for subscription %d: %w", result.RunID, sub.ID, err)
		}

		if latest.PeriodEnd.Before(now) {
			if err := r.agg.MarkCanceled(sub); err != nil {
				return result, fmt.Errorf("reconcile %s: demoting subscription %d: %w", result.RunID, sub.ID, err)
			}
			result.Demoted++
		}
	}

	log.Infof("[Reconcile %s] sweep done: examined=%d demoted=%d", result.RunID, result.Examined, result.Demoted)
	return result, nil
}
