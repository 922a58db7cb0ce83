package membership

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(repos *repository.Repositories) *Reconciler {
	r := NewReconciler(repos)
	r.Now = func() time.Time { return testNow }
	return r
}

func seedActiveSubscription(t *testing.T, repos *repository.Repositories, userID uint, periodEnd time.Time) *models.Subscription {
	t.Helper()
	sub, err := repos.Subscription.GetOrCreateByUserID(userID)
	require.NoError(t, err)

	_, _, err = repos.Payment.CreateIfNotExists(&models.Payment{
		IdempotencyKey: DeriveStripeKey(fmt.Sprintf("in_user_%d_%d", userID, periodEnd.Unix())),
		SubscriptionID: sub.ID,
		AmountCents:    5000,
		Currency:       "EUR",
		PaymentDate:    periodEnd.AddDate(0, -1, 0),
		PeriodStart:    periodEnd.AddDate(0, -1, 0),
		PeriodEnd:      periodEnd,
		Status:         models.PaymentStatusPaid,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, repos.Subscription.UpdateStatus(sub, models.SubscriptionStatusActive))
	return sub
}

func TestReconcileDemotesElapsedWindows(t *testing.T) {
	repos := newFakeRepositories()
	rec := newTestReconciler(repos)

	expired := seedActiveSubscription(t, repos, 1, testNow.AddDate(0, 0, -3))
	current := seedActiveSubscription(t, repos, 2, testNow.AddDate(0, 1, 0))

	result, err := rec.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 1, result.Demoted)
	assert.NotEmpty(t, result.RunID)

	got, err := repos.Subscription.GetByUserID(1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, got.Status, "subscription %d should be demoted", expired.ID)

	got, err = repos.Subscription.GetByUserID(2)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status, "subscription %d should stay active", current.ID)
}

func TestReconcileIsRepeatable(t *testing.T) {
	repos := newFakeRepositories()
	rec := newTestReconciler(repos)

	seedActiveSubscription(t, repos, 1, testNow.AddDate(0, 0, -3))

	result, err := rec.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Demoted)

	// Second sweep finds nothing active anymore.
	result, err = rec.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Examined)
	assert.Equal(t, 0, result.Demoted)
}

func TestReconcileDemotesActiveWithoutPayments(t *testing.T) {
	repos := newFakeRepositories()
	rec := newTestReconciler(repos)

	sub, err := repos.Subscription.GetOrCreateByUserID(5)
	require.NoError(t, err)
	require.NoError(t, repos.Subscription.UpdateStatus(sub, models.SubscriptionStatusActive))

	result, err := rec.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Demoted)

	got, err := repos.Subscription.GetByUserID(5)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, got.Status)
}

func TestReconcileNeverPromotes(t *testing.T) {
	repos := newFakeRepositories()
	rec := newTestReconciler(repos)

	// Pending subscription with a currently valid paid window: the sweep must
	// leave it alone, promotion is the event path's job.
	sub, err := repos.Subscription.GetOrCreateByUserID(9)
	require.NoError(t, err)
	_, _, err = repos.Payment.CreateIfNotExists(&models.Payment{
		IdempotencyKey: DeriveStripeKey("in_pending_valid"),
		SubscriptionID: sub.ID,
		AmountCents:    5000,
		Currency:       "EUR",
		PaymentDate:    testNow.AddDate(0, 0, -1),
		PeriodStart:    testNow.AddDate(0, 0, -1),
		PeriodEnd:      testNow.AddDate(0, 1, 0),
		Status:         models.PaymentStatusPaid,
	}, nil)
	require.NoError(t, err)

	result, err := rec.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Examined)

	got, err := repos.Subscription.GetByUserID(9)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPending, got.Status)
}

func TestReconcileRespectsContextCancellation(t *testing.T) {
	repos := newFakeRepositories()
	rec := newTestReconciler(repos)

	seedActiveSubscription(t, repos, 1, testNow.AddDate(0, 0, -3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.ReconcileOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
