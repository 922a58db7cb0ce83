package membership

import "errors"

// Error taxonomy for event ingestion and state transitions. Handlers
// propagate these to the transport layer unchanged; callers branch with
// errors.Is.
var (
	// ErrNoCustomerForEvent means the event's customer reference matches no
	// provider account link. Either provider data is out of sync or the
	// local link was never created; both need operator visibility, so this
	// is never swallowed.
	ErrNoCustomerForEvent = errors.New("no customer found for event")

	// ErrNoSubscriptionForEvent means the customer resolved to a user that
	// has no subscription, on a path that must not create one (cancellation
	// or failure signals).
	ErrNoSubscriptionForEvent = errors.New("no subscription found for event")

	// ErrInconsistentState means a requested transition contradicts the
	// ledger facts. Nothing is mutated; the conflict is logged for manual
	// investigation instead of being coerced into some valid state.
	ErrInconsistentState = errors.New("inconsistent subscription state")

	// ErrWindowNotCurrent means a payment's validity window does not cover
	// the given instant, so it must not activate the subscription.
	ErrWindowNotCurrent = errors.New("payment window does not cover now")
)
