package billing

// EventKind is the classification of a verified billing event into one of
// the handled transition kinds, or KindIgnored for anything else.
type EventKind int

const (
	// KindIgnored is the catch-all for event types outside the handled set.
	// Ignored events are acknowledged with no state change.
	KindIgnored EventKind = iota
	// KindOrderPaid is a completed payment: journal entry + credit grant.
	KindOrderPaid
	// KindSubscriptionActive activates a subscription and sets its plan.
	KindSubscriptionActive
	// KindSubscriptionCanceled marks the subscription canceled; the plan is
	// kept until revocation.
	KindSubscriptionCanceled
	// KindSubscriptionRevoked drops the user back to the free plan.
	KindSubscriptionRevoked
	// KindSubscriptionUncanceled resumes a canceled subscription.
	KindSubscriptionUncanceled
	// KindSubscriptionUpdated is a plan change (upgrade, downgrade, renewal).
	KindSubscriptionUpdated
)

// String returns the kind's canonical name.
func (k EventKind) String() string {
	switch k {
	case KindOrderPaid:
		return "order.paid"
	case KindSubscriptionActive:
		return "subscription.active"
	case KindSubscriptionCanceled:
		return "subscription.canceled"
	case KindSubscriptionRevoked:
		return "subscription.revoked"
	case KindSubscriptionUncanceled:
		return "subscription.uncanceled"
	case KindSubscriptionUpdated:
		return "subscription.updated"
	default:
		return "ignored"
	}
}

// Event is a verified, provider-neutral billing event. Providers map their
// wire payloads onto this struct before handing it to the Reconciler; the
// raw payload is never persisted.
type Event struct {
	// Kind is the handled transition kind.
	Kind EventKind

	// Type is the provider's original event type string, kept for logging
	// and journal entries.
	Type string

	// UserID is the external customer id, mapping 1:1 to a ledger row.
	UserID string

	// ProductID is the provider's product reference, resolved to a plan
	// through the catalog.
	ProductID string

	// Amount is the net amount paid in minor currency units (orders only).
	Amount int64

	// ExternalReference is the provider's checkout or subscription id, used
	// as the journal dedup key.
	ExternalReference string
}
