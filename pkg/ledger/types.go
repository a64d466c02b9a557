// Package ledger provides the per-user account ledger for a credit-based
// SaaS: the current plan, the subscription lifecycle status, and a consumable
// credit balance, plus an append-only journal of every monetary or
// credit-granting event. All mutations are expressed as relative deltas that
// the storage backend applies atomically.
package ledger

import "time"

// Plan is the tier of paid access a user has, distinct from whether a
// subscription is currently active.
type Plan string

const (
	// PlanFree is the default tier for users without a paid subscription.
	PlanFree Plan = "free"
	// PlanPro is the entry-level paid tier.
	PlanPro Plan = "pro"
	// PlanUltra is the top paid tier.
	PlanUltra Plan = "ultra"
)

// Valid reports whether p is one of the known plans.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanUltra:
		return true
	}
	return false
}

// Rank orders plans by price: free=0, pro=1, ultra=2.
// Unknown plans rank as 0.
func (p Plan) Rank() int {
	switch p {
	case PlanPro:
		return 1
	case PlanUltra:
		return 2
	default:
		return 0
	}
}

// SubscriptionStatus is the lifecycle state of the paid subscription.
// A canceled subscription keeps its plan until explicitly revoked.
type SubscriptionStatus string

const (
	// StatusInactive means no paid subscription exists.
	StatusInactive SubscriptionStatus = "inactive"
	// StatusActive means the subscription is current.
	StatusActive SubscriptionStatus = "active"
	// StatusCanceled means the subscription will not renew but has not been
	// revoked yet.
	StatusCanceled SubscriptionStatus = "canceled"
)

// Account is the durable per-user ledger row.
// Credits never goes negative; debits that would cross zero fail.
type Account struct {
	UserID    string
	Plan      Plan
	Status    SubscriptionStatus
	Credits   int
	UpdatedAt time.Time
}

// NewAccount returns the default account created at first authentication:
// free plan, inactive subscription, zero credits.
func NewAccount(userID string) *Account {
	return &Account{
		UserID:  userID,
		Plan:    PlanFree,
		Status:  StatusInactive,
		Credits: 0,
	}
}

// JournalEntryStatus is the completion state of a journal entry.
type JournalEntryStatus string

// JournalStatusCompleted is the only status written today; the field exists
// so pending/refunded states can be added without a schema change.
const JournalStatusCompleted JournalEntryStatus = "completed"

// JournalEntry is one immutable row of the payment journal. Every
// plan-increasing transition and every credit grant is backed by exactly one
// entry, keyed by (EventType, ExternalReference) for deduplication.
type JournalEntry struct {
	UserID string
	Plan   Plan

	// Amount is the money moved by this entry in minor currency units.
	// Zero-value entries mark plan changes with no monetary side effect.
	Amount int64

	// Credits is the number of credits granted by this entry, possibly 0.
	Credits int

	// EventType is the provider event that produced this entry
	// (e.g. "order.paid").
	EventType string

	// ExternalReference is the billing provider's checkout or subscription
	// id. Together with EventType it is the journal's uniqueness key.
	ExternalReference string

	Status    JournalEntryStatus
	CreatedAt time.Time
}
