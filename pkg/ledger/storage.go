package ledger

import "context"

// Delta is a relative mutation of an account row. Storage backends apply the
// whole delta as a single atomic operation, so concurrent webhook deliveries
// and generation debits for the same user cannot lose updates.
type Delta struct {
	// Plan, if non-nil, replaces the account's plan.
	Plan *Plan

	// Status, if non-nil, replaces the subscription status.
	Status *SubscriptionStatus

	// Credits is added to the balance. A negative value that would push the
	// balance below zero fails the whole delta with ErrInsufficientCredits.
	Credits int
}

// IsZero reports whether the delta mutates nothing.
func (d Delta) IsZero() bool {
	return d.Plan == nil && d.Status == nil && d.Credits == 0
}

// Store defines the interface for account ledger persistence.
type Store interface {
	// GetAccount retrieves a user's ledger row.
	// Returns ErrAccountNotFound if no row exists.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// CreateAccount inserts a new ledger row.
	// Returns ErrAccountExists if a row already exists for the user.
	CreateAccount(ctx context.Context, account *Account) error

	// ApplyDelta atomically applies a delta to an existing row and returns
	// the resulting account. Returns ErrAccountNotFound for unknown users and
	// ErrInsufficientCredits when a negative credit delta would cross zero;
	// in both cases nothing is mutated.
	ApplyDelta(ctx context.Context, userID string, delta Delta) (*Account, error)
}

// Journal defines the interface for the append-only payment journal.
// Entries are immutable history, never read back by the core.
type Journal interface {
	// Append writes one journal entry. A second append with the same
	// (EventType, ExternalReference) pair returns ErrDuplicateEntry and
	// writes nothing; callers use this as the redelivery receipt.
	Append(ctx context.Context, entry *JournalEntry) error
}

// PlanPtr returns a pointer to p, for building deltas.
func PlanPtr(p Plan) *Plan { return &p }

// StatusPtr returns a pointer to s, for building deltas.
func StatusPtr(s SubscriptionStatus) *SubscriptionStatus { return &s }
