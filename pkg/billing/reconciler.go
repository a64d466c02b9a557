package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// Reconciler consumes verified billing events and applies exactly one state
// transition to a user's {plan, subscription status, credits} tuple, plus an
// auditable journal entry where the transition moves money or credits.
//
// Domain-level failures (unknown product, unresolvable user) are swallowed
// and logged so the provider never retries events this system cannot act on;
// only infrastructure failures propagate to the caller.
type Reconciler struct {
	store   ledger.Store
	journal ledger.Journal
	catalog ledger.Catalog
	logger  ledger.Logger
	metrics Metrics
}

// ReconcilerConfig holds Reconciler configuration.
type ReconcilerConfig struct {
	// Store is the user account ledger (required).
	Store ledger.Store

	// Journal is the append-only payment journal (required).
	Journal ledger.Journal

	// Catalog maps provider product ids to plans (required).
	Catalog ledger.Catalog

	// Logger is used for structured logging (default: NoopLogger).
	Logger ledger.Logger

	// Metrics tracks webhook outcomes (default: NoopMetrics).
	Metrics Metrics
}

// NewReconciler creates a new billing event reconciler.
func NewReconciler(config ReconcilerConfig) (*Reconciler, error) {
	if config.Store == nil || config.Journal == nil {
		return nil, ErrProviderNotConfigured
	}
	if config.Catalog.ProProductID == "" || config.Catalog.UltraProductID == "" {
		return nil, fmt.Errorf("%w: product catalog is incomplete", ErrProviderNotConfigured)
	}
	if config.Logger == nil {
		config.Logger = &ledger.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	return &Reconciler{
		store:   config.Store,
		journal: config.Journal,
		catalog: config.Catalog,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Apply processes one verified event. It returns an error only for
// infrastructure failures (store unavailable); every domain-level "can't
// classify this event" condition is logged and acknowledged.
func (r *Reconciler) Apply(ctx context.Context, provider string, event *Event) error {
	if event == nil {
		return nil
	}

	switch event.Kind {
	case KindIgnored:
		r.logger.Debug("ignoring event", ledger.Field{Key: "type", Value: event.Type})
		r.metrics.RecordWebhookEvent(provider, event.Type, "ignored")
		return nil
	case KindOrderPaid:
		return r.applyOrderPaid(ctx, provider, event)
	case KindSubscriptionActive, KindSubscriptionUncanceled:
		return r.applyPlanActivation(ctx, provider, event)
	case KindSubscriptionCanceled:
		return r.applyStatusOnly(ctx, provider, event, ledger.StatusCanceled)
	case KindSubscriptionRevoked:
		return r.applyRevocation(ctx, provider, event)
	case KindSubscriptionUpdated:
		return r.applyPlanUpdate(ctx, provider, event)
	default:
		r.metrics.RecordWebhookEvent(provider, event.Type, "ignored")
		return nil
	}
}

// applyOrderPaid records a payment and grants the plan's credits. The journal
// append doubles as the redelivery receipt: a duplicate (event type, checkout
// id) entry means the credits were already granted.
func (r *Reconciler) applyOrderPaid(ctx context.Context, provider string, event *Event) error {
	account, ok, err := r.resolveAccount(ctx, provider, event)
	if err != nil || !ok {
		return err
	}

	plan, ok := r.resolvePlan(provider, event)
	if !ok {
		return nil
	}
	credits := r.catalog.CreditsForPlan(plan)

	err = r.journal.Append(ctx, &ledger.JournalEntry{
		UserID:            account.UserID,
		Plan:              plan,
		Amount:            event.Amount,
		Credits:           credits,
		EventType:         event.Type,
		ExternalReference: event.ExternalReference,
		Status:            ledger.JournalStatusCompleted,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			r.logger.Info("order already journaled, skipping credit grant",
				ledger.Field{Key: "user_id", Value: account.UserID},
				ledger.Field{Key: "reference", Value: event.ExternalReference})
			r.metrics.RecordWebhookEvent(provider, event.Type, "ignored")
			return nil
		}
		r.metrics.RecordWebhookError(provider, "journal_append_failed")
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	if _, err := r.store.ApplyDelta(ctx, account.UserID, ledger.Delta{Credits: credits}); err != nil {
		r.metrics.RecordWebhookError(provider, "ledger_update_failed")
		return fmt.Errorf("failed to grant credits: %w", err)
	}

	r.logger.Info("order paid",
		ledger.Field{Key: "user_id", Value: account.UserID},
		ledger.Field{Key: "plan", Value: string(plan)},
		ledger.Field{Key: "credits", Value: credits})
	r.metrics.RecordWebhookEvent(provider, event.Type, "success")
	r.metrics.RecordCreditsGranted(provider, event.Type, credits)
	return nil
}

// applyPlanActivation handles subscription.active and subscription.uncanceled:
// the resolved plan is set and the subscription becomes active.
func (r *Reconciler) applyPlanActivation(ctx context.Context, provider string, event *Event) error {
	account, ok, err := r.resolveAccount(ctx, provider, event)
	if err != nil || !ok {
		return err
	}

	plan, ok := r.resolvePlan(provider, event)
	if !ok {
		return nil
	}

	if _, err := r.store.ApplyDelta(ctx, account.UserID, ledger.Delta{
		Plan:   ledger.PlanPtr(plan),
		Status: ledger.StatusPtr(ledger.StatusActive),
	}); err != nil {
		r.metrics.RecordWebhookError(provider, "ledger_update_failed")
		return fmt.Errorf("failed to activate plan: %w", err)
	}

	if account.Plan != plan {
		r.metrics.RecordPlanChange(provider, string(account.Plan), string(plan))
	}
	r.logger.Info("subscription activated",
		ledger.Field{Key: "user_id", Value: account.UserID},
		ledger.Field{Key: "plan", Value: string(plan)})
	r.metrics.RecordWebhookEvent(provider, event.Type, "success")
	return nil
}

// applyStatusOnly handles subscription.canceled: the status flips but the
// plan is kept until the provider revokes it.
func (r *Reconciler) applyStatusOnly(
	ctx context.Context, provider string, event *Event, status ledger.SubscriptionStatus,
) error {
	account, ok, err := r.resolveAccount(ctx, provider, event)
	if err != nil || !ok {
		return err
	}

	if _, err := r.store.ApplyDelta(ctx, account.UserID, ledger.Delta{
		Status: ledger.StatusPtr(status),
	}); err != nil {
		r.metrics.RecordWebhookError(provider, "ledger_update_failed")
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	r.logger.Info("subscription status updated",
		ledger.Field{Key: "user_id", Value: account.UserID},
		ledger.Field{Key: "status", Value: string(status)})
	r.metrics.RecordWebhookEvent(provider, event.Type, "success")
	return nil
}

// applyRevocation handles subscription.revoked: always free/inactive,
// regardless of prior plan. Credits are untouched.
func (r *Reconciler) applyRevocation(ctx context.Context, provider string, event *Event) error {
	account, ok, err := r.resolveAccount(ctx, provider, event)
	if err != nil || !ok {
		return err
	}

	if _, err := r.store.ApplyDelta(ctx, account.UserID, ledger.Delta{
		Plan:   ledger.PlanPtr(ledger.PlanFree),
		Status: ledger.StatusPtr(ledger.StatusInactive),
	}); err != nil {
		r.metrics.RecordWebhookError(provider, "ledger_update_failed")
		return fmt.Errorf("failed to revoke subscription: %w", err)
	}

	if account.Plan != ledger.PlanFree {
		r.metrics.RecordPlanChange(provider, string(account.Plan), string(ledger.PlanFree))
	}
	r.logger.Info("subscription revoked",
		ledger.Field{Key: "user_id", Value: account.UserID})
	r.metrics.RecordWebhookEvent(provider, event.Type, "success")
	return nil
}

// applyPlanUpdate handles subscription.updated. Renewals (same plan) are
// no-ops without a journal entry. The pro to ultra upgrade grants the credit
// delta; every other change is plan bookkeeping backed by a zero-value audit
// entry. Redelivery is idempotent through the same-plan check: a replayed
// update finds the plan already applied and stops at step one.
func (r *Reconciler) applyPlanUpdate(ctx context.Context, provider string, event *Event) error {
	account, ok, err := r.resolveAccount(ctx, provider, event)
	if err != nil || !ok {
		return err
	}

	newPlan, ok := r.resolvePlan(provider, event)
	if !ok {
		return nil
	}

	if newPlan == account.Plan {
		r.logger.Info("subscription updated with same plan, skipping",
			ledger.Field{Key: "user_id", Value: account.UserID},
			ledger.Field{Key: "plan", Value: string(newPlan)})
		r.metrics.RecordWebhookEvent(provider, event.Type, "ignored")
		return nil
	}

	credits, amount, _ := r.catalog.UpgradeGrant(account.Plan, newPlan)

	if _, err := r.store.ApplyDelta(ctx, account.UserID, ledger.Delta{
		Plan:    ledger.PlanPtr(newPlan),
		Credits: credits,
	}); err != nil {
		r.metrics.RecordWebhookError(provider, "ledger_update_failed")
		return fmt.Errorf("failed to apply plan change: %w", err)
	}

	err = r.journal.Append(ctx, &ledger.JournalEntry{
		UserID:            account.UserID,
		Plan:              newPlan,
		Amount:            amount,
		Credits:           credits,
		EventType:         event.Type,
		ExternalReference: event.ExternalReference,
		Status:            ledger.JournalStatusCompleted,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			// A previous update of the same subscription already holds the
			// journal key; the ledger change above still stands.
			r.logger.Warn("plan change already journaled",
				ledger.Field{Key: "user_id", Value: account.UserID},
				ledger.Field{Key: "reference", Value: event.ExternalReference})
		} else {
			r.metrics.RecordWebhookError(provider, "journal_append_failed")
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
	}

	r.logger.Info("plan changed",
		ledger.Field{Key: "user_id", Value: account.UserID},
		ledger.Field{Key: "old_plan", Value: string(account.Plan)},
		ledger.Field{Key: "new_plan", Value: string(newPlan)},
		ledger.Field{Key: "credits", Value: credits})
	r.metrics.RecordPlanChange(provider, string(account.Plan), string(newPlan))
	if credits > 0 {
		r.metrics.RecordCreditsGranted(provider, event.Type, credits)
	}
	r.metrics.RecordWebhookEvent(provider, event.Type, "success")
	return nil
}

// resolveAccount maps the event's external customer id to a ledger row.
// A missing id or unknown user is a domain-level drop: logged, counted, and
// acknowledged with ok=false and a nil error.
func (r *Reconciler) resolveAccount(
	ctx context.Context, provider string, event *Event,
) (*ledger.Account, bool, error) {
	if event.UserID == "" {
		r.logger.Warn("no external customer id in event",
			ledger.Field{Key: "type", Value: event.Type})
		r.metrics.RecordWebhookEvent(provider, event.Type, "dropped")
		return nil, false, nil
	}

	account, err := r.store.GetAccount(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			r.logger.Warn("no account for external customer id",
				ledger.Field{Key: "type", Value: event.Type},
				ledger.Field{Key: "user_id", Value: event.UserID})
			r.metrics.RecordWebhookEvent(provider, event.Type, "dropped")
			return nil, false, nil
		}
		r.metrics.RecordWebhookError(provider, "ledger_read_failed")
		return nil, false, fmt.Errorf("failed to load account: %w", err)
	}
	return account, true, nil
}

// resolvePlan maps the event's product reference through the catalog.
// Unknown products are dropped with a logged warning.
func (r *Reconciler) resolvePlan(provider string, event *Event) (ledger.Plan, bool) {
	plan, ok := r.catalog.PlanForProduct(event.ProductID)
	if !ok {
		r.logger.Warn("unknown product id",
			ledger.Field{Key: "type", Value: event.Type},
			ledger.Field{Key: "product_id", Value: event.ProductID})
		r.metrics.RecordWebhookEvent(provider, event.Type, "dropped")
		return "", false
	}
	return plan, true
}
