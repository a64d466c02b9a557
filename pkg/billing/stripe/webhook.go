package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/pixelhatch/creditledger/pkg/billing"
	"github.com/pixelhatch/creditledger/pkg/billing/internal"
	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// handleWebhook processes incoming Stripe webhook events.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, p.maxBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	stripeEvent, err := webhook.ConstructEvent(body, sig, p.webhookSecret)
	if err != nil {
		p.logger.Warn("webhook signature verification failed")
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		_ = internal.WriteJSON(w, http.StatusForbidden, map[string]string{
			"error": "invalid webhook signature",
		})
		return
	}

	event, err := p.translateEvent(&stripeEvent)
	if err != nil {
		p.logger.Error("webhook payload parse failed",
			ledger.Field{Key: "type", Value: string(stripeEvent.Type)},
			ledger.Field{Key: "error", Value: err.Error()})
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		_ = internal.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "webhook processing failed",
		})
		return
	}

	if err := p.reconciler.Apply(r.Context(), providerName, event); err != nil {
		p.logger.Error("webhook event processing failed",
			ledger.Field{Key: "type", Value: event.Type},
			ledger.Field{Key: "error", Value: err.Error()})
		p.metrics.RecordWebhookEvent(providerName, event.Type, "error")
		p.metrics.RecordWebhookProcessingDuration(providerName, event.Type, time.Since(startTime))
		_ = internal.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "webhook processing failed",
		})
		return
	}

	p.metrics.RecordWebhookProcessingDuration(providerName, event.Type, time.Since(startTime))
	_ = internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// translateEvent maps a verified Stripe event onto the provider-neutral
// event model:
//
//	checkout.session.completed            -> order paid
//	customer.subscription.created         -> subscription active
//	customer.subscription.updated         -> canceled / uncanceled / plan change
//	customer.subscription.deleted         -> subscription revoked
//
// Checkout sessions created by CheckoutURL carry user_id and product_id in
// metadata; subscription events resolve the plan from their first item's
// price id.
func (p *Provider) translateEvent(stripeEvent *stripe.Event) (*billing.Event, error) {
	switch stripeEvent.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}

		userID := session.Metadata[metadataUserID]
		if userID == "" {
			userID = session.ClientReferenceID
		}
		return &billing.Event{
			Kind:              billing.KindOrderPaid,
			Type:              string(stripeEvent.Type),
			UserID:            userID,
			ProductID:         session.Metadata[metadataProductID],
			Amount:            session.AmountTotal,
			ExternalReference: session.ID,
		}, nil

	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		var subscription stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &subscription); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}

		event := &billing.Event{
			Kind:              p.kindForSubscription(stripeEvent, &subscription),
			Type:              string(stripeEvent.Type),
			UserID:            subscription.Metadata[metadataUserID],
			ProductID:         priceIDForSubscription(&subscription),
			ExternalReference: subscription.ID,
		}
		return event, nil

	default:
		return &billing.Event{
			Kind: billing.KindIgnored,
			Type: string(stripeEvent.Type),
		}, nil
	}
}

// kindForSubscription classifies subscription lifecycle events.
func (p *Provider) kindForSubscription(
	stripeEvent *stripe.Event, subscription *stripe.Subscription,
) billing.EventKind {
	switch stripeEvent.Type {
	case "customer.subscription.created":
		return billing.KindSubscriptionActive
	case "customer.subscription.deleted":
		return billing.KindSubscriptionRevoked
	}

	// customer.subscription.updated: cancel-at-period-end transitions map to
	// canceled/uncanceled, everything else is a plan change or renewal.
	if subscription.CancelAtPeriodEnd {
		return billing.KindSubscriptionCanceled
	}
	if prev, ok := stripeEvent.Data.PreviousAttributes["cancel_at_period_end"].(bool); ok && prev {
		return billing.KindSubscriptionUncanceled
	}
	return billing.KindSubscriptionUpdated
}

// priceIDForSubscription returns the first item's price id; the catalog
// resolves it to a plan.
func priceIDForSubscription(subscription *stripe.Subscription) string {
	if subscription.Items == nil {
		return ""
	}
	for _, item := range subscription.Items.Data {
		if item != nil && item.Price != nil {
			return item.Price.ID
		}
	}
	return ""
}
