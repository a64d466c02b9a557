package polar

import (
	"encoding/json"
	"fmt"

	"github.com/pixelhatch/creditledger/pkg/billing"
)

// webhookPayload represents the Polar webhook payload structure. Order and
// subscription events share one data shape; fields the event type does not
// carry are simply absent.
type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		// Subscription id (subscription.* events)
		ID string `json:"id"`

		// Order fields (order.paid)
		NetAmount  int64  `json:"net_amount"`
		CheckoutID string `json:"checkout_id"`

		Customer struct {
			ID         string `json:"id"`
			ExternalID string `json:"external_id"`
		} `json:"customer"`

		Product struct {
			ID string `json:"id"`
		} `json:"product"`
	} `json:"data"`
}

// kindForType classifies a Polar event type into a handled reconciler kind.
// Anything outside the handled set is KindIgnored.
func kindForType(eventType string) billing.EventKind {
	switch eventType {
	case "order.paid":
		return billing.KindOrderPaid
	case "subscription.active":
		return billing.KindSubscriptionActive
	case "subscription.canceled":
		return billing.KindSubscriptionCanceled
	case "subscription.revoked":
		return billing.KindSubscriptionRevoked
	case "subscription.uncanceled":
		return billing.KindSubscriptionUncanceled
	case "subscription.updated":
		return billing.KindSubscriptionUpdated
	default:
		return billing.KindIgnored
	}
}

// parseEvent decodes a verified webhook body into a provider-neutral event.
func parseEvent(body []byte) (*billing.Event, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if payload.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", billing.ErrInvalidWebhookPayload)
	}

	event := &billing.Event{
		Kind:      kindForType(payload.Type),
		Type:      payload.Type,
		UserID:    payload.Data.Customer.ExternalID,
		ProductID: payload.Data.Product.ID,
	}

	// Orders are keyed by their checkout id, subscriptions by their own id.
	if event.Kind == billing.KindOrderPaid {
		event.Amount = payload.Data.NetAmount
		event.ExternalReference = payload.Data.CheckoutID
	} else {
		event.ExternalReference = payload.Data.ID
	}

	return event, nil
}
