package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/pixelhatch/creditledger/pkg/billing"
	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// CheckoutURL creates a Stripe Checkout Session for a plan and returns the
// URL to redirect the user to. The plan is resolved to a Stripe price id
// through the configured catalog, and user_id/product_id metadata is
// injected so the webhook handler can reconcile the resulting events.
func (p *Provider) CheckoutURL(ctx context.Context, userID string, plan ledger.Plan, successURL, cancelURL string) (string, error) {
	if p.stripeClient == nil {
		return "", billing.ErrProviderNotConfigured
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	priceID, ok := p.catalog.ProductForPlan(plan)
	if !ok {
		return "", fmt.Errorf("%w: %s", billing.ErrPlanNotConfigured, plan)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
	}

	// Metadata for the webhook handler: the session itself and the
	// subscription it creates both carry the reconciliation keys.
	params.AddMetadata(metadataUserID, userID)
	params.AddMetadata(metadataProductID, priceID)
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(metadataUserID, userID)

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	p.logger.Info("checkout session created",
		ledger.Field{Key: "user_id", Value: userID},
		ledger.Field{Key: "plan", Value: string(plan)})
	return session.URL, nil
}
