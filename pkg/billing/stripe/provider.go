// Package stripe implements the billing.Provider interface for Stripe.
// Deployments that sell through Stripe configure the catalog with Stripe
// price ids; webhook events are mapped onto the same reconciler transitions
// as any other provider.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/pixelhatch/creditledger/pkg/billing"
	"github.com/pixelhatch/creditledger/pkg/ledger"
)

const (
	providerName       = "stripe"
	defaultHTTPTimeout = 10 * time.Second

	metadataUserID    = "user_id"
	metadataProductID = "product_id"
)

// Config extends billing.Config with Stripe-specific options.
type Config struct {
	billing.Config // Base config (Reconciler, WebhookSecret, etc.)

	// StripeAPIKey authorizes outbound API calls (checkout sessions).
	// Optional when only the webhook handler is used.
	StripeAPIKey string

	// Catalog maps Stripe price ids to plans, and back for checkouts.
	Catalog ledger.Catalog
}

// Provider implements the billing.Provider interface for Stripe.
type Provider struct {
	reconciler    *billing.Reconciler
	catalog       ledger.Catalog
	webhookSecret string
	maxBodyBytes  int64
	stripeClient  *stripe.Client
	logger        ledger.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Reconciler == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	secret := strings.TrimSpace(config.WebhookSecret)
	if secret == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	maxBodyBytes := config.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = billing.DefaultMaxBodyBytes
	}

	logger := config.Logger
	if logger == nil {
		logger = &ledger.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	var client *stripe.Client
	if apiKey := strings.TrimSpace(config.StripeAPIKey); apiKey != "" {
		client = stripe.NewClient(apiKey)
	}

	return &Provider{
		reconciler:    config.Reconciler,
		catalog:       config.Catalog,
		webhookSecret: secret,
		maxBodyBytes:  maxBodyBytes,
		stripeClient:  client,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Name implements billing.Provider.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler implements billing.Provider.
func (p *Provider) WebhookHandler() http.Handler {
	return http.HandlerFunc(p.handleWebhook)
}
