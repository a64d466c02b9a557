// Package polar implements the billing.Provider interface for Polar.
// Incoming webhooks are verified with the Standard Webhooks signature scheme
// before any event data is inspected, then mapped onto reconciler events.
package polar

import (
	"net/http"
	"strings"

	"github.com/pixelhatch/creditledger/pkg/billing"
	"github.com/pixelhatch/creditledger/pkg/ledger"
)

const providerName = "polar"

// Config extends billing.Config with Polar-specific options.
type Config struct {
	billing.Config // Base config (Reconciler, WebhookSecret, etc.)

	// TimestampTolerance overrides the default webhook timestamp skew
	// allowance (5 minutes). Zero keeps the default.
	TimestampTolerance int64
}

// Provider implements the billing.Provider interface for Polar.
type Provider struct {
	reconciler    *billing.Reconciler
	webhookSecret []byte
	maxBodyBytes  int64
	tolerance     int64
	logger        ledger.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Polar billing provider.
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

	tolerance := config.TimestampTolerance
	if tolerance <= 0 {
		tolerance = defaultTimestampTolerance
	}

	logger := config.Logger
	if logger == nil {
		logger = &ledger.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		reconciler:    config.Reconciler,
		webhookSecret: decodeSecret(secret),
		maxBodyBytes:  maxBodyBytes,
		tolerance:     tolerance,
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
