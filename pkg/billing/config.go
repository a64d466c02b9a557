package billing

import (
	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// Config defines the standard configuration all providers should accept.
type Config struct {
	// Reconciler applies verified events to the user ledger (required).
	Reconciler *Reconciler

	// WebhookSecret is used to verify incoming webhook requests.
	WebhookSecret string

	// MaxBodyBytes caps the webhook request body size.
	// Defaults to 256 KiB.
	MaxBodyBytes int64

	// Logger is used for structured logging (default: NoopLogger).
	Logger ledger.Logger

	// Metrics is an optional metrics collector for webhook operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics
}

// DefaultMaxBodyBytes is the default webhook body size cap.
const DefaultMaxBodyBytes = 256 * 1024
