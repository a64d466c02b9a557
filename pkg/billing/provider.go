// Package billing contains the provider-neutral billing layer: the Provider
// interface webhook backends implement, the Event model they emit, and the
// Reconciler that applies exactly one ledger state transition per event.
package billing

import "net/http"

// Provider is the generic interface that any billing backend must implement.
// This allows the application to swap Polar for Stripe with zero logic changes.
type Provider interface {
	// Name returns the provider name (e.g., "polar", "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles signature verification, parsing, and
	// Reconciler updates internally.
	WebhookHandler() http.Handler
}
