package polar

import (
	"errors"
	"net/http"
	"time"

	"github.com/pixelhatch/creditledger/pkg/billing/internal"
	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// handleWebhook processes incoming Polar webhook events.
//
// Response contract: 200 {"received": true} for any successfully processed or
// deliberately ignored event, 403 when signature verification fails, 500 for
// malformed payloads and store failures (eligible for provider redelivery).
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
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

	// Signature before anything else: the unverified body is not inspected,
	// not even to decide whether the event type is handled.
	if err := p.verifySignature(r, body, time.Now().UTC()); err != nil {
		p.logger.Warn("webhook signature verification failed")
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		_ = internal.WriteJSON(w, http.StatusForbidden, map[string]string{
			"error": "invalid webhook signature",
		})
		return
	}

	event, err := parseEvent(body)
	if err != nil {
		p.logger.Error("webhook payload parse failed",
			ledger.Field{Key: "error", Value: err.Error()})
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		_ = internal.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "webhook processing failed",
		})
		return
	}

	p.logger.Info("webhook event received",
		ledger.Field{Key: "type", Value: event.Type})

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

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
