package polar

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pixelhatch/creditledger/pkg/billing"
)

// Polar signs webhooks with the Standard Webhooks scheme: three headers and
// an HMAC-SHA256 over "{id}.{timestamp}.{body}" keyed by the shared secret.

const (
	headerID        = "webhook-id"
	headerTimestamp = "webhook-timestamp"
	headerSignature = "webhook-signature"

	secretPrefix = "whsec_"

	// defaultTimestampTolerance is the allowed clock skew in seconds.
	defaultTimestampTolerance = 5 * 60
)

// decodeSecret strips the whsec_ prefix and base64-decodes the key material.
// Secrets handed over in raw form are used as-is.
func decodeSecret(secret string) []byte {
	trimmed := strings.TrimPrefix(secret, secretPrefix)
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return decoded
	}
	return []byte(trimmed)
}

// verifySignature validates the three webhook headers against the raw body.
// Verification happens before the event type is inspected, so an attacker
// cannot probe which event types this endpoint ignores.
func (p *Provider) verifySignature(r *http.Request, body []byte, now time.Time) error {
	msgID := strings.TrimSpace(r.Header.Get(headerID))
	msgTimestamp := strings.TrimSpace(r.Header.Get(headerTimestamp))
	msgSignature := strings.TrimSpace(r.Header.Get(headerSignature))

	if msgID == "" || msgTimestamp == "" || msgSignature == "" {
		return billing.ErrInvalidWebhookSignature
	}

	ts, err := strconv.ParseInt(msgTimestamp, 10, 64)
	if err != nil {
		return billing.ErrInvalidWebhookSignature
	}
	skew := now.Unix() - ts
	if skew > p.tolerance || skew < -p.tolerance {
		return billing.ErrInvalidWebhookSignature
	}

	mac := hmac.New(sha256.New, p.webhookSecret)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(msgTimestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	// The header carries space-delimited "v1,<base64>" candidates; any match
	// accepts the payload.
	for _, candidate := range strings.Fields(msgSignature) {
		version, sig, found := strings.Cut(candidate, ",")
		if !found || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return billing.ErrInvalidWebhookSignature
}
