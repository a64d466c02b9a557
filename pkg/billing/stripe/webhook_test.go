package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/pixelhatch/creditledger/pkg/billing"
	"github.com/pixelhatch/creditledger/pkg/ledger"
	"github.com/pixelhatch/creditledger/storage/memory"
)

const (
	testUserID        = "user_123"
	testWebhookSecret = "whsec_stripe_test_secret"
	testPriceIDPro    = "price_pro_monthly"
	testPriceIDUltra  = "price_ultra_monthly"
)

func testCatalog() ledger.Catalog {
	return ledger.Catalog{
		ProProductID:   testPriceIDPro,
		UltraProductID: testPriceIDUltra,
	}
}

func newTestProvider(t *testing.T) (*Provider, *memory.Storage) {
	t.Helper()

	storage := memory.New()
	reconciler, err := billing.NewReconciler(billing.ReconcilerConfig{
		Store:   storage,
		Journal: storage,
		Catalog: testCatalog(),
	})
	if err != nil {
		t.Fatalf("Failed to create reconciler: %v", err)
	}

	provider, err := NewProvider(Config{
		Config: billing.Config{
			Reconciler:    reconciler,
			WebhookSecret: testWebhookSecret,
		},
		Catalog: testCatalog(),
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider, storage
}

func seedAccount(t *testing.T, storage *memory.Storage, userID string, plan ledger.Plan, credits int) {
	t.Helper()
	account := ledger.NewAccount(userID)
	account.Plan = plan
	account.Status = ledger.StatusActive
	account.Credits = credits
	if err := storage.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

// stripeSignature builds a Stripe-Signature header for the given body,
// matching the scheme stripe.ConstructEvent verifies: HMAC-SHA256 over
// "{timestamp}.{body}" with the raw secret.
func stripeSignature(secret string, body []byte, ts time.Time) string {
	signedPayload := fmt.Sprintf("%d.%s", ts.Unix(), body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func postSignedEvent(t *testing.T, provider *Provider, eventType string, raw []byte) *httptest.ResponseRecorder {
	t.Helper()

	envelope := map[string]interface{}{
		"id":          "evt_test",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": json.RawMessage(raw)},
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("Failed to marshal event envelope: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", stripeSignature(testWebhookSecret, body, time.Now()))
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook_CheckoutSessionCompleted(t *testing.T) {
	provider, storage := newTestProvider(t)
	ctx := context.Background()
	seedAccount(t, storage, testUserID, ledger.PlanFree, 0)

	session := map[string]interface{}{
		"id":           "cs_test_123",
		"amount_total": 1000,
		"metadata": map[string]string{
			"user_id":    testUserID,
			"product_id": testPriceIDPro,
		},
	}
	raw, _ := json.Marshal(session)

	rec := postSignedEvent(t, provider, "checkout.session.completed", raw)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	account, err := storage.GetAccount(ctx, testUserID)
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	if account.Credits != ledger.CreditsPro {
		t.Errorf("Expected %d credits, got %d", ledger.CreditsPro, account.Credits)
	}

	entries := storage.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 journal entry, got %d", len(entries))
	}
	if entries[0].ExternalReference != "cs_test_123" {
		t.Errorf("Expected external reference cs_test_123, got %s", entries[0].ExternalReference)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	provider, storage := newTestProvider(t)

	body := []byte(`{"id":"evt_test","type":"checkout.session.completed","data":{"object":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", stripeSignature("whsec_wrong_secret", body, time.Now()))
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
	if len(storage.Entries()) != 0 {
		t.Error("Expected no journal entries after rejected webhook")
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	provider, _ := newTestProvider(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	provider, _ := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestHandleWebhook_IgnoredEventType(t *testing.T) {
	provider, storage := newTestProvider(t)

	rec := postSignedEvent(t, provider, "invoice.payment_succeeded", []byte(`{}`))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for ignored event, got %d", rec.Code)
	}
	if len(storage.Entries()) != 0 {
		t.Error("Expected no journal entries for ignored event")
	}
}

func TestTranslateEvent_CheckoutFallsBackToClientReferenceID(t *testing.T) {
	provider, _ := newTestProvider(t)

	session := &stripe.CheckoutSession{
		ID:                "cs_test_ref",
		ClientReferenceID: testUserID,
		AmountTotal:       2900,
		Metadata: map[string]string{
			"product_id": testPriceIDUltra,
		},
	}
	raw, _ := json.Marshal(session)
	stripeEvent := &stripe.Event{
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}

	event, err := provider.translateEvent(stripeEvent)
	if err != nil {
		t.Fatalf("translateEvent failed: %v", err)
	}
	if event.Kind != billing.KindOrderPaid {
		t.Errorf("Expected KindOrderPaid, got %v", event.Kind)
	}
	if event.UserID != testUserID {
		t.Errorf("Expected user id from client_reference_id, got %q", event.UserID)
	}
	if event.Amount != 2900 {
		t.Errorf("Expected amount 2900, got %d", event.Amount)
	}
}

func TestKindForSubscription(t *testing.T) {
	provider, _ := newTestProvider(t)

	sub := func(cancelAtPeriodEnd bool) *stripe.Subscription {
		return &stripe.Subscription{
			ID:                "sub_test",
			CancelAtPeriodEnd: cancelAtPeriodEnd,
		}
	}

	tests := []struct {
		name         string
		eventType    stripe.EventType
		subscription *stripe.Subscription
		previous     map[string]interface{}
		want         billing.EventKind
	}{
		{
			name:         "created maps to active",
			eventType:    "customer.subscription.created",
			subscription: sub(false),
			want:         billing.KindSubscriptionActive,
		},
		{
			name:         "deleted maps to revoked",
			eventType:    "customer.subscription.deleted",
			subscription: sub(false),
			want:         billing.KindSubscriptionRevoked,
		},
		{
			name:         "updated with cancel_at_period_end maps to canceled",
			eventType:    "customer.subscription.updated",
			subscription: sub(true),
			want:         billing.KindSubscriptionCanceled,
		},
		{
			name:         "updated clearing cancel_at_period_end maps to uncanceled",
			eventType:    "customer.subscription.updated",
			subscription: sub(false),
			previous:     map[string]interface{}{"cancel_at_period_end": true},
			want:         billing.KindSubscriptionUncanceled,
		},
		{
			name:         "plain update maps to updated",
			eventType:    "customer.subscription.updated",
			subscription: sub(false),
			want:         billing.KindSubscriptionUpdated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stripeEvent := &stripe.Event{
				Type: tt.eventType,
				Data: &stripe.EventData{PreviousAttributes: tt.previous},
			}
			got := provider.kindForSubscription(stripeEvent, tt.subscription)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTranslateEvent_SubscriptionLifecycle(t *testing.T) {
	provider, storage := newTestProvider(t)
	ctx := context.Background()
	seedAccount(t, storage, testUserID, ledger.PlanFree, 0)

	subscription := &stripe.Subscription{
		ID: "sub_lifecycle",
		Metadata: map[string]string{
			"user_id": testUserID,
		},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: testPriceIDPro}},
			},
		},
	}
	raw, _ := json.Marshal(subscription)

	rec := postSignedEvent(t, provider, "customer.subscription.created", raw)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	account, err := storage.GetAccount(ctx, testUserID)
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	if account.Plan != ledger.PlanPro {
		t.Errorf("Expected plan pro, got %s", account.Plan)
	}
	if account.Status != ledger.StatusActive {
		t.Errorf("Expected status active, got %s", account.Status)
	}

	// Revocation drops the user back to the free plan.
	rec = postSignedEvent(t, provider, "customer.subscription.deleted", raw)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	account, err = storage.GetAccount(ctx, testUserID)
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	if account.Plan != ledger.PlanFree {
		t.Errorf("Expected plan free after revocation, got %s", account.Plan)
	}
	if account.Status != ledger.StatusInactive {
		t.Errorf("Expected status inactive after revocation, got %s", account.Status)
	}
}

func TestPriceIDForSubscription(t *testing.T) {
	if got := priceIDForSubscription(&stripe.Subscription{}); got != "" {
		t.Errorf("Expected empty price id for subscription without items, got %q", got)
	}

	sub := &stripe.Subscription{
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: testPriceIDUltra}},
			},
		},
	}
	if got := priceIDForSubscription(sub); got != testPriceIDUltra {
		t.Errorf("Expected %s, got %s", testPriceIDUltra, got)
	}
}
