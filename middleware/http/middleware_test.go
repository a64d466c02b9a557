package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pixelhatch/creditledger/pkg/ledger"
	"github.com/pixelhatch/creditledger/storage/memory"
)

const testUserID = "user123"

func newTestService(t *testing.T, credits int) (*ledger.Service, *memory.Storage) {
	t.Helper()
	storage := memory.New()
	service, err := ledger.NewService(storage, ledger.ServiceConfig{})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	account := ledger.NewAccount(testUserID)
	account.Credits = credits
	if err := storage.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return service, storage
}

func credits(t *testing.T, storage *memory.Storage) int {
	t.Helper()
	account, err := storage.GetAccount(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	return account.Credits
}

func TestMiddleware_DebitsOneCreditPerRequest(t *testing.T) {
	service, storage := newTestService(t, 3)

	handler := Middleware(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got := credits(t, storage); got != 2 {
		t.Errorf("Expected 2 credits after debit, got %d", got)
	}
}

func TestMiddleware_RefundsOnHandlerFailure(t *testing.T) {
	service, storage := newTestService(t, 3)

	handler := Middleware(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream failure", http.StatusBadGateway)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", rec.Code)
	}
	if got := credits(t, storage); got != 3 {
		t.Errorf("Expected balance restored to 3 after refund, got %d", got)
	}
}

func TestMiddleware_NoRefundOnClientError(t *testing.T) {
	service, storage := newTestService(t, 3)

	handler := Middleware(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := credits(t, storage); got != 2 {
		t.Errorf("Expected 2 credits (no refund on 4xx), got %d", got)
	}
}

func TestMiddleware_InsufficientCredits(t *testing.T) {
	service, storage := newTestService(t, 0)

	called := false
	handler := Middleware(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
	})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	if called {
		t.Error("Handler should not run when the balance is empty")
	}
	if got := credits(t, storage); got != 0 {
		t.Errorf("Expected 0 credits, got %d", got)
	}
}

func TestMiddleware_CustomInsufficientCreditsHandler(t *testing.T) {
	service, _ := newTestService(t, 0)

	handler := Middleware(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
		OnInsufficientCredits: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "buy more credits", http.StatusPaymentRequired)
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", rec.Code)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	service, _ := newTestService(t, 3)

	handler := Middleware(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestMiddleware_CustomRefundOn(t *testing.T) {
	service, storage := newTestService(t, 3)

	handler := Middleware(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
		// Treat any non-200 as a failed generation.
		RefundOn: func(status int) bool { return status != http.StatusOK },
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := credits(t, storage); got != 3 {
		t.Errorf("Expected refund under custom policy, got %d credits", got)
	}
}

func TestHandlerFunc(t *testing.T) {
	service, storage := newTestService(t, 1)

	wrapped := HandlerFunc(Config{
		Service:   service,
		GetUserID: FromHeader("X-User-ID"),
	})(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	wrapped(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got := credits(t, storage); got != 0 {
		t.Errorf("Expected 0 credits, got %d", got)
	}
}

func TestFromContext(t *testing.T) {
	type ctxKey string
	key := ctxKey("uid")

	extract := FromContext(key)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := extract(req); got != "" {
		t.Errorf("Expected empty user id, got %q", got)
	}

	req = req.WithContext(context.WithValue(req.Context(), key, testUserID))
	if got := extract(req); got != testUserID {
		t.Errorf("Expected %s, got %s", testUserID, got)
	}
}
