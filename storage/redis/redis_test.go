package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	// Clear test database
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := New(setupTestRedis(t), DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return storage
}

func TestNew(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("Expected error for nil client")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	storage, err := New(client, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if storage.config.KeyPrefix != "creditledger:" {
		t.Errorf("Expected default key prefix, got %q", storage.config.KeyPrefix)
	}
}

func TestStorage_CreateGetAccount(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.GetAccount(ctx, "user1")
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}

	if err := storage.CreateAccount(ctx, ledger.NewAccount("user1")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := storage.CreateAccount(ctx, ledger.NewAccount("user1")); !errors.Is(err, ledger.ErrAccountExists) {
		t.Errorf("Expected ErrAccountExists, got %v", err)
	}

	account, err := storage.GetAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.Plan != ledger.PlanFree || account.Status != ledger.StatusInactive || account.Credits != 0 {
		t.Errorf("Unexpected default account state: %+v", account)
	}
	if account.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}
}

func TestStorage_ApplyDelta(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	if err := storage.CreateAccount(ctx, ledger.NewAccount("user1")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	account, err := storage.ApplyDelta(ctx, "user1", ledger.Delta{
		Plan:    ledger.PlanPtr(ledger.PlanUltra),
		Status:  ledger.StatusPtr(ledger.StatusActive),
		Credits: ledger.CreditsUltra,
	})
	if err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	if account.Plan != ledger.PlanUltra {
		t.Errorf("Expected plan ultra, got %s", account.Plan)
	}
	if account.Status != ledger.StatusActive {
		t.Errorf("Expected status active, got %s", account.Status)
	}
	if account.Credits != ledger.CreditsUltra {
		t.Errorf("Expected %d credits, got %d", ledger.CreditsUltra, account.Credits)
	}

	// Credit-only delta keeps plan and status untouched.
	account, err = storage.ApplyDelta(ctx, "user1", ledger.Delta{Credits: -1})
	if err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	if account.Plan != ledger.PlanUltra || account.Status != ledger.StatusActive {
		t.Errorf("Credit-only delta changed plan/status: %+v", account)
	}
	if account.Credits != ledger.CreditsUltra-1 {
		t.Errorf("Expected %d credits, got %d", ledger.CreditsUltra-1, account.Credits)
	}

	_, err = storage.ApplyDelta(ctx, "ghost", ledger.Delta{Credits: 1})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestStorage_ApplyDelta_InsufficientCredits(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	account := ledger.NewAccount("user1")
	account.Credits = 1
	if err := storage.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	_, err := storage.ApplyDelta(ctx, "user1", ledger.Delta{
		Plan:    ledger.PlanPtr(ledger.PlanPro),
		Credits: -2,
	})
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("Expected ErrInsufficientCredits, got %v", err)
	}

	// The failed delta must not have applied its plan change either.
	retrieved, err := storage.GetAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if retrieved.Plan != ledger.PlanFree {
		t.Errorf("Plan changed by failed delta: got %s", retrieved.Plan)
	}
	if retrieved.Credits != 1 {
		t.Errorf("Credits changed by failed delta: got %d", retrieved.Credits)
	}
}

func TestStorage_ApplyDelta_ConcurrentDebits(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	account := ledger.NewAccount("user1")
	account.Credits = 10
	if err := storage.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	const attempts = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := storage.ApplyDelta(ctx, "user1", ledger.Delta{Credits: -1}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("Expected exactly 10 successful debits, got %d", succeeded)
	}

	retrieved, err := storage.GetAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if retrieved.Credits != 0 {
		t.Errorf("Expected 0 credits, got %d", retrieved.Credits)
	}
}

func TestStorage_JournalAppend_Deduplicates(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	entry := &ledger.JournalEntry{
		UserID:            "user1",
		Plan:              ledger.PlanPro,
		Amount:            1000,
		Credits:           ledger.CreditsPro,
		EventType:         "order.paid",
		ExternalReference: "checkout_abc",
	}

	if err := storage.Append(ctx, entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := storage.Append(ctx, entry); !errors.Is(err, ledger.ErrDuplicateEntry) {
		t.Errorf("Expected ErrDuplicateEntry, got %v", err)
	}

	// Same reference under a different event type is a distinct entry.
	other := *entry
	other.EventType = "subscription.updated"
	if err := storage.Append(ctx, &other); err != nil {
		t.Errorf("Append with different event type failed: %v", err)
	}

	count, err := storage.client.LLen(ctx, storage.journalKey("user1")).Result()
	if err != nil {
		t.Fatalf("LLen failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 journal entries, got %d", count)
	}
}

func TestStorage_JournalAppend_ConcurrentDuplicates(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := storage.Append(ctx, &ledger.JournalEntry{
				UserID:            "user1",
				Plan:              ledger.PlanUltra,
				EventType:         "order.paid",
				ExternalReference: "checkout_race",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly 1 successful append, got %d", succeeded)
	}
}
