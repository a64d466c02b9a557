// Package memory provides an in-memory implementation of the ledger.Store
// and ledger.Journal interfaces. This implementation is primarily intended
// for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// Storage implements ledger.Store and ledger.Journal using in-memory maps.
type Storage struct {
	mu       sync.RWMutex
	accounts map[string]*ledger.Account
	receipts map[string]struct{} // (event_type, external_reference) dedup keys
	entries  []*ledger.JournalEntry
}

// New creates a new in-memory storage adapter.
func New() *Storage {
	return &Storage{
		accounts: make(map[string]*ledger.Account),
		receipts: make(map[string]struct{}),
	}
}

// GetAccount implements ledger.Store.
func (s *Storage) GetAccount(ctx context.Context, userID string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}

	// Return a copy to prevent external mutations
	accountCopy := *account
	return &accountCopy, nil
}

// CreateAccount implements ledger.Store.
func (s *Storage) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}
	if account.Credits < 0 {
		return ledger.ErrInsufficientCredits
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return ledger.ErrAccountExists
	}

	accountCopy := *account
	accountCopy.UpdatedAt = time.Now().UTC()
	s.accounts[account.UserID] = &accountCopy
	return nil
}

// ApplyDelta implements ledger.Store.
func (s *Storage) ApplyDelta(ctx context.Context, userID string, delta ledger.Delta) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}

	if account.Credits+delta.Credits < 0 {
		return nil, ledger.ErrInsufficientCredits
	}

	if delta.Plan != nil {
		account.Plan = *delta.Plan
	}
	if delta.Status != nil {
		account.Status = *delta.Status
	}
	account.Credits += delta.Credits
	account.UpdatedAt = time.Now().UTC()

	accountCopy := *account
	return &accountCopy, nil
}

// PutAccount unconditionally stores an account row. Used by cache tiers to
// mirror the durable store's state.
func (s *Storage) PutAccount(ctx context.Context, account *ledger.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accountCopy := *account
	s.accounts[account.UserID] = &accountCopy
	return nil
}

// DeleteAccount removes an account row, if present.
func (s *Storage) DeleteAccount(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, userID)
	return nil
}

// Append implements ledger.Journal.
func (s *Storage) Append(ctx context.Context, entry *ledger.JournalEntry) error {
	if entry == nil || entry.UserID == "" {
		return fmt.Errorf("invalid journal entry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ExternalReference != "" {
		key := receiptKey(entry.EventType, entry.ExternalReference)
		if _, ok := s.receipts[key]; ok {
			return ledger.ErrDuplicateEntry
		}
		s.receipts[key] = struct{}{}
	}

	entryCopy := *entry
	if entryCopy.Status == "" {
		entryCopy.Status = ledger.JournalStatusCompleted
	}
	entryCopy.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, &entryCopy)
	return nil
}

// Entries returns a snapshot of all journal entries (useful for testing).
func (s *Storage) Entries() []*ledger.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.JournalEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entryCopy := *e
		out = append(out, &entryCopy)
	}
	return out
}

// Clear removes all data (useful for testing).
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*ledger.Account)
	s.receipts = make(map[string]struct{})
	s.entries = nil
}

// receiptKey generates the journal uniqueness key.
func receiptKey(eventType, externalReference string) string {
	return fmt.Sprintf("%s:%s", eventType, externalReference)
}
