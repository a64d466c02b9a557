// Package firestore provides a Firestore implementation of the ledger.Store
// and ledger.Journal interfaces. Deltas run inside Firestore transactions;
// journal deduplication uses document creation on a deterministic id.
package firestore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// Storage implements ledger.Store and ledger.Journal using Google Cloud Firestore
type Storage struct {
	client             *firestore.Client
	accountsCollection string
	journalCollection  string
}

// Config holds Firestore storage configuration
type Config struct {
	// AccountsCollection is the Firestore collection for user accounts
	// Default: "ledger_accounts"
	AccountsCollection string

	// JournalCollection is the Firestore collection for journal entries
	// Default: "ledger_journal"
	JournalCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.AccountsCollection == "" {
		config.AccountsCollection = "ledger_accounts"
	}
	if config.JournalCollection == "" {
		config.JournalCollection = "ledger_journal"
	}

	return &Storage{
		client:             client,
		accountsCollection: config.AccountsCollection,
		journalCollection:  config.JournalCollection,
	}, nil
}

// GetAccount implements ledger.Store
func (s *Storage) GetAccount(ctx context.Context, userID string) (*ledger.Account, error) {
	doc := s.client.Collection(s.accountsCollection).Doc(userID)
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: failed to get account: %v", ledger.ErrStorageUnavailable, err)
	}
	if !snap.Exists() {
		return nil, ledger.ErrAccountNotFound
	}

	return accountFromData(userID, snap.Data()), nil
}

// CreateAccount implements ledger.Store
func (s *Storage) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}
	if account.Credits < 0 {
		return ledger.ErrInsufficientCredits
	}

	doc := s.client.Collection(s.accountsCollection).Doc(account.UserID)
	_, err := doc.Create(ctx, map[string]interface{}{
		"plan":               string(account.Plan),
		"subscriptionStatus": string(account.Status),
		"credits":            account.Credits,
		"updatedAt":          time.Now().UTC(),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ledger.ErrAccountExists
		}
		return fmt.Errorf("%w: failed to create account: %v", ledger.ErrStorageUnavailable, err)
	}
	return nil
}

// ApplyDelta implements ledger.Store
func (s *Storage) ApplyDelta(ctx context.Context, userID string, delta ledger.Delta) (*ledger.Account, error) {
	doc := s.client.Collection(s.accountsCollection).Doc(userID)

	var result *ledger.Account
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ledger.ErrAccountNotFound
			}
			return err
		}
		if !snap.Exists() {
			return ledger.ErrAccountNotFound
		}

		account := accountFromData(userID, snap.Data())
		if account.Credits+delta.Credits < 0 {
			return ledger.ErrInsufficientCredits
		}

		if delta.Plan != nil {
			account.Plan = *delta.Plan
		}
		if delta.Status != nil {
			account.Status = *delta.Status
		}
		account.Credits += delta.Credits
		account.UpdatedAt = time.Now().UTC()

		if err := tx.Set(doc, map[string]interface{}{
			"plan":               string(account.Plan),
			"subscriptionStatus": string(account.Status),
			"credits":            account.Credits,
			"updatedAt":          account.UpdatedAt,
		}, firestore.MergeAll); err != nil {
			return err
		}

		result = account
		return nil
	})
	if err != nil {
		switch {
		case err == ledger.ErrAccountNotFound, err == ledger.ErrInsufficientCredits:
			return nil, err
		default:
			return nil, fmt.Errorf("%w: failed to apply delta: %v", ledger.ErrStorageUnavailable, err)
		}
	}
	return result, nil
}

// Append implements ledger.Journal
func (s *Storage) Append(ctx context.Context, entry *ledger.JournalEntry) error {
	if entry == nil || entry.UserID == "" {
		return fmt.Errorf("invalid journal entry")
	}

	entryStatus := entry.Status
	if entryStatus == "" {
		entryStatus = ledger.JournalStatusCompleted
	}

	doc := s.client.Collection(s.journalCollection).Doc(journalDocID(entry))
	_, err := doc.Create(ctx, map[string]interface{}{
		"userId":            entry.UserID,
		"plan":              string(entry.Plan),
		"amount":            entry.Amount,
		"credits":           entry.Credits,
		"eventType":         entry.EventType,
		"externalReference": entry.ExternalReference,
		"status":            string(entryStatus),
		"createdAt":         time.Now().UTC(),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ledger.ErrDuplicateEntry
		}
		return fmt.Errorf("%w: failed to append journal entry: %v", ledger.ErrStorageUnavailable, err)
	}
	return nil
}

// journalDocID builds the deterministic document id that backs journal
// deduplication. Slashes are illegal in Firestore document ids.
func journalDocID(entry *ledger.JournalEntry) string {
	id := entry.EventType + ":" + entry.ExternalReference
	return strings.ReplaceAll(id, "/", "_")
}

func accountFromData(userID string, data map[string]interface{}) *ledger.Account {
	return &ledger.Account{
		UserID:    userID,
		Plan:      ledger.Plan(getString(data, "plan")),
		Status:    ledger.SubscriptionStatus(getString(data, "subscriptionStatus")),
		Credits:   getInt(data, "credits"),
		UpdatedAt: getTime(data, "updatedAt"),
	}
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
