// Package redis provides a Redis implementation of the ledger.Store and
// ledger.Journal interfaces. Deltas are applied atomically via Lua scripts;
// journal deduplication uses SETNX-style receipt keys.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// Storage implements ledger.Store and ledger.Journal using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "creditledger:")
	KeyPrefix string

	// ReceiptTTL is the TTL for journal dedup receipt keys
	// (0 = no expiration)
	ReceiptTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "creditledger:",
		ReceiptTTL: 0, // Receipts don't expire
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "creditledger:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()
	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Storage) loadScripts() {
	// Create an account hash only if no hash exists yet
	s.scripts["create"] = redis.NewScript(`
		local accountKey = KEYS[1]
		local plan = ARGV[1]
		local status = ARGV[2]
		local credits = tonumber(ARGV[3])
		local now = ARGV[4]

		if redis.call('EXISTS', accountKey) == 1 then
			return 'exists'
		end

		redis.call('HSET', accountKey,
			'plan', plan,
			'status', status,
			'credits', credits,
			'updated_at', now)
		return 'ok'
	`)

	// Apply a delta atomically: optional plan/status overwrite plus a
	// credit adjustment that must not push the balance below zero
	s.scripts["apply_delta"] = redis.NewScript(`
		local accountKey = KEYS[1]
		local plan = ARGV[1]
		local status = ARGV[2]
		local creditDelta = tonumber(ARGV[3])
		local now = ARGV[4]

		if redis.call('EXISTS', accountKey) == 0 then
			return {'not_found'}
		end

		local credits = tonumber(redis.call('HGET', accountKey, 'credits')) or 0
		local newCredits = credits + creditDelta
		if newCredits < 0 then
			return {'insufficient'}
		end

		if plan ~= '' then
			redis.call('HSET', accountKey, 'plan', plan)
		end
		if status ~= '' then
			redis.call('HSET', accountKey, 'status', status)
		end
		redis.call('HSET', accountKey, 'credits', newCredits)
		redis.call('HSET', accountKey, 'updated_at', now)

		return {'ok',
			redis.call('HGET', accountKey, 'plan'),
			redis.call('HGET', accountKey, 'status'),
			newCredits}
	`)

	// Append a journal entry guarded by a dedup receipt key
	s.scripts["append"] = redis.NewScript(`
		local receiptKey = KEYS[1]
		local journalKey = KEYS[2]
		local entry = ARGV[1]
		local receiptTTL = tonumber(ARGV[2])

		if redis.call('SETNX', receiptKey, '1') == 0 then
			return 'duplicate'
		end
		if receiptTTL > 0 then
			redis.call('EXPIRE', receiptKey, receiptTTL)
		end

		redis.call('RPUSH', journalKey, entry)
		return 'ok'
	`)
}

func (s *Storage) accountKey(userID string) string {
	return s.config.KeyPrefix + "account:" + userID
}

func (s *Storage) receiptKey(eventType, externalReference string) string {
	return s.config.KeyPrefix + "receipt:" + eventType + ":" + externalReference
}

func (s *Storage) journalKey(userID string) string {
	return s.config.KeyPrefix + "journal:" + userID
}

// GetAccount implements ledger.Store
func (s *Storage) GetAccount(ctx context.Context, userID string) (*ledger.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.accountKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account: %v", ledger.ErrStorageUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ledger.ErrAccountNotFound
	}

	credits, _ := strconv.Atoi(fields["credits"])
	account := &ledger.Account{
		UserID:  userID,
		Plan:    ledger.Plan(fields["plan"]),
		Status:  ledger.SubscriptionStatus(fields["status"]),
		Credits: credits,
	}
	if unix, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		account.UpdatedAt = time.Unix(unix, 0).UTC()
	}
	return account, nil
}

// CreateAccount implements ledger.Store
func (s *Storage) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}
	if account.Credits < 0 {
		return ledger.ErrInsufficientCredits
	}

	result, err := s.scripts["create"].Run(ctx, s.client,
		[]string{s.accountKey(account.UserID)},
		string(account.Plan), string(account.Status), account.Credits,
		time.Now().UTC().Unix(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to create account: %v", ledger.ErrStorageUnavailable, err)
	}
	if result == "exists" {
		return ledger.ErrAccountExists
	}
	return nil
}

// ApplyDelta implements ledger.Store
func (s *Storage) ApplyDelta(ctx context.Context, userID string, delta ledger.Delta) (*ledger.Account, error) {
	var plan, status string
	if delta.Plan != nil {
		plan = string(*delta.Plan)
	}
	if delta.Status != nil {
		status = string(*delta.Status)
	}
	now := time.Now().UTC()

	result, err := s.scripts["apply_delta"].Run(ctx, s.client,
		[]string{s.accountKey(userID)},
		plan, status, delta.Credits, now.Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to apply delta: %v", ledger.ErrStorageUnavailable, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("%w: unexpected script result %v", ledger.ErrStorageUnavailable, result)
	}

	switch values[0] {
	case "not_found":
		return nil, ledger.ErrAccountNotFound
	case "insufficient":
		return nil, ledger.ErrInsufficientCredits
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("%w: unexpected script result %v", ledger.ErrStorageUnavailable, result)
	}

	credits, _ := values[3].(int64)
	return &ledger.Account{
		UserID:    userID,
		Plan:      ledger.Plan(fmt.Sprint(values[1])),
		Status:    ledger.SubscriptionStatus(fmt.Sprint(values[2])),
		Credits:   int(credits),
		UpdatedAt: now,
	}, nil
}

// PutAccount unconditionally stores an account hash. Used by cache tiers to
// mirror the durable store's state.
func (s *Storage) PutAccount(ctx context.Context, account *ledger.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	err := s.client.HSet(ctx, s.accountKey(account.UserID),
		"plan", string(account.Plan),
		"status", string(account.Status),
		"credits", account.Credits,
		"updated_at", updatedAt.Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: failed to put account: %v", ledger.ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteAccount removes an account hash, if present.
func (s *Storage) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.accountKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete account: %v", ledger.ErrStorageUnavailable, err)
	}
	return nil
}

// journalRecord is the JSON shape stored in the journal list
type journalRecord struct {
	UserID            string `json:"user_id"`
	Plan              string `json:"plan"`
	Amount            int64  `json:"amount"`
	Credits           int    `json:"credits"`
	EventType         string `json:"event_type"`
	ExternalReference string `json:"external_reference"`
	Status            string `json:"status"`
	CreatedAt         int64  `json:"created_at"`
}

// Append implements ledger.Journal
func (s *Storage) Append(ctx context.Context, entry *ledger.JournalEntry) error {
	if entry == nil || entry.UserID == "" {
		return fmt.Errorf("invalid journal entry")
	}

	status := entry.Status
	if status == "" {
		status = ledger.JournalStatusCompleted
	}
	record, err := json.Marshal(journalRecord{
		UserID:            entry.UserID,
		Plan:              string(entry.Plan),
		Amount:            entry.Amount,
		Credits:           entry.Credits,
		EventType:         entry.EventType,
		ExternalReference: entry.ExternalReference,
		Status:            string(status),
		CreatedAt:         time.Now().UTC().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	result, err := s.scripts["append"].Run(ctx, s.client,
		[]string{
			s.receiptKey(entry.EventType, entry.ExternalReference),
			s.journalKey(entry.UserID),
		},
		record, int64(s.config.ReceiptTTL.Seconds()),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to append journal entry: %v", ledger.ErrStorageUnavailable, err)
	}
	if result == "duplicate" {
		return ledger.ErrDuplicateEntry
	}
	return nil
}
