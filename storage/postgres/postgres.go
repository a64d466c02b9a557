// Package postgres provides a PostgreSQL implementation of the ledger.Store
// and ledger.Journal interfaces. Deltas are applied inside SQL transactions
// with SELECT FOR UPDATE; journal deduplication relies on a unique constraint
// over (event_type, external_reference).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// Schema is the DDL this adapter expects. Run it once per database, or feed
// it to your migration tool.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id             TEXT PRIMARY KEY,
	plan                TEXT NOT NULL DEFAULT 'free',
	subscription_status TEXT NOT NULL DEFAULT 'inactive',
	credits             INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id                 BIGSERIAL PRIMARY KEY,
	user_id            TEXT NOT NULL,
	plan               TEXT NOT NULL,
	amount             BIGINT NOT NULL DEFAULT 0,
	credits            INTEGER NOT NULL DEFAULT 0,
	event_type         TEXT NOT NULL,
	external_reference TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'completed',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (event_type, external_reference)
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_user_id ON journal_entries (user_id);
`

// Storage implements ledger.Store and ledger.Journal using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetAccount implements ledger.Store
func (s *Storage) GetAccount(ctx context.Context, userID string) (*ledger.Account, error) {
	var account ledger.Account

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, plan, subscription_status, credits, updated_at
			FROM accounts WHERE user_id = $1`,
		userID).Scan(
		&account.UserID,
		&account.Plan,
		&account.Status,
		&account.Credits,
		&account.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account: %v", ledger.ErrStorageUnavailable, err)
	}

	return &account, nil
}

// CreateAccount implements ledger.Store
func (s *Storage) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if account == nil || account.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, plan, subscription_status, credits, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id) DO NOTHING`,
		account.UserID, account.Plan, account.Status, account.Credits,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create account: %v", ledger.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountExists
	}
	return nil
}

// ApplyDelta implements ledger.Store
func (s *Storage) ApplyDelta(ctx context.Context, userID string, delta ledger.Delta) (*ledger.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", ledger.ErrStorageUnavailable, err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	var account ledger.Account
	err = tx.QueryRow(ctx,
		`SELECT user_id, plan, subscription_status, credits
			FROM accounts WHERE user_id = $1
			FOR UPDATE`,
		userID).Scan(&account.UserID, &account.Plan, &account.Status, &account.Credits)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to lock account: %v", ledger.ErrStorageUnavailable, err)
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

	err = tx.QueryRow(ctx,
		`UPDATE accounts
			SET plan = $1, subscription_status = $2, credits = $3, updated_at = NOW()
			WHERE user_id = $4
			RETURNING updated_at`,
		account.Plan, account.Status, account.Credits, userID).Scan(&account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to update account: %v", ledger.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to commit: %v", ledger.ErrStorageUnavailable, err)
	}

	return &account, nil
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

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries
				(user_id, plan, amount, credits, event_type, external_reference, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (event_type, external_reference) DO NOTHING`,
		entry.UserID, entry.Plan, entry.Amount, entry.Credits,
		entry.EventType, entry.ExternalReference, status,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ledger.ErrDuplicateEntry
		}
		return fmt.Errorf("%w: failed to append journal entry: %v", ledger.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicateEntry
	}
	return nil
}

// InitSchema creates the tables this adapter needs if they do not exist.
func (s *Storage) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
