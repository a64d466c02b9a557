// Package tiered provides a Hot/Cold tiered storage adapter: a fast
// ephemeral cache (Hot, e.g. Redis or memory) in front of a durable store
// (Cold, e.g. Postgres or Firestore) that remains the source of truth.
// Reads are read-through; every mutation goes to Cold first and the result
// is mirrored into Hot, synchronously or via a background worker.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

// Cache is the account mirror a Hot tier must provide.
// storage/memory and storage/redis both satisfy it.
type Cache interface {
	GetAccount(ctx context.Context, userID string) (*ledger.Account, error)
	PutAccount(ctx context.Context, account *ledger.Account) error
	DeleteAccount(ctx context.Context, userID string) error
}

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache (e.g., Redis, Memory) for account reads
	Hot Cache

	// Cold is the L2 durable store (e.g., Postgres, Firestore) as the
	// source of truth for accounts and the journal
	Cold ledger.Store

	// ColdJournal is the durable journal. Usually the same backend as Cold.
	ColdJournal ledger.Journal

	// AsyncCacheSync enables non-blocking cache mirroring after mutations.
	// If false, cache writes are synchronous (slower but more consistent).
	AsyncCacheSync bool

	// SyncBufferSize is the size of the buffered channel for async
	// operations. Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when an async cache write fails.
	// Essential for monitoring consistency drift.
	AsyncErrorHandler func(error)
}

// Storage implements ledger.Store and ledger.Journal over a Hot/Cold pair.
type Storage struct {
	hot  Cache
	cold ledger.Store
	jrnl ledger.Journal
	conf Config

	// Channel for async synchronization
	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}
	if config.ColdJournal == nil {
		if j, ok := config.Cold.(ledger.Journal); ok {
			config.ColdJournal = j
		}
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		jrnl:      config.ColdJournal,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncCacheSync {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncCacheSync {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background synchronization loop.
// Strategy: Sequential processing to maintain causal ordering per user.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				if err := job(); err != nil {
					if s.conf.AsyncErrorHandler != nil {
						s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
					}
				}
			case <-s.shutdown:
				// Drain queue on shutdown (best effort)
				for {
					select {
					case job := <-s.syncQueue:
						_ = job() //nolint:errcheck // Best effort during shutdown
					default:
						return
					}
				}
			}
		}
	}()
}

// mirror writes an account into the Hot tier, inline or on the worker.
func (s *Storage) mirror(account *ledger.Account) {
	accountCopy := *account
	job := func() error {
		return s.hot.PutAccount(context.Background(), &accountCopy)
	}

	if !s.conf.AsyncCacheSync {
		if err := job(); err != nil && s.conf.AsyncErrorHandler != nil {
			s.conf.AsyncErrorHandler(err)
		}
		return
	}

	select {
	case s.syncQueue <- job:
	default:
		// Queue full; drop the mirror rather than block the mutation.
		if s.conf.AsyncErrorHandler != nil {
			s.conf.AsyncErrorHandler(errors.New("tiered sync queue full"))
		}
	}
}

// GetAccount implements ledger.Store with a read-through strategy.
func (s *Storage) GetAccount(ctx context.Context, userID string) (*ledger.Account, error) {
	account, err := s.hot.GetAccount(ctx, userID)
	if err == nil {
		return account, nil
	}

	account, err = s.cold.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mirror(account)
	return account, nil
}

// CreateAccount implements ledger.Store. Cold is written first; the cache
// mirror is best effort.
func (s *Storage) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if err := s.cold.CreateAccount(ctx, account); err != nil {
		return err
	}
	s.mirror(account)
	return nil
}

// ApplyDelta implements ledger.Store. The delta runs atomically on Cold and
// the resulting row is mirrored into Hot.
func (s *Storage) ApplyDelta(ctx context.Context, userID string, delta ledger.Delta) (*ledger.Account, error) {
	account, err := s.cold.ApplyDelta(ctx, userID, delta)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			// Drop any stale cache row for a user Cold no longer knows.
			_ = s.hot.DeleteAccount(ctx, userID)
		}
		return nil, err
	}

	s.mirror(account)
	return account, nil
}

// Append implements ledger.Journal by delegating to the durable journal.
// Dedup receipts must live with the source of truth, so Hot never sees them.
func (s *Storage) Append(ctx context.Context, entry *ledger.JournalEntry) error {
	if s.jrnl == nil {
		return errors.New("tiered storage: no durable journal configured")
	}
	return s.jrnl.Append(ctx, entry)
}
