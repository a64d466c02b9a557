package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Service wraps a Store with the generation credit workflow: one credit is
// debited per generation attempt, and refunded if the generation fails after
// the debit. The refund is a compensating action, not a transaction; both
// writes are atomic deltas, so concurrent requests cannot corrupt the
// balance, but a crash between debit and refund loses the credit.
type Service struct {
	store   Store
	logger  Logger
	metrics Metrics
}

// ServiceConfig holds Service configuration.
type ServiceConfig struct {
	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking debits and refunds (default: NoopMetrics)
	Metrics Metrics
}

// NewService creates a new credit service backed by the given store.
func NewService(store Store, config ServiceConfig) (*Service, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	return &Service{
		store:   store,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Ensure returns the user's account, creating the default free/inactive/0
// row on first authentication. A concurrent create by another request is
// treated as success.
func (s *Service) Ensure(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	account, err := s.store.GetAccount(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		s.metrics.RecordStoreError("get_account")
		return nil, err
	}

	account = NewAccount(userID)
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return s.store.GetAccount(ctx, userID)
		}
		s.metrics.RecordStoreError("create_account")
		return nil, err
	}

	s.logger.Info("account created",
		Field{Key: "user_id", Value: userID},
		Field{Key: "plan", Value: string(account.Plan)})
	return account, nil
}

// Debit atomically consumes one credit before a generation attempt.
// Returns ErrInsufficientCredits when the balance is zero.
func (s *Service) Debit(ctx context.Context, userID string) (*Account, error) {
	account, err := s.store.ApplyDelta(ctx, userID, Delta{Credits: -1})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientCredits):
			s.metrics.RecordDebit("insufficient")
		case errors.Is(err, ErrAccountNotFound):
			s.metrics.RecordDebit("insufficient")
		default:
			s.metrics.RecordDebit("error")
			s.metrics.RecordStoreError("apply_delta")
		}
		return nil, err
	}

	s.metrics.RecordDebit("success")
	s.logger.Debug("credit debited",
		Field{Key: "user_id", Value: userID},
		Field{Key: "credits", Value: account.Credits})
	return account, nil
}

// Refund restores the credit consumed by a generation attempt that failed
// after the debit (no image returned, upstream error, storage-write failure).
func (s *Service) Refund(ctx context.Context, userID string) (*Account, error) {
	account, err := s.store.ApplyDelta(ctx, userID, Delta{Credits: 1})
	if err != nil {
		s.metrics.RecordRefund("error")
		s.metrics.RecordStoreError("apply_delta")
		return nil, err
	}

	s.metrics.RecordRefund("success")
	s.logger.Info("credit refunded",
		Field{Key: "user_id", Value: userID},
		Field{Key: "credits", Value: account.Credits})
	return account, nil
}

// Account retrieves the user's current ledger row.
func (s *Service) Account(ctx context.Context, userID string) (*Account, error) {
	return s.store.GetAccount(ctx, userID)
}
