package ledger

import "errors"

var (
	// ErrAccountNotFound is returned when no ledger row exists for a user
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account that already exists
	ErrAccountExists = errors.New("account already exists")

	// ErrInsufficientCredits is returned when a debit would push the balance below zero
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDuplicateEntry is returned when a journal entry with the same
	// (event type, external reference) key was already appended
	ErrDuplicateEntry = errors.New("duplicate journal entry")

	// ErrInvalidPlan is returned for an unknown plan
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrStorageUnavailable is returned when the backing store is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
