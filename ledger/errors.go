/*
errors.go - Centralized error types for the wallet core

ERROR CATEGORIES:
  1. Storage errors - Failures of the underlying store, always *StorageError
  2. Domain errors  - Business rule refusals (missing item, insufficient balance)
  3. Input errors   - Malformed day keys, unknown activity types

USAGE:
  if errors.Is(err, ledger.ErrStorage) {
      // the store failed; caller decides whether to retry
  }

  var short *ledger.InsufficientBalanceError
  if errors.As(err, &short) {
      fmt.Println(short.Shortfall)
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage failure")

	// ErrItemNotFound is returned when a wishlist item id does not exist.
	ErrItemNotFound = errors.New("wish item not found")

	// ErrAlreadyPurchased is returned when purchasing an item twice.
	ErrAlreadyPurchased = errors.New("wish item already purchased")

	// ErrInsufficientBalance is returned when a purchase exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidDayKey is returned for day keys not in yyyy-MM-dd form.
	ErrInvalidDayKey = errors.New("invalid day key")

	// ErrUnknownActivity is returned when an activity name cannot be parsed.
	ErrUnknownActivity = errors.New("unknown activity type")

	// ErrRestDayLimit is returned when the week's rest days are used up.
	ErrRestDayLimit = errors.New("weekly rest day allowance used up")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps any failure of the underlying store.
// The engines never retry; the caller owns retry policy.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// WrapStorage returns nil for nil errors and leaves StorageErrors untouched.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Available int64
	Requested int64
	Shortfall int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		FormatCents(e.Available), FormatCents(e.Requested), FormatCents(e.Shortfall))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

type InvalidDayKeyError struct {
	Input string
}

func (e *InvalidDayKeyError) Error() string {
	return fmt.Sprintf("invalid day key %q: want yyyy-MM-dd", e.Input)
}

func (e *InvalidDayKeyError) Unwrap() error { return ErrInvalidDayKey }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsStorageError returns true if the store failed.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAlreadyPurchased) ||
		errors.Is(err, ErrInvalidDayKey) ||
		errors.Is(err, ErrUnknownActivity) ||
		errors.Is(err, ErrRestDayLimit)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
