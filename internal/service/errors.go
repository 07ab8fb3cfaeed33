package service

import (
	"fmt"

	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
)

// ErrInsufficientInventory is returned when a player holds fewer boosters than requested.
var ErrInsufficientInventory = errors.New("insufficient booster inventory")

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a store or cache failure. Writes are conditional, so
// the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// DuplicateTransactionError means the payment transaction was already consumed.
// Prior is nil only when the original record could not be read back.
type DuplicateTransactionError struct {
	TransactionID string
	Prior         *model.ConsumedTransaction
}

func (e *DuplicateTransactionError) Error() string {
	if e.Prior == nil {
		return fmt.Sprintf("transaction %s already used", e.TransactionID)
	}
	return fmt.Sprintf("transaction %s already used by fid %d", e.TransactionID, e.Prior.FID)
}

// VerificationError means the payment could not be confirmed on chain.
type VerificationError struct {
	Reason model.VerificationReason
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification failed: %s", e.Reason)
}

// Retryable reports whether the same request may succeed later.
func (e *VerificationError) Retryable() bool {
	return e.Reason.Retryable()
}
