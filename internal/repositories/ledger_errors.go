package repositories

import (
	"errors"
	"fmt"
)

// LedgerErrorCode enumerates stock ledger failure causes.
type LedgerErrorCode string

const (
	// LedgerErrorInsufficientStock indicates the source counter cannot cover the quantity.
	LedgerErrorInsufficientStock LedgerErrorCode = "insufficient_stock"
	// LedgerErrorInvalidQuantity indicates a non-positive quantity.
	LedgerErrorInvalidQuantity LedgerErrorCode = "invalid_quantity"
	// LedgerErrorProductNotFound indicates the product document is missing.
	LedgerErrorProductNotFound LedgerErrorCode = "product_not_found"
)

// LedgerError wraps stock ledger failures with machine readable codes.
type LedgerError struct {
	Op      string
	Code    LedgerErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewLedgerError constructs a typed ledger error.
func NewLedgerError(op string, code LedgerErrorCode, message string, err error) *LedgerError {
	if message == "" {
		message = string(code)
	}
	return &LedgerError{Op: op, Code: code, Message: message, Err: err}
}

// LedgerCode extracts the ledger code from err, if any.
func LedgerCode(err error) (LedgerErrorCode, bool) {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code, true
	}
	return "", false
}

// StoreErrorKind classifies in-process store failures.
type StoreErrorKind int

const (
	StoreErrorNotFound StoreErrorKind = iota + 1
	StoreErrorConflict
)

// StoreError implements RepositoryError for non-Firestore stores.
type StoreError struct {
	Op   string
	Kind StoreErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Kind == StoreErrorNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Kind == StoreErrorConflict }
func (e *StoreError) IsUnavailable() bool { return false }

// NotFound builds a StoreError of kind not found.
func NotFound(op, format string, args ...any) error {
	return &StoreError{Op: op, Kind: StoreErrorNotFound, Err: fmt.Errorf(format, args...)}
}

// Conflict builds a StoreError of kind conflict.
func Conflict(op, format string, args ...any) error {
	return &StoreError{Op: op, Kind: StoreErrorConflict, Err: fmt.Errorf(format, args...)}
}

// IsNotFound reports whether err is a RepositoryError signalling a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError signalling a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
