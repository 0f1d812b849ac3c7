package services

import (
	"errors"
	"fmt"

	"github.com/mediation-escrow/backend/internal/ledger"
	"github.com/mediation-escrow/backend/internal/repositories"
)

// ValidationKind narrows a ValidationError for the API layer.
type ValidationKind string

const (
	KindInvalid   ValidationKind = "invalid"
	KindForbidden ValidationKind = "forbidden"
	KindNotFound  ValidationKind = "not_found"
)

// ValidationError rejects a request before anything is written: wrong actor or role,
// wrong state, missing input. Safe to retry after correcting the input.
type ValidationError struct {
	Op     string
	Kind   ValidationKind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// InsufficientFundsError is raised while funding escrow; nothing is written.
type InsufficientFundsError struct {
	Op  string
	Err error
}

func (e *InsufficientFundsError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *InsufficientFundsError) Unwrap() error { return e.Err }

// ConsistencyError means the books would not balance. The transaction is aborted and
// the detail goes to the operational log only.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string { return fmt.Sprintf("%s: consistency violation: %v", e.Op, e.Err) }
func (e *ConsistencyError) Unwrap() error { return e.Err }

// ConflictError is a lost race with a concurrent writer. Attempts counts tries made.
type ConflictError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}
func (e *ConflictError) Unwrap() error { return e.Err }

func invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Kind: KindInvalid, Reason: fmt.Sprintf(format, args...)}
}

func forbidden(op, format string, args ...any) error {
	return &ValidationError{Op: op, Kind: KindForbidden, Reason: fmt.Sprintf(format, args...)}
}

func notFound(op, what string) error {
	return &ValidationError{Op: op, Kind: KindNotFound, Reason: what + " not found"}
}

// classify turns store and ledger sentinels into the typed errors callers see.
// Errors that are already typed pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		fe *InsufficientFundsError
		ce *ConsistencyError
		xe *ConflictError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &fe), errors.As(err, &ce), errors.As(err, &xe):
		return err
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return &InsufficientFundsError{Op: op, Err: err}
	case errors.Is(err, ledger.ErrInconsistent):
		return &ConsistencyError{Op: op, Err: err}
	case errors.Is(err, repositories.ErrConflict):
		return &ConflictError{Op: op, Attempts: 1, Err: err}
	case errors.Is(err, repositories.ErrNotFound):
		return notFound(op, "record")
	}
	return err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
