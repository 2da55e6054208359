package graph

import (
	"errors"
	"fmt"

	"txledger/internal/auth"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStore wraps failures of the underlying data store.
	ErrStore = errors.New("store error")
	// ErrInvalidInput is returned for malformed operation variables.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownOperation is returned for names outside the Operation set.
	ErrUnknownOperation = errors.New("unknown operation")
)

var (
	errTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	errUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
)

// Error codes reported to clients.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeStore              = "STORE_ERROR"
	CodeInvalidInput       = "BAD_USER_INPUT"
	CodeUnknownOperation   = "UNKNOWN_OPERATION"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

// ErrorCode maps err to the code reported to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, auth.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrStore):
		return CodeStore
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnknownOperation):
		return CodeUnknownOperation
	default:
		return CodeInternal
	}
}

// ErrorMessage returns the client-facing message for err. Store and internal
// failures are reported without their underlying cause.
func ErrorMessage(err error) string {
	switch ErrorCode(err) {
	case CodeInvalidCredentials:
		return auth.ErrInvalidCredentials.Error()
	case CodeUnauthorized:
		return auth.ErrUnauthorized.Error()
	case CodeStore:
		return ErrStore.Error()
	case CodeInternal:
		return "internal server error"
	default:
		return err.Error()
	}
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string { return e.op + ": " + e.err.Error() }

func (e *storeError) Is(target error) bool { return target == ErrStore }

func (e *storeError) Unwrap() error { return e.err }

func wrapStore(op string, err error) error {
	return &storeError{op: op, err: err}
}
