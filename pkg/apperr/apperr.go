// Package apperr defines the error taxonomy shared by the catalog, ledger,
// fines and users packages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("book not available")
	ErrNotBorrowed  = errors.New("book is not borrowed by this user")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")

	// ErrLimitReached is reported as KindUnavailable.
	ErrLimitReached = errors.New("user has reached the maximum number of borrowed books")
)

type Kind string

const (
	KindNone           Kind = ""
	KindNotFound       Kind = "NotFound"
	KindUnavailable    Kind = "Unavailable"
	KindNotBorrowed    Kind = "NotBorrowed"
	KindConflict       Kind = "Conflict"
	KindInvalidInput   Kind = "InvalidInput"
	KindStorageFailure Kind = "StorageFailure"
)

// Storage wraps a driver error so that it classifies as KindStorageFailure
// while keeping the original error in the chain.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// KindOf classifies err. Errors outside the taxonomy are storage failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrLimitReached):
		return KindUnavailable
	case errors.Is(err, ErrNotBorrowed):
		return KindNotBorrowed
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindStorageFailure
	}
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNone:
		return http.StatusOK
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable, KindNotBorrowed, KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
