package service

import (
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state for this operation")
	ErrRequestExpired  = errors.New("request expired")
	ErrConflict        = errors.New("request changed concurrently")
	ErrInvalidModuleID = errors.New("module_id is required")
	ErrInvalidInput    = errors.New("invalid input")
	ErrPhoneTaken      = errors.New("phone already registered")
	ErrNoFaceProfile   = errors.New("no face profile enrolled")
)

// invalid wraps ErrInvalidInput with a field-level message.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeErr maps store sentinels onto service ones and wraps anything else
// as a persistence fault.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, store.ErrStale):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
