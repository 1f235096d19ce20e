package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrOwnership   = errors.New("booking does not belong to user")
	ErrNotFound    = errors.New("booking not found")
	ErrConflict    = errors.New("conflicting booking in progress")
	ErrPersistence = errors.New("persistence error")
	ErrProvider    = errors.New("provider error")
)

// ProviderError is the failure of a single component's provider call. It
// never escapes the orchestrator's join.
type ProviderError struct {
	Provider      string
	ComponentType ComponentType
	Err           error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed to book %s: %v", e.Provider, e.ComponentType, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// PersistenceError is a failed durable write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
