package graph

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies why an extraction provider failed.
type ProviderErrorKind string

const (
	ProviderTimeout         ProviderErrorKind = "timeout"
	ProviderInvalidResponse ProviderErrorKind = "invalid_response"
	ProviderAuthFailure     ProviderErrorKind = "auth_failure"
	ProviderRateLimited     ProviderErrorKind = "rate_limited"
	ProviderNetworkError    ProviderErrorKind = "network_error"
	ProviderCancelled       ProviderErrorKind = "cancelled"
)

// ProviderError is returned by provider adapters. The runner's retry/fallback
// policy keys off Kind.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err with a provider name and failure kind.
func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// Retryable reports whether the failure is transient and worth another
// attempt. Invalid output and auth failures never heal on retry.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderTimeout, ProviderNetworkError, ProviderRateLimited:
		return true
	default:
		return false
	}
}

// AsProviderError unwraps err into a *ProviderError if possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// StoreErrorKind classifies graph store failures.
type StoreErrorKind string

const (
	StoreUnavailable         StoreErrorKind = "unavailable"
	StoreConstraintViolation StoreErrorKind = "constraint_violation"
	StoreTimeout             StoreErrorKind = "timeout"
)

// StoreError is returned by graph store implementations.
type StoreError struct {
	Kind StoreErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("store: %s", e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err with a store failure kind.
func NewStoreError(kind StoreErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Err: err}
}

// ErrNotFound is returned by read operations for absent records. It surfaces
// to HTTP callers as a 404.
var ErrNotFound = errors.New("not_found")

// ValidationError marks malformed caller input (empty entry text, bad
// pagination bounds). It surfaces to HTTP callers as a 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
