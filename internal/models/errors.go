package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrUnsupportedFilter    = errors.New("unsupported filter")
	ErrTransport            = errors.New("transport failure")
	ErrConfiguration        = errors.New("invalid configuration")
)

// NotFoundError is returned when no Policy, Mapping or Destination matches a lookup or query.
type NotFoundError struct {
	Resource string // "policy", "mapping", "destination", "query"
	Key      string // id or rendered query parameters
	Cause    error
}

func (e *NotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s not found for %s: %v", e.Resource, e.Key, e.Cause)
	}
	return fmt.Sprintf("%s not found for %s", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnsupportedOperationError is returned by providers that cannot perform a mutation.
type UnsupportedOperationError struct {
	Provider  string // "network", "memory"
	Operation string // "store", ...
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s provider does not support the %s operation", e.Provider, e.Operation)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// UnsupportedFilterError is returned when a listing filter cannot be evaluated by the provider.
type UnsupportedFilterError struct {
	Provider string
	Filter   string
}

func (e *UnsupportedFilterError) Error() string {
	return fmt.Sprintf("%s provider cannot filter policies by %q", e.Provider, e.Filter)
}

func (e *UnsupportedFilterError) Is(target error) bool {
	return target == ErrUnsupportedFilter
}

// TransportError represents a request that failed after the configured retries were exhausted,
// or that returned an unexpected status.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request failed: %s %s (status %d, %d attempt(s)): %v",
			e.Method, e.URL, e.StatusCode, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("request failed: %s %s (%d attempt(s)): %v",
		e.Method, e.URL, e.Attempts, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ConfigurationError represents contradictory or incomplete construction parameters
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ValidationError represents a malformed policy content record
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// PatternValidationError represents an invalid version_fnmatch or version_regexmatch pattern
type PatternValidationError struct {
	Pattern string
	Kind    string // "fnmatch" or "regex"
	Cause   error
}

func (e *PatternValidationError) Error() string {
	return fmt.Sprintf("invalid %s pattern '%s': %v", e.Kind, e.Pattern, e.Cause)
}

func (e *PatternValidationError) Unwrap() error {
	return e.Cause
}

// DecodeError represents a payload that could not be decoded into a model
type DecodeError struct {
	Context string // "policy page", "query response", ...
	Content string // truncated payload
	Cause   error
}

func (e *DecodeError) Error() string {
	truncated := e.Content
	if len(truncated) > 100 {
		truncated = truncated[:100] + "..."
	}
	return fmt.Sprintf("failed to decode %s: %v\nContent: %s", e.Context, e.Cause, truncated)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}
