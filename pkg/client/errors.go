package client

import (
	"errors"
	"fmt"
)

// Factory resolution errors. The API layer maps these onto client-facing
// status codes (422 and 404 respectively).
var (
	ErrProviderIDRequired = errors.New("provider id is required")
	ErrUnknownProvider    = errors.New("unknown provider")
)

// ConfigurationError means a registry entry is structurally invalid: an
// unsupported report type enum value, a non-list region override, a year
// count that is not an integer. It is an administrative failure, never a
// per-request one, and is never retried.
type ConfigurationError struct {
	Provider string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func NewConfigurationError(provider, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// RequestError means the spec violated a provider's business rules or the
// provider explicitly rejected the request. Not retried; callers should not
// resubmit unchanged.
type RequestError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *RequestError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

func NewRequestError(provider, format string, args ...any) *RequestError {
	return &RequestError{Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// TransportError means the upstream could not be reached cleanly: network
// failure, timeout, or retry exhaustion on a transient status. Surfaced as
// upstream-unavailable.
type TransportError struct {
	Provider string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: upstream unavailable: %v", e.Provider, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
