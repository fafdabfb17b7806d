package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a classifiable provider failure. StatusCode carries the upstream
// HTTP status when one exists; zero means the failure had no status (network
// errors, client-side timeouts) and classification falls back to message text.
type Error struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := "provider error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s: status %d: %s", e.Provider, e.Model, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Model, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps an upstream failure with its provider, model, and status.
func NewError(provider, model string, statusCode int, err error) *Error {
	return &Error{Provider: provider, Model: model, StatusCode: statusCode, Err: err}
}

// ChainExhaustedError reports that every fallback candidate was attempted (or
// the attempt budget ran out) without success. It wraps the last underlying
// error so callers can distinguish an exhausted chain from a logic bug.
type ChainExhaustedError struct {
	Attempts int
	LastKey  string
	Err      error
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("fallback chain exhausted after %d attempts (last model %s): %v", e.Attempts, e.LastKey, e.Err)
}

func (e *ChainExhaustedError) Unwrap() error {
	return e.Err
}

// IsChainExhausted reports whether err is (or wraps) a chain exhaustion.
func IsChainExhausted(err error) bool {
	var ce *ChainExhaustedError
	return errors.As(err, &ce)
}

// Transient HTTP statuses: rate limiting and the server error family.
var transientStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Keywords that mark a failure as transient when no status is available.
var transientKeywords = []string{
	"overloaded",
	"capacity",
	"rate limit",
	"timeout",
	"unavailable",
	"connection",
	"network",
}

// IsTransient reports whether err looks like a temporary provider failure
// worth retrying on another backend: a transient HTTP status, or transient
// wording anywhere in the error message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) && transientStatuses[pe.StatusCode] {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
