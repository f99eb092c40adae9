package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured is returned when no generator provider is configured.
	ErrNotConfigured = errors.New("content generator not configured")
	// ErrRejected marks a request the provider refused as malformed or unauthorised.
	ErrRejected = errors.New("generator rejected request")
)

// RateLimitError indicates the provider throttled the request.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("generator rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// InvalidResponseError indicates the model returned content that could not be used.
type InvalidResponseError struct {
	Content json.RawMessage
	Err     error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid generator response: %v", e.Err)
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// UnavailableError indicates the provider is down or unreachable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generator unavailable: %v", e.Err)
	}
	return "generator unavailable"
}

func (e *UnavailableError) Unwrap() error { return e.Err }
