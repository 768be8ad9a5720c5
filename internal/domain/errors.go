package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by the search cache when no valid entry is available.
var ErrCacheMiss = errors.New("cache miss")

// AuthError means credentials for an upstream could not be obtained.
type AuthError struct {
	API string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.API, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError is an upstream 429. It only escapes the client wrapped in an UpstreamError.
type RateLimitError struct {
	API        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.API, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.API)
}

// UpstreamError is a network failure or repeated 5xx after retries were exhausted.
type UpstreamError struct {
	API        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s: status %d after %d attempts: %v", e.API, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("upstream %s: after %d attempts: %v", e.API, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ClientError is a permanent 4xx (other than 429). It is never retried.
type ClientError struct {
	API        string
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("upstream %s rejected request: status %d: %s", e.API, e.StatusCode, e.Body)
}

// ValidationError marks a fetched record that lacks required fields.
type ValidationError struct {
	Record string
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %s missing required fields %v", e.Record, e.Fields)
}

// PersistenceError is a failed write of a single record.
type PersistenceError struct {
	Record string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Record, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
