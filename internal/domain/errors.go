package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("invalid_request")
	ErrNotFound            = errors.New("not_found")
	ErrIdempotencyConflict = errors.New("idempotency_conflict")
)

// ValidationError rejects a payload outright; it is never retried or queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// TransientNetworkError marks a failure that may succeed on retry: the
// gateway was unreachable, timed out or answered 5xx.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	if e.Err == nil {
		return e.Op + ": transient network error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientNetworkError
	return errors.As(err, &te)
}

type AggregationError struct {
	JobType JobType
	Key     string
	Err     error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("%s aggregation %s: %v", e.JobType, e.Key, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// SyncExhaustedError reports a queued event that hit the retry cap and
// now waits for an operator to clear it.
type SyncExhaustedError struct {
	LocalID  string
	Attempts int
	LastErr  string
}

func (e *SyncExhaustedError) Error() string {
	if e.LastErr == "" {
		return fmt.Sprintf("sync exhausted for %s after %d attempts", e.LocalID, e.Attempts)
	}
	return fmt.Sprintf("sync exhausted for %s after %d attempts: %s", e.LocalID, e.Attempts, e.LastErr)
}
