package models

import (
	"errors"
	"fmt"
	"time"
)

// ConnectivityError wraps a failure to reach a backing store or collaborator.
// The scheduling layer retries these with backoff before surfacing them.
type ConnectivityError struct {
	Service string // "redis", "neo4j", "embedder", "summarizer", ...
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ValidationError marks an item that cannot be processed (malformed summarizer
// output, missing embedding after a request). The offending item is skipped
// and the batch continues.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// QuotaExceededError is returned when a user is over their per-window write or
// retrieval quota. Callers must back off; the request is never queued.
type QuotaExceededError struct {
	UserID    string    `json:"user_id"`
	Operation string    `json:"operation"`
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	ResetAt   time.Time `json:"reset_at"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s on %s (%d/%d), resets at %s",
		e.UserID, e.Operation, e.Used, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// DecodeError marks a single corrupt stored entry. The entry is logged and
// skipped; the surrounding read never aborts.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode entry at %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsQuotaExceeded reports whether err is (or wraps) a quota error.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsRetryable reports whether err is worth retrying at the scheduling layer.
// Quota and validation failures are not: the former needs backoff driven by
// the caller, the latter will fail identically every time.
func IsRetryable(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
