package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Reason is a closed classification of download failures.
type Reason string

const (
	InvalidIdentifier Reason = "invalid_identifier"
	QueueFull         Reason = "queue_full"
	NotFound          Reason = "not_found"
	DependencyMissing Reason = "dependency_missing"
	AuthRequired      Reason = "auth_required"
	LoginFailure      Reason = "login_failure"
	DiskFull          Reason = "disk_full"
	RateLimited       Reason = "rate_limited"
	Timeout           Reason = "timeout"
	ProcessCrashed    Reason = "process_crashed"
	Cancelled         Reason = "cancelled"
	UnknownFailure    Reason = "unknown_failure"
)

// Retryable reports whether the reason looks transient and is eligible for
// automatic retry. Categorically permanent reasons never consume an attempt.
func (r Reason) Retryable() bool {
	switch r {
	case RateLimited, ProcessCrashed, Timeout:
		return true
	default:
		return false
	}
}

// Terminal reports whether the reason ends a job immediately regardless of
// remaining attempts.
func (r Reason) Terminal() bool {
	return !r.Retryable()
}

// Error couples a Reason with operation context and an optional cause.
type Error struct {
	Reason Reason
	Op     string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Msg); msg != "" {
		parts = append(parts, msg)
	}
	detail := strings.Join(parts, ": ")
	switch {
	case detail == "" && e.Err == nil:
		return string(e.Reason)
	case detail == "":
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Reason, detail)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Reason, detail, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error without a cause.
func New(reason Reason, op, msg string) error {
	return &Error{Reason: reason, Op: op, Msg: msg}
}

// Wrap builds a classified error around a cause.
func Wrap(reason Reason, op string, err error) error {
	return &Error{Reason: reason, Op: op, Err: err}
}

// ReasonOf extracts the Reason from err, defaulting to UnknownFailure for
// unclassified errors and reporting ok=false in that case.
func ReasonOf(err error) (Reason, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Reason, true
	}
	return UnknownFailure, false
}
