// Package provider defines the remote operation contract and the signals a
// provider raises to steer the executor.
//
// This package contains:
//   - Operation: a named, retryable remote call
//   - FloodWaitError / DeniedError: the retry and denial signals
//   - FloodMonitor: per-operation flood and outcome tracking
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Operation represents one remote call. It must be safe to invoke again after
// a flood wait.
type Operation[T any] struct {
	// Name identifies the operation (e.g., "messages.sendMessage")
	Name string

	// Target is the entity the call acts on, used in logs and pacing keys.
	Target string

	// Invoke performs the call.
	Invoke func(ctx context.Context) (T, error)
}

// FloodWaitError tells the executor to wait before retrying the same call.
type FloodWaitError struct {
	Wait time.Duration
	Err  error
}

// FloodWaitSeconds builds a FloodWaitError from a fractional number of seconds.
func FloodWaitSeconds(seconds float64) *FloodWaitError {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	return &FloodWaitError{Wait: time.Duration(seconds * float64(time.Second))}
}

func (e *FloodWaitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flood wait %v: %v", e.Wait, e.Err)
	}
	return fmt.Sprintf("flood wait %v", e.Wait)
}

func (e *FloodWaitError) Unwrap() error { return e.Err }

// DeniedError marks the target as permanently inaccessible.
type DeniedError struct {
	Reason string
	Err    error
}

// Deny wraps err as a denial with the given reason.
func Deny(reason string, err error) *DeniedError {
	return &DeniedError{Reason: reason, Err: err}
}

func (e *DeniedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("denied (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("denied (%s)", e.Reason)
}

func (e *DeniedError) Unwrap() error { return e.Err }

// AsFloodWait extracts the wait duration from a FloodWaitError in err's chain.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}

// IsDenied reports whether err's chain contains a DeniedError.
func IsDenied(err error) bool {
	var d *DeniedError
	return errors.As(err, &d)
}
