// Package rpc runs remote platform calls through a flood-aware executor.
//
// This package offers:
//   - Flood-wait absorption (the calling goroutine sleeps, then retries)
//   - Uniform outcomes: Success, Denied or Error
//   - Optional per-target pacing and retry caps
//   - Flood monitoring
//
// # Quick Start
//
//	import "github.com/vietddude/floodguard/internal/infra/rpc"
//
//	monitor := rpc.NewFloodMonitor()
//	executor := rpc.NewExecutor(rpc.WithObserver(monitor))
//
//	out := rpc.Execute(ctx, executor, rpc.NewOperation("messages.sendMessage", chat,
//	    func(ctx context.Context) (int, error) { return send(ctx) }))
//	if id, ok := out.Get(); ok {
//	    ...
//	}
//
// # Package Structure
//
//   - provider/ - Operation contract, retry and denial signals, flood monitor
//   - routing/  - Executor, outcome classification, batching
//   - budget/   - Per-target token bucket pacing
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"context"

	"github.com/vietddude/floodguard/internal/infra/rpc/budget"
	"github.com/vietddude/floodguard/internal/infra/rpc/provider"
	"github.com/vietddude/floodguard/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// Operation is one named remote call.
type Operation[T any] = provider.Operation[T]

// FloodWaitError asks the executor to wait and retry.
type FloodWaitError = provider.FloodWaitError

// DeniedError marks a permanent refusal.
type DeniedError = provider.DeniedError

// FloodMonitor tracks flood waits and outcomes per operation.
type FloodMonitor = provider.FloodMonitor

// MonitorStats is a flood monitor snapshot.
type MonitorStats = provider.MonitorStats

// Status is the platform health as seen by the monitor.
type Status = provider.Status

// Monitor status constants
const (
	StatusHealthy   = provider.StatusHealthy
	StatusDegraded  = provider.StatusDegraded
	StatusThrottled = provider.StatusThrottled
)

// NewFloodMonitor creates a flood monitor.
func NewFloodMonitor() *FloodMonitor {
	return provider.NewFloodMonitor()
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// Executor runs operations with flood-wait retries.
type Executor = routing.Executor

// Option configures an Executor.
type Option = routing.Option

// Outcome is the result of one executor call.
type Outcome[T any] = routing.Outcome[T]

// RetryConfig bounds retries.
type RetryConfig = routing.RetryConfig

// Observer receives executor events.
type Observer = routing.Observer

// Decision is a classifier verdict.
type Decision = routing.Decision

// Classifier maps an error to a Decision.
type Classifier = routing.Classifier

// Classifier actions
const (
	ActionError = routing.ActionError
	ActionRetry = routing.ActionRetry
	ActionDeny  = routing.ActionDeny
)

// ClassifyError is the transport-independent classifier.
var ClassifyError = routing.ClassifyError

// Chain combines classifiers; the first non-error decision wins.
var Chain = routing.Chain

// DefaultRetryConfig retries forever.
var DefaultRetryConfig = routing.DefaultRetryConfig

// Executor options
var (
	WithClassifier  = routing.WithClassifier
	WithRetryConfig = routing.WithRetryConfig
	WithLimiter     = routing.WithLimiter
	WithObserver    = routing.WithObserver
	WithLogger      = routing.WithLogger
	WithSleeper     = routing.WithSleeper
)

// NewExecutor creates an executor.
func NewExecutor(opts ...Option) *Executor {
	return routing.NewExecutor(opts...)
}

// Execute runs op through e.
func Execute[T any](ctx context.Context, e *Executor, op Operation[T]) Outcome[T] {
	return routing.Execute(ctx, e, op)
}

// BatchSize is the platform limit on ids per call.
const BatchSize = routing.DefaultBatchSize

// ExecuteBatches runs one operation per batch of items, each with its own
// retry loop.
func ExecuteBatches[E, T any](
	ctx context.Context,
	e *Executor,
	items []E,
	size int,
	build func(batch []E) Operation[T],
) []Outcome[T] {
	return routing.ExecuteBatches(ctx, e, items, size, build)
}

// Merge folds batch outcomes into one.
func Merge[T any](outcomes []Outcome[T], combine func(acc, v T) T) Outcome[T] {
	return routing.Merge(outcomes, combine)
}

// MapOutcome converts the value of a successful outcome.
func MapOutcome[T, U any](o Outcome[T], f func(T) U) Outcome[U] {
	return routing.MapOutcome(o, f)
}

// Success builds a successful outcome.
func Success[T any](v T) Outcome[T] { return routing.Success(v) }

// Denied builds a denied outcome.
func Denied[T any](err error) Outcome[T] { return routing.Denied[T](err) }

// Failed builds an error outcome.
func Failed[T any](err error) Outcome[T] { return routing.Failed[T](err) }

// =============================================================================
// Re-exported types from budget package
// =============================================================================

// LimiterConfig configures per-target pacing.
type LimiterConfig = budget.Config

// KeyedLimiter paces calls per target.
type KeyedLimiter = budget.KeyedLimiter

// NewKeyedLimiter creates a limiter, or nil when pacing is disabled.
func NewKeyedLimiter(cfg LimiterConfig) *KeyedLimiter {
	return budget.NewKeyedLimiter(cfg)
}
