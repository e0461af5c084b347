package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/floodguard/internal/infra/rpc/budget"
	"github.com/vietddude/floodguard/internal/infra/rpc/provider"
)

var (
	// ErrRetryBudgetExhausted is returned inside an Error outcome when a
	// configured cap on attempts or total wait is hit.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrOperationPanicked wraps a panic recovered from an operation.
	ErrOperationPanicked = errors.New("operation panicked")

	// ErrNilOperation is reported for an operation without Invoke.
	ErrNilOperation = errors.New("operation has no invoke function")
)

// RetryConfig bounds flood-wait retries. Zero values mean unbounded. Waits
// are taken as signaled; there is no backoff growth.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// DefaultRetryConfig retries flood waits forever.
var DefaultRetryConfig = RetryConfig{}

// Observer receives executor events.
type Observer interface {
	RecordAttempt(name string)
	RecordFloodWait(name string, wait time.Duration)
	RecordSuccess(name string, latency time.Duration)
	RecordDenied(name string)
	RecordError(name string)
}

// Sleeper suspends the calling goroutine for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs remote operations with flood-wait retries and outcome
// classification. It holds no per-call state and is safe for concurrent use.
type Executor struct {
	classify  Classifier
	config    RetryConfig
	limiter   budget.Limiter
	observers []Observer
	log       *slog.Logger
	sleep     Sleeper
}

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier replaces the error classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classify = c
		}
	}
}

// WithRetryConfig sets retry caps.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(e *Executor) { e.config = cfg }
}

// WithLimiter paces every attempt by operation target.
func WithLimiter(l budget.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// WithObserver adds an event observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSleeper replaces the flood-wait sleep.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

// NewExecutor creates an executor with the default classifier and unbounded
// retries.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		classify: ClassifyError,
		config:   DefaultRetryConfig,
		log:      slog.Default(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of e with opts applied.
func (e *Executor) With(opts ...Option) *Executor {
	cp := *e
	cp.observers = append([]Observer(nil), e.observers...)
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Config returns the retry caps in use.
func (e *Executor) Config() RetryConfig {
	return e.config
}

// Execute runs op until it succeeds, is denied, or fails with an error that
// is not a flood wait. A flood wait suspends only the calling goroutine.
func Execute[T any](ctx context.Context, e *Executor, op provider.Operation[T]) Outcome[T] {
	start := time.Now()
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail[T](e, op, err)
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, op.Target); err != nil {
				return fail[T](e, op, fmt.Errorf("pacing: %w", err))
			}
		}

		for _, o := range e.observers {
			o.RecordAttempt(op.Name)
		}

		value, err := invoke(ctx, op)
		if err == nil {
			latency := time.Since(start)
			for _, o := range e.observers {
				o.RecordSuccess(op.Name, latency)
			}
			return Success(value)
		}

		decision := e.classify(err)
		switch decision.Action {
		case ActionRetry:
			if e.config.MaxAttempts > 0 && attempt >= e.config.MaxAttempts {
				return fail[T](e, op, fmt.Errorf("%w after %d attempts: %w",
					ErrRetryBudgetExhausted, attempt, err))
			}
			if e.config.MaxWait > 0 && waited+decision.Wait > e.config.MaxWait {
				return fail[T](e, op, fmt.Errorf("%w: waited %v, next wait %v: %w",
					ErrRetryBudgetExhausted, waited, decision.Wait, err))
			}

			for _, o := range e.observers {
				o.RecordFloodWait(op.Name, decision.Wait)
			}
			e.log.Debug("Flood wait, retrying",
				"op", op.Name,
				"target", op.Target,
				"wait", decision.Wait,
				"attempt", attempt,
			)

			if err := e.sleep(ctx, decision.Wait); err != nil {
				return fail[T](e, op, err)
			}
			waited += decision.Wait

		case ActionDeny:
			for _, o := range e.observers {
				o.RecordDenied(op.Name)
			}
			e.log.Debug("Operation denied",
				"op", op.Name,
				"target", op.Target,
				"reason", decision.Reason,
				"error", err,
			)
			return Denied[T](err)

		default:
			return fail[T](e, op, err)
		}
	}
}

func fail[T any](e *Executor, op provider.Operation[T], err error) Outcome[T] {
	for _, o := range e.observers {
		o.RecordError(op.Name)
	}
	e.log.Warn("Operation failed",
		"op", op.Name,
		"target", op.Target,
		"error", err,
	)
	return Failed[T](err)
}

func invoke[T any](ctx context.Context, op provider.Operation[T]) (value T, err error) {
	if op.Invoke == nil {
		return value, ErrNilOperation
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()
	return op.Invoke(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
