package routing

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/floodguard/internal/infra/rpc/provider"
)

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionError ErrorAction = iota // Log and report Error
	ActionRetry                    // Wait, then invoke again
	ActionDeny                     // Report Denied, never retry
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionDeny:
		return "deny"
	default:
		return "error"
	}
}

// Decision is the classification of one failed attempt.
type Decision struct {
	Action ErrorAction
	Wait   time.Duration
	Reason string
}

// Classifier maps an attempt error to a Decision.
type Classifier func(err error) Decision

// ClassifyError is the default classifier. It understands the provider
// signals and treats everything else as unclassified.
func ClassifyError(err error) Decision {
	if err == nil {
		return Decision{Action: ActionError, Reason: "nil_error"} // Should not happen
	}

	if wait, ok := provider.AsFloodWait(err); ok {
		return Decision{Action: ActionRetry, Wait: wait, Reason: "flood_wait"}
	}

	var denied *provider.DeniedError
	if errors.As(err, &denied) {
		return Decision{Action: ActionDeny, Reason: denied.Reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Action: ActionError, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Action: ActionError, Reason: "context_deadline_exceeded"}
	}

	return Decision{Action: ActionError, Reason: "unclassified"}
}

// Chain runs classifiers in order and returns the first decision that is not
// ActionError. If none matches, the last decision is returned.
func Chain(classifiers ...Classifier) Classifier {
	return func(err error) Decision {
		last := Decision{Action: ActionError, Reason: "unclassified"}
		for _, c := range classifiers {
			if c == nil {
				continue
			}
			d := c(err)
			if d.Action != ActionError {
				return d
			}
			last = d
		}
		return last
	}
}
