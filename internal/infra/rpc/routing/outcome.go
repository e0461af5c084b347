package routing

import "errors"

// OutcomeKind tags the result of one executor call.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota // zero value, never produced by Execute
	OutcomeSuccess
	OutcomeDenied
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeDenied:
		return "denied"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a remote operation. Err is set for Denied
// and Error outcomes.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

// Success wraps a value.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeSuccess, Value: v}
}

// Denied wraps the denial cause.
func Denied[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeDenied, Err: err}
}

// Failed wraps an unclassified failure.
func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeError, Err: err}
}

func (o Outcome[T]) IsSuccess() bool { return o.Kind == OutcomeSuccess }
func (o Outcome[T]) IsDenied() bool  { return o.Kind == OutcomeDenied }
func (o Outcome[T]) IsError() bool   { return o.Kind == OutcomeError }

// Get returns the value and whether the outcome is a success.
func (o Outcome[T]) Get() (T, bool) {
	return o.Value, o.Kind == OutcomeSuccess
}

// MapOutcome converts the value of a successful outcome and keeps the tag and
// cause of the others.
func MapOutcome[T, U any](o Outcome[T], f func(T) U) Outcome[U] {
	if o.Kind == OutcomeSuccess {
		return Success(f(o.Value))
	}
	return Outcome[U]{Kind: o.Kind, Err: o.Err}
}

// Merge folds batch outcomes: any success gives Success with the combined
// values of all successes, otherwise any denial gives Denied, otherwise Error.
// An empty input is a Success of the zero value.
func Merge[T any](outcomes []Outcome[T], combine func(acc, v T) T) Outcome[T] {
	var (
		acc       T
		succeeded bool
		denied    error
		errs      []error
	)

	if len(outcomes) == 0 {
		return Success(acc)
	}

	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeSuccess:
			acc = combine(acc, o.Value)
			succeeded = true
		case OutcomeDenied:
			if denied == nil {
				denied = o.Err
			}
		default:
			errs = append(errs, o.Err)
		}
	}

	switch {
	case succeeded:
		return Success(acc)
	case denied != nil:
		return Denied[T](denied)
	default:
		return Failed[T](errors.Join(errs...))
	}
}
