package rpc

import (
	"context"
	"fmt"

	"github.com/vietddude/floodguard/internal/infra/rpc/provider"
)

// NewOperation creates an Operation acting on target.
// Target may be any value with a readable form (chat id, username).
func NewOperation[T any](name string, target any, invoke func(ctx context.Context) (T, error)) Operation[T] {
	return provider.Operation[T]{
		Name:   name,
		Target: targetString(target),
		Invoke: invoke,
	}
}

// NewCall creates an Operation for a call that returns only an error.
func NewCall(name string, target any, call func(ctx context.Context) error) Operation[struct{}] {
	return NewOperation(name, target, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
}

func targetString(target any) string {
	switch t := target.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
