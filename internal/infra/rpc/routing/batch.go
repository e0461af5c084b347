package routing

import (
	"context"

	"github.com/vietddude/floodguard/internal/infra/rpc/provider"
)

// DefaultBatchSize is the platform's per-call limit for multi-target calls.
const DefaultBatchSize = 100

// Partition splits items into consecutive batches of at most size elements.
// A non-positive size yields a single batch.
func Partition[E any](items []E, size int) [][]E {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]E{items[:len(items):len(items)]}
	}

	batches := make([][]E, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

// ExecuteBatches runs one independent retry loop per batch. A denied or
// failed batch does not stop the batches after it.
func ExecuteBatches[E, T any](
	ctx context.Context,
	e *Executor,
	items []E,
	size int,
	build func(batch []E) provider.Operation[T],
) []Outcome[T] {
	batches := Partition(items, size)
	outcomes := make([]Outcome[T], 0, len(batches))
	for _, batch := range batches {
		outcomes = append(outcomes, Execute(ctx, e, build(batch)))
	}
	return outcomes
}
