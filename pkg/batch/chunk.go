// Package batch partitions mutation payloads into API-legal batches and
// dispatches them with a bounded worker pool. Each batch's result is
// recorded independently: a failed batch never cancels or blocks the
// others.
package batch

import (
	"fmt"

	"github.com/Sternrassler/catalog-sync/pkg/catalog"
)

// MaxSize is the largest batch the store's batch endpoints accept.
const MaxSize = 100

// Batch is an ordered slice of payloads sharing one operation.
type Batch[T any] struct {
	// Index is the 0-based position of the batch in its partition.
	Index int
	Op    catalog.Op
	Items []T
}

// Len returns the number of items in the batch.
func (b Batch[T]) Len() int { return len(b.Items) }

// Chunk partitions items into consecutive batches of at most size items.
// Order is preserved, only the last batch may be short, and an empty input
// yields no batches. Chunk panics if size is not positive.
func Chunk[T any](items []T, size int, op catalog.Op) []Batch[T] {
	if size <= 0 {
		panic(fmt.Sprintf("batch: chunk size must be positive, got %d", size))
	}

	batches := make([]Batch[T], 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, Batch[T]{
			Index: len(batches),
			Op:    op,
			Items: items[start:end:end],
		})
	}
	return batches
}
