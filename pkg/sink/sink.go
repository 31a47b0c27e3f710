// Package sink defines the destination stores the write buffer flushes to.
//
// Every Sink must treat Write as an upsert keyed by (model, key): the
// flusher retries a failed batch as a whole, so a batch may arrive more than
// once. Concrete sinks live in sub-packages and register a Factory from
// their init function.
package sink

import (
	"context"
	"sort"

	"github.com/ajitpratap0/graphsink/pkg/converter"
)

// Sink writes batches of entities to a destination store.
type Sink interface {
	// Write durably stores every record of b, or fails as a whole.
	Write(ctx context.Context, b *Batch) error
	// Close releases connections held by the sink.
	Close(ctx context.Context) error
}

// ModelBatch is the ordered records of one model within a Batch.
type ModelBatch struct {
	Model   string
	Records []converter.DestinationRecord
}

// Batch is one flush worth of entities, grouped by model in first
// appearance order. ID is stable across retries of the same flush.
type Batch struct {
	ID     string
	Origin string
	Models []ModelBatch
}

// Len returns the total number of records in the batch.
func (b *Batch) Len() int {
	n := 0
	for _, m := range b.Models {
		n += len(m.Records)
	}
	return n
}

// Counts returns the number of records per model.
func (b *Batch) Counts() map[string]int {
	counts := make(map[string]int, len(b.Models))
	for _, m := range b.Models {
		counts[m.Model] += len(m.Records)
	}
	return counts
}

// ModelNames returns the models in the batch, sorted.
func (b *Batch) ModelNames() []string {
	names := make([]string, 0, len(b.Models))
	for _, m := range b.Models {
		names = append(names, m.Model)
	}
	sort.Strings(names)
	return names
}
