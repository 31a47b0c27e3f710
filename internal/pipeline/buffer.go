package pipeline

import (
	"sync"

	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

// Buffer accumulates destination records by model until a flush. Models
// keep the order in which they first appeared. Each Add is one input record
// and advances the buffer sequence by one.
type Buffer struct {
	mu         sync.Mutex
	maxRecords int
	maxBytes   int64

	order   []string
	models  map[string][]converter.DestinationRecord
	records int
	bytes   int64
	seq     uint64
}

// NewBuffer creates a buffer bounded by maxRecords and maxBytes. A bound of
// zero or less disables it.
func NewBuffer(maxRecords int, maxBytes int64) *Buffer {
	return &Buffer{
		maxRecords: maxRecords,
		maxBytes:   maxBytes,
		models:     make(map[string][]converter.DestinationRecord),
	}
}

// Fits reports whether recs can be added without crossing a bound. Anything
// fits an empty buffer, so an oversize record is flushed on its own.
func (b *Buffer) Fits(recs []converter.DestinationRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.records == 0 {
		return true
	}
	if b.maxRecords > 0 && b.records+len(recs) > b.maxRecords {
		return false
	}
	if b.maxBytes > 0 && b.bytes+size(recs) > b.maxBytes {
		return false
	}
	return true
}

// Add appends the records of one input record and returns its sequence
// number.
func (b *Buffer) Add(recs []converter.DestinationRecord) uint64 {
	n := size(recs)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range recs {
		if _, ok := b.models[r.Model]; !ok {
			b.order = append(b.order, r.Model)
		}
		b.models[r.Model] = append(b.models[r.Model], r)
	}
	b.records += len(recs)
	b.bytes += n
	b.seq++
	return b.seq
}

// Full reports whether a bound has been reached.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return (b.maxRecords > 0 && b.records >= b.maxRecords) ||
		(b.maxBytes > 0 && b.bytes >= b.maxBytes)
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records
}

// Seq returns the sequence number of the last Add.
func (b *Buffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Snapshot captures the current contents. The buffer is unchanged until the
// snapshot is committed.
func (b *Buffer) Snapshot() *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Snapshot{
		Seq:    b.seq,
		Models: make([]sink.ModelBatch, 0, len(b.order)),
		Bytes:  b.bytes,
	}
	for _, model := range b.order {
		recs := b.models[model]
		s.Models = append(s.Models, sink.ModelBatch{Model: model, Records: recs[:len(recs):len(recs)]})
	}
	return s
}

// Commit drops exactly the records captured by s. Records added after the
// snapshot stay buffered.
func (b *Buffer) Commit(s *Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, mb := range s.Models {
		remaining := b.models[mb.Model][len(mb.Records):]
		b.records -= len(mb.Records)
		if len(remaining) == 0 {
			delete(b.models, mb.Model)
			continue
		}
		b.models[mb.Model] = remaining
	}

	order := b.order[:0]
	for _, model := range b.order {
		if _, ok := b.models[model]; ok {
			order = append(order, model)
		}
	}
	b.order = order
	b.bytes -= s.Bytes
	if b.records == 0 {
		b.bytes = 0
	}
}

// Snapshot is a captured prefix of the buffer.
type Snapshot struct {
	// Seq is the last input sequence the snapshot covers.
	Seq    uint64
	Models []sink.ModelBatch
	Bytes  int64
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	n := 0
	for _, mb := range s.Models {
		n += len(mb.Records)
	}
	return n
}

// Counts returns the number of records per model.
func (s *Snapshot) Counts() map[string]int {
	counts := make(map[string]int, len(s.Models))
	for _, mb := range s.Models {
		counts[mb.Model] += len(mb.Records)
	}
	return counts
}

func size(recs []converter.DestinationRecord) int64 {
	var n int64
	for _, r := range recs {
		n += int64(r.EncodedSize())
	}
	return n
}
