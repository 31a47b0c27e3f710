package sink

import (
	"context"
	"sync"
)

// Dry accepts every batch without external effect. It records what would
// have been written so runs can be compared.
type Dry struct {
	mu      sync.Mutex
	batches int
	written map[string]int
}

// NewDry creates a dry sink.
func NewDry() *Dry {
	return &Dry{written: make(map[string]int)}
}

func (d *Dry) Write(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches++
	for model, n := range b.Counts() {
		d.written[model] += n
	}
	return nil
}

func (d *Dry) Close(context.Context) error { return nil }

// Batches returns how many batches were accepted.
func (d *Dry) Batches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

// Written returns a copy of the per-model counts accepted so far.
func (d *Dry) Written() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.written))
	for k, v := range d.written {
		out[k] = v
	}
	return out
}
