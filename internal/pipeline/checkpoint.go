package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/metrics"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
	"github.com/ajitpratap0/graphsink/pkg/statestore"
)

type heldState struct {
	seq   uint64
	state *protocol.State
}

// Emitter holds STATE messages until the records before them are stored,
// then releases them in arrival order.
type Emitter struct {
	name    string
	writer  *protocol.Writer
	store   statestore.Store
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time

	pending []heldState
	last    *statestore.Checkpoint
}

// NewEmitter creates an emitter writing released states to w and saving
// them under name in store. store may be nil.
func NewEmitter(name string, w *protocol.Writer, store statestore.Store, m *metrics.Collector, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		name:    name,
		writer:  w,
		store:   store,
		metrics: m,
		logger:  logger.With(zap.String("component", "checkpoint")),
		now:     time.Now,
	}
}

// Hold queues state as covering every record up to seq.
func (e *Emitter) Hold(state *protocol.State, seq uint64) {
	e.pending = append(e.pending, heldState{seq: seq, state: state})
}

// Pending returns the number of held states.
func (e *Emitter) Pending() int {
	return len(e.pending)
}

// Release emits every held state covered by flushed. It stops at the first
// state that is not covered, so states are never reordered.
func (e *Emitter) Release(ctx context.Context, flushed uint64) error {
	n := 0
	for _, h := range e.pending {
		if h.seq > flushed {
			break
		}
		if err := e.writer.State(h.state); err != nil {
			e.pending = e.pending[n:]
			return err
		}
		e.advance(ctx, h)
		n++
	}
	e.pending = e.pending[n:]
	return nil
}

func (e *Emitter) advance(ctx context.Context, h heldState) {
	raw, err := json.MarshalNoEscape(h.state)
	if err != nil {
		raw = json.RawMessage("null")
	}
	cp := statestore.Checkpoint{Name: e.name, Sequence: h.seq, State: raw, UpdatedAt: e.now().UTC()}
	e.last = &cp
	e.metrics.CheckpointReleased()

	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, cp); err != nil {
		e.logger.Warn("Failed to persist checkpoint", zap.Uint64("sequence", h.seq), zap.Error(err))
	}
}

// Last returns the most recently released checkpoint, or nil.
func (e *Emitter) Last() *statestore.Checkpoint {
	return e.last
}
