package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/metrics"
	"github.com/ajitpratap0/graphsink/pkg/observability"
	"github.com/ajitpratap0/graphsink/pkg/retry"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

// Flusher drains the buffer into the sink.
type Flusher struct {
	sink           sink.Sink
	buffer         *Buffer
	policy         *retry.Policy
	attemptTimeout time.Duration
	origin         string
	stats          *Stats
	metrics        *metrics.Collector
	tracer         trace.Tracer
	logger         *zap.Logger
	newID          func() string

	flushed uint64
	batches int
}

func newFlusher(r *Runner, s sink.Sink, policy *retry.Policy, attemptTimeout time.Duration) *Flusher {
	f := &Flusher{
		sink:           s,
		buffer:         r.buffer,
		attemptTimeout: attemptTimeout,
		origin:         r.cfg.Origin,
		stats:          r.stats,
		metrics:        r.metrics,
		tracer:         r.tracer,
		logger:         r.logger.With(zap.String("component", "flusher")),
		newID:          uuid.NewString,
	}
	f.policy = policy.Clone()
	f.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		f.logger.Warn("Retrying flush",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return f
}

// Flushed returns the last input sequence known to be stored.
func (f *Flusher) Flushed() uint64 {
	return f.flushed
}

// Flush writes everything currently buffered. An empty buffer is a
// successful no-op. After the retries are exhausted the returned error is a
// fatal flush error and the buffer keeps its records.
func (f *Flusher) Flush(ctx context.Context) error {
	snap := f.buffer.Snapshot()
	if snap.Len() == 0 {
		f.flushed = snap.Seq
		return nil
	}

	batch := &sink.Batch{ID: f.newID(), Origin: f.origin, Models: snap.Models}
	ctx, span := f.tracer.Start(ctx, "flush", trace.WithAttributes(
		attribute.String("batch_id", batch.ID),
		attribute.Int("records", snap.Len()),
	))

	err := f.policy.ExecuteWithCondition(ctx, func(attempt int) error {
		return f.attempt(ctx, batch, attempt)
	}, shouldRetry)
	if err != nil {
		err = errors.Wrap(err, errors.ErrorTypeFlush, fmt.Sprintf("failed to write %d records", snap.Len())).
			WithDetail("batch_id", batch.ID).
			WithDetail("models", batch.ModelNames())
		observability.End(span, err)
		return err
	}
	observability.End(span, nil)

	f.buffer.Commit(snap)
	f.flushed = snap.Seq
	f.batches++

	counts := snap.Counts()
	f.stats.AddWritten(counts)
	f.metrics.RecordWritten(counts)
	f.metrics.SetBufferDepth(f.buffer.Len())
	f.logger.Debug("Flushed batch",
		zap.String("batch_id", batch.ID),
		zap.Int("records", snap.Len()),
		zap.Uint64("sequence", snap.Seq))
	return nil
}

func (f *Flusher) attempt(ctx context.Context, batch *sink.Batch, attempt int) error {
	actx := ctx
	if f.attemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()
	}

	timer := metrics.NewTimer()
	err := f.sink.Write(actx, batch)
	f.metrics.ObserveFlush(timer.Stop(), err)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, fmt.Sprintf("attempt %d timed out after %s", attempt, f.attemptTimeout))
	}
	return err
}

// shouldRetry retries transient failures and anything the sink did not
// classify. Records a sink rejected as invalid fail the same way again.
func shouldRetry(err error) bool {
	if errors.IsRetryable(err) {
		return true
	}
	return !errors.IsType(err, errors.ErrorTypeValidation) && !errors.IsType(err, errors.ErrorTypeConfig)
}
