// Package pipeline turns a stream of protocol messages into destination
// writes.
//
// A Runner handles messages in arrival order on a single goroutine while a
// second goroutine reads the input. Records go through the Engine, which
// resolves the configured stream and its converter and returns the
// destination records. Those are accumulated by model in the
// Buffer and written by the Flusher when a bound is crossed, when a STATE
// message arrives, at end of input, or when the run is cancelled. STATE
// messages are held by the Emitter until a flush covering them succeeds,
// so a checkpoint is never written ahead of the data it describes.
//
// # Basic Usage
//
//	runner, err := pipeline.New(pipeline.Options{
//	    Config:   cfg,
//	    Catalog:  validator,
//	    Registry: registry,
//	    Sink:     sink.NewDry(),
//	    Writer:   protocol.NewWriter(os.Stdout),
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	err = runner.Write(ctx, os.Stdin)
package pipeline

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/catalog"
	"github.com/ajitpratap0/graphsink/pkg/config"
	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/metrics"
	"github.com/ajitpratap0/graphsink/pkg/observability"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
	"github.com/ajitpratap0/graphsink/pkg/sink"
	"github.com/ajitpratap0/graphsink/pkg/statestore"
)

// Options are the collaborators of a Runner. Config, Catalog, Registry,
// Sink and Writer are required.
type Options struct {
	Config   *config.DestinationConfig
	Catalog  *catalog.Validator
	Registry *converter.Registry
	Sink     sink.Sink
	Writer   *protocol.Writer
	Store    statestore.Store
	Metrics  *metrics.Collector
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Runner executes one destination run.
type Runner struct {
	cfg     *config.DestinationConfig
	engine  *Engine
	buffer  *Buffer
	flusher *Flusher
	emitter *Emitter
	stats   *Stats
	writer  *protocol.Writer
	metrics *metrics.Collector
	tracer  trace.Tracer

	// logger carries no fields so that summary lines are emitted verbatim.
	logger *zap.Logger
	log    *zap.Logger
}

// New validates the options and assembles a Runner. Catalog streams without
// a converter are reported as warnings; their records will be skipped.
func New(opts Options) (*Runner, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New(errors.ErrorTypeConfig, "runner requires a config")
	case opts.Catalog == nil:
		return nil, errors.New(errors.ErrorTypeConfig, "runner requires a catalog")
	case opts.Registry == nil:
		return nil, errors.New(errors.ErrorTypeConfig, "runner requires a converter registry")
	case opts.Sink == nil:
		return nil, errors.New(errors.ErrorTypeConfig, "runner requires a sink")
	case opts.Writer == nil:
		return nil, errors.New(errors.ErrorTypeConfig, "runner requires an output writer")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("graphsink")
	}

	cfg := opts.Config
	policy := cfg.Flush.RetryPolicy()
	if err := policy.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid flush retry policy")
	}

	r := &Runner{
		cfg:     cfg,
		buffer:  NewBuffer(cfg.Buffer.MaxRecords, cfg.Buffer.MaxBytes),
		stats:   NewStats(),
		writer:  opts.Writer,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  opts.Logger,
		log:     opts.Logger.With(zap.String("component", "runner")),
	}
	r.engine = NewEngine(EngineConfig{
		Catalog:       opts.Catalog,
		Registry:      opts.Registry,
		DefaultSource: cfg.DefaultSource,
		Origin:        cfg.Origin,
		Settings:      cfg.ConverterSettings,
		Tracer:        opts.Tracer,
		Logger:        opts.Logger,
	})
	r.flusher = newFlusher(r, opts.Sink, policy, cfg.Flush.Timeout)
	r.emitter = NewEmitter(cfg.Name, opts.Writer, opts.Store, opts.Metrics, opts.Logger)

	for _, stream := range opts.Registry.Check(opts.Catalog) {
		r.log.Warn("No converter registered for configured stream, its records will be skipped",
			zap.String("stream", stream))
	}
	return r, nil
}

// Stats returns the run statistics.
func (r *Runner) Stats() *Stats {
	return r.stats
}

// LastCheckpoint returns the last released checkpoint, or nil.
func (r *Runner) LastCheckpoint() *statestore.Checkpoint {
	return r.emitter.Last()
}

// Write consumes in until end of input or cancellation, then performs a
// final flush and logs the summary. The returned error is non-nil only for
// failures that make the run fatal.
func (r *Runner) Write(ctx context.Context, in io.Reader) error {
	reader := protocol.NewReader(in, r.log, protocol.WithMaxLineSize(r.cfg.Input.MaxLineSize))

	err := r.consume(ctx, reader)
	if err == nil {
		err = r.finish(ctx)
	}

	if err != nil {
		r.logFatal(err)
	}
	for _, line := range r.stats.Summary(r.cfg.DryRun) {
		r.logger.Info(line)
	}
	observability.LogSnapshot(r.log)
	return err
}

// consume reads on a separate goroutine so a stop signal is honoured while
// the input is idle. A line being read when ctx is done is abandoned.
func (r *Runner) consume(ctx context.Context, reader *protocol.Reader) error {
	msgs := make(chan *protocol.Message)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(msgs)
		for reader.Next() {
			select {
			case msgs <- reader.Message():
			case <-done:
				return
			}
		}
	}()

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case msg, ok := <-msgs:
			if !ok {
				r.endOfInput(reader)
				return nil
			}
			if err := r.dispatch(ctx, msg); err != nil {
				return r.interrupted(ctx, err)
			}
		}
	}
	r.log.Info("Run cancelled, stopped reading input")
	return nil
}

func (r *Runner) dispatch(ctx context.Context, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeRecord:
		return r.handleRecord(ctx, msg.Record)
	case protocol.TypeState:
		return r.handleState(ctx, msg.State)
	case protocol.TypeLog:
		r.log.Debug("Source log", zap.String("level", string(msg.Log.Level)), zap.String("message", msg.Log.Message))
	case protocol.TypeTrace:
		r.handleTrace(msg.Trace)
	case protocol.TypeConnectionStatus:
		r.log.Debug("Source connection status", zap.String("status", msg.ConnectionStatus.Status))
	}
	return nil
}

// endOfInput reports how reading ended. The reader goroutine has exited.
func (r *Runner) endOfInput(reader *protocol.Reader) {
	if err := reader.Err(); err != nil {
		r.log.Error("Stopped reading input", zap.Error(err), zap.Int("line", reader.Line()))
	}
	if n := reader.Skipped(); n > 0 {
		r.log.Warn("Skipped undecodable input lines", zap.Int("lines", n))
	}
}

// interrupted drops a flush error caused by cancellation; the final flush
// retries the same records with a fresh context.
func (r *Runner) interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.log.Info("Run cancelled, flushing buffered records", zap.Error(err))
		return nil
	}
	return err
}

func (r *Runner) handleRecord(ctx context.Context, rec *protocol.Record) error {
	res := r.engine.Process(ctx, rec)
	stream := catalog.Identity{Name: rec.Stream, Namespace: rec.Namespace}.String()
	r.stats.Record(stream, res.Outcome)
	r.metrics.RecordOutcome(stream, outcomeLabel(res.Outcome))
	if res.Outcome != Converted {
		return nil
	}

	if !r.buffer.Fits(res.Records) {
		if err := r.flush(ctx); err != nil {
			return err
		}
	}
	r.buffer.Add(res.Records)
	r.metrics.SetBufferDepth(r.buffer.Len())

	if r.buffer.Full() {
		return r.flush(ctx)
	}
	return nil
}

func (r *Runner) handleState(ctx context.Context, state *protocol.State) error {
	r.emitter.Hold(state, r.buffer.Seq())
	if r.cfg.Checkpoint.FlushOnState {
		return r.flush(ctx)
	}
	// Nothing unflushed precedes the state, so it can go out right away.
	if r.buffer.Len() == 0 {
		return r.emitter.Release(ctx, r.buffer.Seq())
	}
	return nil
}

func (r *Runner) handleTrace(t *protocol.Trace) {
	if t.Error == nil {
		r.log.Debug("Source trace", zap.String("type", string(t.Type)))
		return
	}
	r.log.Warn("Source reported an error",
		zap.String("message", t.Error.Message),
		zap.String("failure_type", t.Error.FailureType))
}

func (r *Runner) flush(ctx context.Context) error {
	if err := r.flusher.Flush(ctx); err != nil {
		return err
	}
	if err := r.emitter.Release(ctx, r.flusher.Flushed()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "write state")
	}
	return nil
}

// finish flushes what is left. A cancelled run gets a fresh context bounded
// by the final timeout so buffered records are not lost.
func (r *Runner) finish(ctx context.Context) error {
	if ctx.Err() != nil {
		timeout := r.cfg.Flush.FinalTimeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
		defer cancel()
	}
	return r.flush(ctx)
}

func (r *Runner) logFatal(err error) {
	fields := []zap.Field{zap.Error(err)}
	if cp := r.emitter.Last(); cp != nil {
		fields = append(fields,
			zap.Uint64("last_checkpoint_sequence", cp.Sequence),
			zap.String("last_checkpoint", string(cp.State)))
	} else {
		fields = append(fields, zap.String("last_checkpoint", "none"))
	}
	fields = append(fields, zap.Int("unreleased_states", r.emitter.Pending()))
	r.log.Error("Fatal error, stopping", fields...)
}

func outcomeLabel(o Outcome) string {
	switch o {
	case Converted:
		return metrics.OutcomeProcessed
	case Errored:
		return metrics.OutcomeErrored
	default:
		return metrics.OutcomeSkipped
	}
}
