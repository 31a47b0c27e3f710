package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/catalog"
	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/observability"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
)

// Outcome is the result class of one input record.
type Outcome int

const (
	// Converted records produced destination records for the buffer.
	Converted Outcome = iota
	// Errored records made their converter fail.
	Errored
	// Skipped records belong to a stream without catalog entry or converter.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Converted:
		return "converted"
	case Errored:
		return "errored"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what the engine made of one record.
type Result struct {
	Outcome Outcome
	Records []converter.DestinationRecord
	Err     error
}

// SettingsFunc returns the converter settings of a source.
type SettingsFunc func(source string) map[string]interface{}

// Engine resolves the stream and converter of each record and converts it.
// It is not safe for concurrent use; the runner drives it from one goroutine.
type Engine struct {
	catalog       *catalog.Validator
	registry      *converter.Registry
	defaultSource string
	origin        string
	settings      SettingsFunc
	memo          *converter.Memo
	tracer        trace.Tracer
	logger        *zap.Logger

	warned map[string]bool
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Catalog       *catalog.Validator
	Registry      *converter.Registry
	DefaultSource string
	// Origin is used for streams whose name carries no origin prefix.
	Origin   string
	Settings SettingsFunc
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// NewEngine creates an engine with a fresh per-run memo.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("graphsink")
	}
	if cfg.Settings == nil {
		cfg.Settings = func(string) map[string]interface{} { return nil }
	}
	return &Engine{
		catalog:       cfg.Catalog,
		registry:      cfg.Registry,
		defaultSource: cfg.DefaultSource,
		origin:        cfg.Origin,
		settings:      cfg.Settings,
		memo:          converter.NewMemo(),
		tracer:        cfg.Tracer,
		logger:        cfg.Logger.With(zap.String("component", "engine")),
		warned:        make(map[string]bool),
	}
}

// Process converts one record. Failures are reported in the Result and
// never returned to the caller as a reason to stop.
func (e *Engine) Process(ctx context.Context, rec *protocol.Record) Result {
	id := catalog.Identity{Name: rec.Stream, Namespace: rec.Namespace}

	cs, ok := e.catalog.Lookup(id)
	if !ok {
		return e.skip(id, "stream is not in the catalog")
	}
	conv, ok := e.registry.Lookup(id)
	if !ok {
		return e.skip(id, "no converter registered for stream")
	}

	origin, key := converter.ParseStreamName(rec.Stream, e.defaultSource)
	if origin == "" {
		origin = e.origin
	}
	sc := converter.NewStreamContext(cs, key, origin, e.settings(key.Source), e.memo, e.logger)

	ctx, span := e.tracer.Start(ctx, "convert", trace.WithAttributes(
		attribute.String("stream", rec.Stream),
		attribute.String("converter", key.String()),
	))
	records, err := e.convert(ctx, conv, rec, sc)
	observability.End(span, err)

	if err != nil {
		e.logger.Warn("Failed to convert record",
			zap.String("stream", rec.Stream),
			zap.Error(err),
			zap.String("record", summarize(rec.Data)))
		return Result{Outcome: Errored, Err: err}
	}
	return Result{Outcome: Converted, Records: records}
}

// convert calls the converter, turning a panic into a conversion error.
func (e *Engine) convert(ctx context.Context, conv converter.Converter, rec *protocol.Record, sc *converter.StreamContext) (records []converter.DestinationRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = errors.Newf(errors.ErrorTypeConversion, "converter panicked: %v", r)
		}
	}()

	records, err = conv.Convert(ctx, rec, sc)
	if err != nil && !errors.IsType(err, errors.ErrorTypeConversion) {
		err = errors.Wrap(err, errors.ErrorTypeConversion, "convert "+sc.Key.String())
	}
	return records, err
}

func (e *Engine) skip(id catalog.Identity, reason string) Result {
	err := errors.New(errors.ErrorTypeUnconfiguredStream, reason).WithDetail("stream", id.String())
	if !e.warned[id.String()] {
		e.warned[id.String()] = true
		e.logger.Warn("Skipping records of unconfigured stream",
			zap.String("stream", id.String()),
			zap.String("reason", reason))
	}
	return Result{Outcome: Skipped, Err: err}
}

const maxSummaryBytes = 512

// summarize renders the record payload for a log line, truncated.
func summarize(data map[string]interface{}) string {
	raw, err := json.MarshalNoEscape(data)
	if err != nil {
		return fmt.Sprintf("<unencodable: %v>", err)
	}
	if len(raw) > maxSummaryBytes {
		return string(raw[:maxSummaryBytes]) + "..."
	}
	return string(raw)
}
