package main

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/internal/pipeline"
	"github.com/ajitpratap0/graphsink/pkg/catalog"
	"github.com/ajitpratap0/graphsink/pkg/config"
	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/converter/pagerduty"
	"github.com/ajitpratap0/graphsink/pkg/logger"
	"github.com/ajitpratap0/graphsink/pkg/metrics"
	"github.com/ajitpratap0/graphsink/pkg/observability"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
	"github.com/ajitpratap0/graphsink/pkg/statestore"
)

const closeTimeout = 30 * time.Second

type writeOptions struct {
	configPath  string
	catalogPath string
	stateFile   string
	dryRun      bool
}

// reportedError marks an error that was already written to the output as a
// LOG message.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func newConverterRegistry(defaultSource string, log *zap.Logger) (*converter.Registry, error) {
	registry := converter.NewRegistry(defaultSource, log)
	if err := registry.Register(pagerduty.Converters()...); err != nil {
		return nil, err
	}
	return registry, nil
}

// runWrite executes one destination run. Every failure is reported on out
// as a LOG message before it is returned.
func runWrite(ctx context.Context, opts writeOptions, in io.Reader, out io.Writer) error {
	w := protocol.NewWriter(out)
	log, err := logger.New(logger.Config{Level: "info", Encoding: logger.EncodingProtocol, Writer: w})
	if err != nil {
		return err
	}
	fail := func(msg string, err error) error {
		log.Error(msg, zap.Error(err))
		return &reportedError{err: err}
	}

	cfg, err := config.Load(opts.configPath, func(c *config.DestinationConfig) {
		if opts.dryRun {
			c.DryRun = true
		}
		if opts.stateFile != "" {
			c.Checkpoint.StateStorePath = opts.stateFile
		}
	})
	if err != nil {
		return fail("Invalid configuration", err)
	}
	if cfg.Observability.LogLevel != "" {
		leveled, err := logger.New(logger.Config{Level: cfg.Observability.LogLevel, Encoding: logger.EncodingProtocol, Writer: w})
		if err != nil {
			return fail("Invalid log level", err)
		}
		log = leveled
	}
	logger.Set(log)
	defer log.Sync() //nolint:errcheck

	cat, err := catalog.Load(opts.catalogPath)
	if err != nil {
		return fail("Invalid catalog", err)
	}
	validator, err := catalog.NewValidator(cat)
	if err != nil {
		return fail("Invalid catalog", err)
	}
	registry, err := newConverterRegistry(cfg.DefaultSource, log)
	if err != nil {
		return fail("Invalid converter registry", err)
	}

	tracing, err := observability.NewTracing(ctx, observability.TracingConfig{
		ServiceName:    "graphsink",
		ServiceVersion: version,
		TraceFile:      cfg.Observability.TraceFile,
	})
	if err != nil {
		return fail("Failed to set up tracing", err)
	}
	defer shutdown(log, "tracing", tracing.Shutdown)

	collector := metrics.NewCollector(prometheus.NewRegistry())
	if cfg.Observability.MetricsAddr != "" {
		srv, err := metrics.Serve(cfg.Observability.MetricsAddr, collector, log)
		if err != nil {
			return fail("Failed to start metrics server", err)
		}
		defer shutdown(log, "metrics server", srv.Shutdown)
	}

	store, err := statestore.Open(ctx, cfg.Checkpoint.StateStorePath)
	if err != nil {
		return fail("Failed to open state store", err)
	}
	defer store.Close()
	if prev, err := store.Load(ctx, cfg.Name); err == nil && prev != nil {
		log.Debug("Previous run advanced to checkpoint",
			zap.Uint64("sequence", prev.Sequence),
			zap.Time("updated_at", prev.UpdatedAt))
	}

	s, err := pipeline.OpenSink(ctx, cfg, log)
	if err != nil {
		return fail("Failed to open sink", err)
	}
	defer shutdown(log, "sink", s.Close)

	runner, err := pipeline.New(pipeline.Options{
		Config:   cfg,
		Catalog:  validator,
		Registry: registry,
		Sink:     s,
		Writer:   w,
		Store:    store,
		Metrics:  collector,
		Tracer:   tracing.Tracer(),
		Logger:   log,
	})
	if err != nil {
		return fail("Invalid pipeline configuration", err)
	}

	if err := runner.Write(ctx, in); err != nil {
		return &reportedError{err: err}
	}
	return nil
}

// shutdown releases a resource with a fresh bounded context, since the run
// context may already be cancelled.
func shutdown(log *zap.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("Failed to close "+what, zap.Error(err))
	}
}
