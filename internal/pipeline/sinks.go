package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/config"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

// OpenSink creates the sink a config asks for. Dry runs always get the dry
// sink, whatever type is configured.
func OpenSink(ctx context.Context, cfg *config.DestinationConfig, logger *zap.Logger) (sink.Sink, error) {
	if cfg.DryRun {
		return sink.NewDry(), nil
	}

	s, err := sink.Create(ctx, cfg.Sink.Type, sink.Settings(cfg.Sink.Settings), logger)
	if err != nil {
		return nil, err
	}
	if cfg.Sink.IsRateLimited() {
		s = sink.WithRateLimit(s, cfg.Sink.RateLimitPerSec, cfg.Sink.RateLimitBurst)
	}
	return s, nil
}
