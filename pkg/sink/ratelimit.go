package sink

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ajitpratap0/graphsink/pkg/errors"
)

type rateLimited struct {
	next    Sink
	limiter *rate.Limiter
}

// WithRateLimit limits next to perSec batch writes per second. A
// non-positive rate returns next unchanged.
func WithRateLimit(next Sink, perSec float64, burst int) Sink {
	if perSec <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (r *rateLimited) Write(ctx context.Context, b *Batch) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRateLimit, "wait for sink rate limit")
	}
	return r.next.Write(ctx, b)
}

func (r *rateLimited) Close(ctx context.Context) error {
	return r.next.Close(ctx)
}
