// Package metrics exposes Prometheus metrics for a destination run.
//
// A Collector owns its own registry so that tests and repeated runs in one
// process do not collide on the default registerer:
//
//	collector := metrics.NewCollector(prometheus.NewRegistry())
//	collector.RecordOutcome("incidents", metrics.OutcomeProcessed)
//	timer := metrics.NewTimer()
//	err := flush()
//	collector.ObserveFlush(timer.Stop(), err)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "graphsink"

// Record outcomes, used as the "outcome" label.
const (
	OutcomeProcessed = "processed"
	OutcomeErrored   = "errored"
	OutcomeSkipped   = "skipped"
)

// Collector groups the counters of one run. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	records       *prometheus.CounterVec
	written       *prometheus.CounterVec
	flushAttempts prometheus.Counter
	flushFailures prometheus.Counter
	flushLatency  prometheus.Histogram
	bufferDepth   prometheus.Gauge
	checkpoints   prometheus.Counter
}

// NewCollector registers the graphsink metrics with reg.
func NewCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		gatherer: reg,
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Input records by stream and outcome",
		}, []string{"stream", "outcome"}),
		written: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_records_total",
			Help:      "Destination records written by model",
		}, []string{"model"}),
		flushAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_attempts_total",
			Help:      "Sink write attempts, including retries",
		}),
		flushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Failed sink write attempts",
		}),
		flushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of sink write attempts",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}),
		bufferDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_records",
			Help:      "Records held in the write buffer",
		}),
		checkpoints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_released_total",
			Help:      "STATE messages released after a covering flush",
		}),
	}
}

// Gatherer returns the registry backing the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.gatherer
}

// RecordOutcome counts one input record.
func (c *Collector) RecordOutcome(stream, outcome string) {
	if c == nil {
		return
	}
	c.records.WithLabelValues(stream, outcome).Inc()
}

// RecordWritten counts records accepted by the sink.
func (c *Collector) RecordWritten(counts map[string]int) {
	if c == nil {
		return
	}
	for model, n := range counts {
		c.written.WithLabelValues(model).Add(float64(n))
	}
}

// ObserveFlush records one write attempt and its result.
func (c *Collector) ObserveFlush(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.flushAttempts.Inc()
	c.flushLatency.Observe(d.Seconds())
	if err != nil {
		c.flushFailures.Inc()
	}
}

// SetBufferDepth reports the current buffer size.
func (c *Collector) SetBufferDepth(n int) {
	if c == nil {
		return
	}
	c.bufferDepth.Set(float64(n))
}

// CheckpointReleased counts one released STATE message.
func (c *Collector) CheckpointReleased() {
	if c == nil {
		return
	}
	c.checkpoints.Inc()
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since the timer started. It may be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
