// Package config defines the destination configuration for graphsink.
//
// The configuration is organized into logical sections:
//   - Buffer: bounds of the in-memory write buffer
//   - Flush: per-attempt timeout and retry policy for destination writes
//   - Checkpoint: when and where STATE checkpoints are advanced
//   - Sink: destination type and its settings
//   - Converters: per-source converter settings
//   - Observability: log level, metrics endpoint, trace output
//
// Example usage:
//
//	cfg, err := config.Load("destination.yaml")
//	if err != nil {
//	    return err
//	}
//	cfg.DryRun = true
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/graphsink/pkg/retry"
)

// DestinationConfig is the resolved configuration of one destination run.
type DestinationConfig struct {
	// Name identifies the destination instance in logs and metrics
	Name string `mapstructure:"name" yaml:"name" json:"name"`
	// DryRun routes every flush to a no-op sink
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run" json:"dry_run"`
	// DefaultSource is used for stream names without a source prefix
	DefaultSource string `mapstructure:"default_source" yaml:"default_source" json:"default_source"`
	// Origin is recorded on every written entity
	Origin string `mapstructure:"origin" yaml:"origin" json:"origin"`

	Input         InputConfig         `mapstructure:"input" yaml:"input" json:"input"`
	Buffer        BufferConfig        `mapstructure:"buffer" yaml:"buffer" json:"buffer"`
	Flush         FlushConfig         `mapstructure:"flush" yaml:"flush" json:"flush"`
	Checkpoint    CheckpointConfig    `mapstructure:"checkpoint" yaml:"checkpoint" json:"checkpoint"`
	Sink          SinkConfig          `mapstructure:"sink" yaml:"sink" json:"sink"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`

	// Converters holds settings keyed by source name (e.g. "pagerduty")
	Converters map[string]map[string]interface{} `mapstructure:"converters" yaml:"converters" json:"converters"`
}

// InputConfig controls protocol decoding.
type InputConfig struct {
	// MaxLineSize bounds a single input line in bytes
	MaxLineSize int `mapstructure:"max_line_size" yaml:"max_line_size" json:"max_line_size"`
}

// BufferConfig bounds the write buffer. A flush is triggered as soon as
// adding a record would cross either bound.
type BufferConfig struct {
	MaxRecords int   `mapstructure:"max_records" yaml:"max_records" json:"max_records"`
	MaxBytes   int64 `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
}

// FlushConfig contains the destination write timeout and retry settings.
type FlushConfig struct {
	// Timeout bounds a single write attempt
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	// RetryAttempts is the total number of attempts, including the first
	RetryAttempts   int           `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier" yaml:"retry_multiplier" json:"retry_multiplier"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay" json:"max_retry_delay"`
	Jitter          float64       `mapstructure:"jitter" yaml:"jitter" json:"jitter"`
	// FinalTimeout bounds the flush performed after a stop signal
	FinalTimeout time.Duration `mapstructure:"final_timeout" yaml:"final_timeout" json:"final_timeout"`
}

// CheckpointConfig controls STATE handling.
type CheckpointConfig struct {
	// FlushOnState flushes the buffer whenever a STATE message arrives
	FlushOnState bool `mapstructure:"flush_on_state" yaml:"flush_on_state" json:"flush_on_state"`
	// StateStorePath is a sqlite file persisting the last advanced checkpoint
	StateStorePath string `mapstructure:"state_store_path" yaml:"state_store_path" json:"state_store_path"`
}

// SinkConfig selects and configures the destination store.
type SinkConfig struct {
	Type            string                 `mapstructure:"type" yaml:"type" json:"type"`
	RateLimitPerSec float64                `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RateLimitBurst  int                    `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst" json:"rate_limit_burst"`
	Settings        map[string]interface{} `mapstructure:"settings" yaml:"settings" json:"settings"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	// MetricsAddr serves /metrics when set, e.g. ":9090"
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr" json:"metrics_addr"`
	// TraceFile receives exported spans when set
	TraceFile string `mapstructure:"trace_file" yaml:"trace_file" json:"trace_file"`
}

// NewDestinationConfig creates a DestinationConfig with defaults.
func NewDestinationConfig(name string) *DestinationConfig {
	return &DestinationConfig{
		Name:          name,
		DefaultSource: "default",
		Origin:        name,
		Input: InputConfig{
			MaxLineSize: 16 * 1024 * 1024,
		},
		Buffer: BufferConfig{
			MaxRecords: 1000,
			MaxBytes:   8 * 1024 * 1024,
		},
		Flush: FlushConfig{
			Timeout:         30 * time.Second,
			RetryAttempts:   5,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
			Jitter:          0.25,
			FinalTimeout:    2 * time.Minute,
		},
		Checkpoint: CheckpointConfig{
			FlushOnState: true,
		},
		Sink: SinkConfig{
			Settings: make(map[string]interface{}),
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
		Converters: make(map[string]map[string]interface{}),
	}
}

// Validate validates the configuration for correctness.
func (c *DestinationConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !c.DryRun && c.Sink.Type == "" {
		return fmt.Errorf("sink.type is required unless dry_run is set")
	}
	if c.Input.MaxLineSize <= 0 {
		return fmt.Errorf("input.max_line_size must be positive")
	}
	if c.Buffer.MaxRecords <= 0 {
		return fmt.Errorf("buffer.max_records must be positive")
	}
	if c.Buffer.MaxBytes <= 0 {
		return fmt.Errorf("buffer.max_bytes must be positive")
	}
	if c.Flush.Timeout <= 0 {
		return fmt.Errorf("flush.timeout must be positive")
	}
	if c.Flush.FinalTimeout <= 0 {
		return fmt.Errorf("flush.final_timeout must be positive")
	}
	if err := c.Flush.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if c.Sink.RateLimitPerSec < 0 {
		return fmt.Errorf("sink.rate_limit_per_sec cannot be negative")
	}
	return nil
}

// RetryPolicy builds the retry policy for destination writes.
func (f *FlushConfig) RetryPolicy() *retry.Policy {
	return &retry.Policy{
		MaxAttempts:     f.RetryAttempts,
		InitialDelay:    f.RetryDelay,
		MaxDelay:        f.MaxRetryDelay,
		Multiplier:      f.RetryMultiplier,
		RandomizeFactor: f.Jitter,
	}
}

// IsRateLimited returns true if sink rate limiting is enabled
func (s *SinkConfig) IsRateLimited() bool {
	return s.RateLimitPerSec > 0
}

// ConverterSettings returns the settings configured for source, never nil.
func (c *DestinationConfig) ConverterSettings(source string) map[string]interface{} {
	if s, ok := c.Converters[source]; ok && s != nil {
		return s
	}
	return map[string]interface{}{}
}
