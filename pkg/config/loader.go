package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/graphsink/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. GRAPHSINK_BUFFER_MAX_RECORDS.
const EnvPrefix = "GRAPHSINK"

// Override adjusts a decoded configuration before it is validated, e.g. to
// apply command line flags.
type Override func(*DestinationConfig)

// Load reads a JSON or YAML configuration file (by extension), substitutes
// ${VAR} references, applies GRAPHSINK_ environment overrides on top of the
// defaults, then the overrides, and validates the result. Failures are
// configuration errors.
func Load(filePath string, overrides ...Override) (*DestinationConfig, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	configType := "yaml"
	if strings.EqualFold(filepath.Ext(filePath), ".json") {
		configType = "json"
	}

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return Parse([]byte(substituteEnvVars(string(data))), configType, name, overrides...)
}

// Parse decodes configuration content of the given type ("json" or "yaml").
func Parse(content []byte, configType, defaultName string, overrides ...Override) (*DestinationConfig, error) {
	v := viper.New()
	v.SetConfigType(configType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, NewDestinationConfig(defaultName))

	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse "+configType+" config")
	}

	cfg := NewDestinationConfig(defaultName)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}
	if cfg.Sink.Settings == nil {
		cfg.Sink.Settings = make(map[string]interface{})
	}
	if cfg.Converters == nil {
		cfg.Converters = make(map[string]map[string]interface{})
	}

	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid config")
	}
	return cfg, nil
}

// Save writes a configuration as YAML.
func Save(filePath string, cfg *DestinationConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *DestinationConfig) {
	v.SetDefault("name", d.Name)
	v.SetDefault("dry_run", d.DryRun)
	v.SetDefault("default_source", d.DefaultSource)
	v.SetDefault("origin", d.Origin)
	v.SetDefault("input.max_line_size", d.Input.MaxLineSize)
	v.SetDefault("buffer.max_records", d.Buffer.MaxRecords)
	v.SetDefault("buffer.max_bytes", d.Buffer.MaxBytes)
	v.SetDefault("flush.timeout", d.Flush.Timeout)
	v.SetDefault("flush.retry_attempts", d.Flush.RetryAttempts)
	v.SetDefault("flush.retry_delay", d.Flush.RetryDelay)
	v.SetDefault("flush.retry_multiplier", d.Flush.RetryMultiplier)
	v.SetDefault("flush.max_retry_delay", d.Flush.MaxRetryDelay)
	v.SetDefault("flush.jitter", d.Flush.Jitter)
	v.SetDefault("flush.final_timeout", d.Flush.FinalTimeout)
	v.SetDefault("checkpoint.flush_on_state", d.Checkpoint.FlushOnState)
	v.SetDefault("checkpoint.state_store_path", d.Checkpoint.StateStorePath)
	v.SetDefault("sink.type", d.Sink.Type)
	v.SetDefault("sink.rate_limit_per_sec", d.Sink.RateLimitPerSec)
	v.SetDefault("sink.rate_limit_burst", d.Sink.RateLimitBurst)
	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.metrics_addr", d.Observability.MetricsAddr)
	v.SetDefault("observability.trace_file", d.Observability.TraceFile)
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
