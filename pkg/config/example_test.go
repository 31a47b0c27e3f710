package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/graphsink/pkg/config"
)

// ExampleNewDestinationConfig shows the defaults of a destination.
func ExampleNewDestinationConfig() {
	cfg := config.NewDestinationConfig("faros")

	fmt.Printf("Max records: %d\n", cfg.Buffer.MaxRecords)
	fmt.Printf("Flush timeout: %s\n", cfg.Flush.Timeout)
	fmt.Printf("Retry attempts: %d\n", cfg.Flush.RetryAttempts)
	fmt.Printf("Flush on state: %t\n", cfg.Checkpoint.FlushOnState)

	// Output:
	// Max records: 1000
	// Flush timeout: 30s
	// Retry attempts: 5
	// Flush on state: true
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://localhost/graph")
	path := writeFile(t, "dest.yaml", `
name: faros
buffer:
  max_records: 50
flush:
  timeout: 5s
  retry_attempts: 2
sink:
  type: postgres
  settings:
    dsn: ${TEST_PG_DSN}
converters:
  pagerduty:
    default_severity: Sev3
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "faros", cfg.Name)
	assert.Equal(t, 50, cfg.Buffer.MaxRecords)
	assert.Equal(t, int64(8*1024*1024), cfg.Buffer.MaxBytes)
	assert.Equal(t, 5*time.Second, cfg.Flush.Timeout)
	assert.Equal(t, 2, cfg.Flush.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Flush.RetryDelay)
	assert.Equal(t, "postgres", cfg.Sink.Type)
	assert.Equal(t, "postgres://localhost/graph", cfg.Sink.Settings["dsn"])
	assert.Equal(t, "Sev3", cfg.ConverterSettings("pagerduty")["default_severity"])
	assert.Empty(t, cfg.ConverterSettings("jira"))
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	t.Setenv("GRAPHSINK_BUFFER_MAX_RECORDS", "7")
	path := writeFile(t, "dest.json", `{"dry_run": true, "checkpoint": {"flush_on_state": false}}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dest", cfg.Name)
	assert.True(t, cfg.DryRun)
	assert.False(t, cfg.Checkpoint.FlushOnState)
	assert.Equal(t, 7, cfg.Buffer.MaxRecords)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.DestinationConfig)
		wantErr string
	}{
		{"dry run needs no sink", func(c *config.DestinationConfig) { c.DryRun = true }, ""},
		{"sink required", func(c *config.DestinationConfig) {}, "sink.type is required"},
		{"max records", func(c *config.DestinationConfig) { c.DryRun = true; c.Buffer.MaxRecords = 0 }, "buffer.max_records"},
		{"max bytes", func(c *config.DestinationConfig) { c.DryRun = true; c.Buffer.MaxBytes = -1 }, "buffer.max_bytes"},
		{"attempts", func(c *config.DestinationConfig) { c.DryRun = true; c.Flush.RetryAttempts = 0 }, "max attempts"},
		{"jitter", func(c *config.DestinationConfig) { c.DryRun = true; c.Flush.Jitter = 3 }, "randomize factor"},
		{"rate limit", func(c *config.DestinationConfig) { c.Sink.Type = "file"; c.Sink.RateLimitPerSec = -1 }, "rate_limit_per_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDestinationConfig("faros")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := config.NewDestinationConfig("faros")
	cfg.Sink.Type = "sqlite"
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, config.Save(path, cfg))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Sink.Type)
	assert.Equal(t, cfg.Buffer, loaded.Buffer)
}
