// Package catalog holds the configured streams of a run and validates
// records against them.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/json"
)

// SyncMode is how the source reads a stream
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// DestinationSyncMode is how the destination applies a stream's records
type DestinationSyncMode string

const (
	DestinationSyncModeAppend      DestinationSyncMode = "append"
	DestinationSyncModeOverwrite   DestinationSyncMode = "overwrite"
	DestinationSyncModeAppendDedup DestinationSyncMode = "append_dedup"
)

// Stream describes a stream as advertised by the source.
type Stream struct {
	Name                    string                 `json:"name" yaml:"name"`
	Namespace               string                 `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	JSONSchema              map[string]interface{} `json:"json_schema,omitempty" yaml:"json_schema,omitempty"`
	SupportedSyncModes      []SyncMode             `json:"supported_sync_modes,omitempty" yaml:"supported_sync_modes,omitempty"`
	SourceDefinedCursor     bool                   `json:"source_defined_cursor,omitempty" yaml:"source_defined_cursor,omitempty"`
	DefaultCursorField      []string               `json:"default_cursor_field,omitempty" yaml:"default_cursor_field,omitempty"`
	SourceDefinedPrimaryKey [][]string             `json:"source_defined_primary_key,omitempty" yaml:"source_defined_primary_key,omitempty"`
}

// ConfiguredStream is a catalog entry for one run.
type ConfiguredStream struct {
	Stream              Stream              `json:"stream" yaml:"stream"`
	SyncMode            SyncMode            `json:"sync_mode" yaml:"sync_mode"`
	DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode" yaml:"destination_sync_mode"`
	PrimaryKey          [][]string          `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	CursorField         []string            `json:"cursor_field,omitempty" yaml:"cursor_field,omitempty"`
}

// ConfiguredCatalog is the list of streams a run accepts.
type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams" yaml:"streams"`
}

// Identity identifies a stream by name and optional namespace.
type Identity struct {
	Name      string
	Namespace string
}

// String renders the identity as namespace.name, or name alone.
func (id Identity) String() string {
	if id.Namespace == "" {
		return id.Name
	}
	return id.Namespace + "." + id.Name
}

// Identity returns the identity of a configured stream.
func (cs ConfiguredStream) Identity() Identity {
	return Identity{Name: cs.Stream.Name, Namespace: cs.Stream.Namespace}
}

// EffectivePrimaryKey returns the configured key, falling back to the
// source-defined one.
func (cs ConfiguredStream) EffectivePrimaryKey() [][]string {
	if len(cs.PrimaryKey) > 0 {
		return cs.PrimaryKey
	}
	return cs.Stream.SourceDefinedPrimaryKey
}

// EffectiveCursorField returns the configured cursor, falling back to the
// stream default.
func (cs ConfiguredStream) EffectiveCursorField() []string {
	if len(cs.CursorField) > 0 {
		return cs.CursorField
	}
	return cs.Stream.DefaultCursorField
}

// Load reads a catalog from a JSON or YAML file, chosen by extension.
func Load(path string) (*ConfiguredCatalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "read catalog").
			WithDetail("path", path)
	}

	var cat ConfiguredCatalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cat)
	default:
		err = json.Unmarshal(data, &cat)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "parse catalog").
			WithDetail("path", path)
	}
	return &cat, nil
}

func validSyncMode(m SyncMode) bool {
	return m == SyncModeFullRefresh || m == SyncModeIncremental
}

func validDestinationSyncMode(m DestinationSyncMode) bool {
	switch m {
	case DestinationSyncModeAppend, DestinationSyncModeOverwrite, DestinationSyncModeAppendDedup:
		return true
	}
	return false
}

func invalid(i int, cs ConfiguredStream, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeConfig, "catalog stream %d (%s): %s", i, cs.Identity(), fmt.Sprintf(format, args...)).
		WithDetail("index", i).
		WithDetail("stream", cs.Stream.Name)
}
