package catalog

import (
	"sort"

	"github.com/ajitpratap0/graphsink/pkg/errors"
)

// Validator answers whether a stream is configured. It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	streams map[Identity]ConfiguredStream
	order   []Identity
}

// NewValidator checks every entry of cat and indexes it by identity. Any
// structural problem is a configuration error.
func NewValidator(cat *ConfiguredCatalog) (*Validator, error) {
	if cat == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "catalog is required")
	}

	v := &Validator{
		streams: make(map[Identity]ConfiguredStream, len(cat.Streams)),
		order:   make([]Identity, 0, len(cat.Streams)),
	}

	for i, cs := range cat.Streams {
		if cs.Stream.Name == "" {
			return nil, invalid(i, cs, "missing stream name")
		}
		if !validSyncMode(cs.SyncMode) {
			return nil, invalid(i, cs, "unknown sync_mode %q", cs.SyncMode)
		}
		if !validDestinationSyncMode(cs.DestinationSyncMode) {
			return nil, invalid(i, cs, "unknown destination_sync_mode %q", cs.DestinationSyncMode)
		}
		if cs.SyncMode == SyncModeIncremental && !cs.Stream.SourceDefinedCursor && len(cs.EffectiveCursorField()) == 0 {
			return nil, invalid(i, cs, "incremental sync requires a cursor_field")
		}
		if cs.DestinationSyncMode == DestinationSyncModeAppendDedup && len(cs.EffectivePrimaryKey()) == 0 {
			return nil, invalid(i, cs, "append_dedup requires a primary_key")
		}

		id := cs.Identity()
		if _, dup := v.streams[id]; dup {
			return nil, invalid(i, cs, "stream listed twice")
		}
		v.streams[id] = cs
		v.order = append(v.order, id)
	}

	return v, nil
}

// Lookup returns the configured stream for id. A record with a namespace
// that the catalog lists without one still matches by name.
func (v *Validator) Lookup(id Identity) (ConfiguredStream, bool) {
	if cs, ok := v.streams[id]; ok {
		return cs, true
	}
	if id.Namespace != "" {
		cs, ok := v.streams[Identity{Name: id.Name}]
		return cs, ok
	}
	return ConfiguredStream{}, false
}

// Streams lists the configured streams in catalog order.
func (v *Validator) Streams() []ConfiguredStream {
	out := make([]ConfiguredStream, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.streams[id])
	}
	return out
}

// Names returns the sorted stream names, for diagnostics.
func (v *Validator) Names() []string {
	names := make([]string, 0, len(v.order))
	for _, id := range v.order {
		names = append(names, id.String())
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured streams.
func (v *Validator) Len() int {
	return len(v.order)
}
