package converter

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/catalog"
	"github.com/ajitpratap0/graphsink/pkg/errors"
)

// Registry maps stream keys to converters. It is populated at startup and
// read-only afterwards.
type Registry struct {
	converters    map[StreamKey]Converter
	defaultSource string
	mu            sync.RWMutex
	logger        *zap.Logger
}

// Info describes a registered converter.
type Info struct {
	Source string `json:"source"`
	Stream string `json:"stream"`
}

// NewRegistry creates an empty registry. defaultSource resolves stream
// names without a source prefix.
func NewRegistry(defaultSource string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		converters:    make(map[StreamKey]Converter),
		defaultSource: defaultSource,
		logger:        logger.With(zap.String("component", "converter_registry")),
	}
}

// Register adds converters. A second converter for the same stream key is a
// configuration error and nothing from the call is registered.
func (r *Registry) Register(converters ...Converter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[StreamKey]Converter, len(converters))
	for _, c := range converters {
		key := StreamKey{Source: c.Source(), Name: c.Stream()}
		if _, exists := r.converters[key]; exists {
			return errors.Newf(errors.ErrorTypeConfig, "converter for stream %s already registered", key)
		}
		if _, exists := pending[key]; exists {
			return errors.Newf(errors.ErrorTypeConfig, "converter for stream %s already registered", key)
		}
		pending[key] = c
	}

	for key, c := range pending {
		r.converters[key] = c
		r.logger.Debug("converter registered", zap.Stringer("stream", key))
	}
	return nil
}

// Lookup returns the converter handling records of id.
func (r *Registry) Lookup(id StreamIdentity) (Converter, bool) {
	_, key := ParseStreamName(id.Name, r.defaultSource)

	r.mu.RLock()
	c, ok := r.converters[key]
	r.mu.RUnlock()

	if !ok || !c.Accepts(id) {
		return nil, false
	}
	return c, true
}

// Check returns the names of configured streams without a converter.
func (r *Registry) Check(v *catalog.Validator) []string {
	var missing []string
	for _, cs := range v.Streams() {
		if _, ok := r.Lookup(cs.Identity()); !ok {
			missing = append(missing, cs.Identity().String())
		}
	}
	return missing
}

// List returns the registered converters sorted by source and stream.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.converters))
	for key := range r.converters {
		out = append(out, Info{Source: key.Source, Stream: key.Name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Stream < out[j].Stream
	})
	return out
}

// Len returns the number of registered converters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.converters)
}
