package sink

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/errors"
)

// Factory creates a sink from its settings.
type Factory func(ctx context.Context, settings Settings, logger *zap.Logger) (Sink, error)

// Registry manages sink factories by type name.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates an empty sink registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a type twice is a configuration error.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "sink %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create builds a sink of the named type.
func (r *Registry) Create(ctx context.Context, name string, settings Settings, logger *zap.Logger) (Sink, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "sink %s not found", name).
			WithDetail("available", r.List())
	}
	if settings == nil {
		settings = Settings{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := factory(ctx, settings, logger.With(zap.String("sink", name)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create sink "+name)
	}
	return s, nil
}

// List returns registered sink types, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a factory to the global registry. Sinks call it from init
// and a duplicate is a programming error.
func Register(name string, factory Factory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// Create builds a sink from the global registry.
func Create(ctx context.Context, name string, settings Settings, logger *zap.Logger) (Sink, error) {
	return globalRegistry.Create(ctx, name, settings, logger)
}

// List returns the sink types in the global registry.
func List() []string {
	return globalRegistry.List()
}
