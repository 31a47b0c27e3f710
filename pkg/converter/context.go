package converter

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/catalog"
)

// Memo remembers entities already emitted during a run. It is shared by all
// stream contexts of a run.
type Memo struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewMemo creates an empty Memo.
func NewMemo() *Memo {
	return &Memo{seen: make(map[string]map[string]struct{})}
}

// Seen reports whether (model, key) was marked before and marks it.
func (m *Memo) Seen(model, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.seen[model]
	if !ok {
		keys = make(map[string]struct{})
		m.seen[model] = keys
	}
	if _, ok := keys[key]; ok {
		return true
	}
	keys[key] = struct{}{}
	return false
}

// StreamContext is handed to a converter with every record of a stream.
type StreamContext struct {
	Stream   catalog.ConfiguredStream
	Key      StreamKey
	Origin   string
	Logger   *zap.Logger
	Settings map[string]interface{}

	memo *Memo
}

// NewStreamContext creates a StreamContext. A nil memo gets a private one.
func NewStreamContext(stream catalog.ConfiguredStream, key StreamKey, origin string, settings map[string]interface{}, memo *Memo, logger *zap.Logger) *StreamContext {
	if memo == nil {
		memo = NewMemo()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return &StreamContext{
		Stream:   stream,
		Key:      key,
		Origin:   origin,
		Logger:   logger,
		Settings: settings,
		memo:     memo,
	}
}

// Seen reports whether the entity was already emitted in this run and
// marks it as emitted.
func (sc *StreamContext) Seen(model, key string) bool {
	return sc.memo.Seen(model, key)
}

// Setting returns a string setting, or def when absent.
func (sc *StreamContext) Setting(name, def string) string {
	if v, ok := sc.Settings[name].(string); ok && v != "" {
		return v
	}
	return def
}
