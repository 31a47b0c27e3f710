package logger

import (
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
)

// protocolCore writes each entry as a protocol LOG message. Structured
// fields are appended to the message as a JSON object so nothing reaches
// stderr.
type protocolCore struct {
	zapcore.LevelEnabler
	w      *protocol.Writer
	fields []zapcore.Field
}

// NewProtocolCore returns a zapcore.Core emitting LOG envelopes to w.
func NewProtocolCore(w *protocol.Writer, enab zapcore.LevelEnabler) zapcore.Core {
	return &protocolCore{LevelEnabler: enab, w: w}
}

func (c *protocolCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &protocolCore{LevelEnabler: c.LevelEnabler, w: c.w}
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *protocolCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *protocolCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	message := ent.Message
	if len(c.fields)+len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range c.fields {
			f.AddTo(enc)
		}
		for _, f := range fields {
			f.AddTo(enc)
		}
		if suffix, err := json.MarshalNoEscape(enc.Fields); err == nil {
			message += " " + string(suffix)
		}
	}
	return c.w.Log(ProtocolLevel(ent.Level), message)
}

func (c *protocolCore) Sync() error {
	return nil
}

// ProtocolLevel maps a zap level onto the protocol LOG levels.
func ProtocolLevel(l zapcore.Level) protocol.LogLevel {
	switch {
	case l >= zapcore.DPanicLevel:
		return protocol.LogLevelFatal
	case l == zapcore.ErrorLevel:
		return protocol.LogLevelError
	case l == zapcore.WarnLevel:
		return protocol.LogLevelWarn
	case l == zapcore.InfoLevel:
		return protocol.LogLevelInfo
	case l == zapcore.DebugLevel:
		return protocol.LogLevelDebug
	default:
		return protocol.LogLevelTrace
	}
}
