// Package protocol defines the newline delimited connector protocol spoken on
// the destination's stdin and stdout.
//
// Each line is one JSON envelope {"type": ..., "<body>": {...}} where the body
// key depends on the type. The package decodes envelopes into Message values
// and serialises LOG and STATE messages back onto the output stream.
package protocol

import (
	"github.com/ajitpratap0/graphsink/pkg/json"
)

// MessageType tags the body carried by a Message
type MessageType string

const (
	TypeRecord           MessageType = "RECORD"
	TypeState            MessageType = "STATE"
	TypeLog              MessageType = "LOG"
	TypeTrace            MessageType = "TRACE"
	TypeConnectionStatus MessageType = "CONNECTION_STATUS"
)

// LogLevel is the severity of a LOG message
type LogLevel string

const (
	LogLevelFatal LogLevel = "FATAL"
	LogLevelError LogLevel = "ERROR"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelTrace LogLevel = "TRACE"
)

// Message is a tagged union: exactly the body matching Type is set.
type Message struct {
	Type             MessageType       `json:"type"`
	Record           *Record           `json:"record,omitempty"`
	State            *State            `json:"state,omitempty"`
	Log              *Log              `json:"log,omitempty"`
	Trace            *Trace            `json:"trace,omitempty"`
	ConnectionStatus *ConnectionStatus `json:"connectionStatus,omitempty"`
}

// Record is one unit of extracted data.
type Record struct {
	Stream    string                 `json:"stream"`
	Namespace string                 `json:"namespace,omitempty"`
	EmittedAt int64                  `json:"emitted_at"`
	Data      map[string]interface{} `json:"data"`
}

// StateType distinguishes the legacy and per-stream state envelopes.
type StateType string

const (
	StateTypeLegacy StateType = "LEGACY"
	StateTypeStream StateType = "STREAM"
	StateTypeGlobal StateType = "GLOBAL"
)

// State is an opaque checkpoint. Data holds the legacy blob verbatim; Stream
// and Global carry the per-stream and global forms.
type State struct {
	Type   StateType       `json:"type,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Stream *StreamState    `json:"stream,omitempty"`
	Global *GlobalState    `json:"global,omitempty"`
}

// StreamDescriptor identifies a stream in state envelopes.
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// StreamState is the cursor position of a single stream.
type StreamState struct {
	StreamDescriptor StreamDescriptor `json:"stream_descriptor"`
	StreamState      json.RawMessage  `json:"stream_state,omitempty"`
}

// GlobalState is shared state plus the per-stream positions it covers.
type GlobalState struct {
	SharedState  json.RawMessage `json:"shared_state,omitempty"`
	StreamStates []StreamState   `json:"stream_states,omitempty"`
}

// Streams returns the stream names whose cursor this state carries.
func (s *State) Streams() []string {
	switch {
	case s.Stream != nil:
		return []string{s.Stream.StreamDescriptor.Name}
	case s.Global != nil:
		names := make([]string, 0, len(s.Global.StreamStates))
		for _, ss := range s.Global.StreamStates {
			names = append(names, ss.StreamDescriptor.Name)
		}
		return names
	}
	return nil
}

// Empty reports whether the state carries no checkpoint at all.
func (s *State) Empty() bool {
	return len(s.Data) == 0 && s.Stream == nil && s.Global == nil
}

// Log is a human readable message.
type Log struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// TraceType is the kind of a TRACE message
type TraceType string

const (
	TraceTypeError    TraceType = "ERROR"
	TraceTypeEstimate TraceType = "ESTIMATE"
)

// Trace reports structured diagnostics from the upstream connector.
type Trace struct {
	Type      TraceType   `json:"type"`
	EmittedAt float64     `json:"emitted_at"`
	Error     *TraceError `json:"error,omitempty"`
}

// TraceError is the error body of a TRACE message.
type TraceError struct {
	Message         string `json:"message"`
	InternalMessage string `json:"internal_message,omitempty"`
	StackTrace      string `json:"stack_trace,omitempty"`
	FailureType     string `json:"failure_type,omitempty"`
}

// ConnectionStatus is the result of a connection check.
type ConnectionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewLog builds a LOG message.
func NewLog(level LogLevel, message string) *Message {
	return &Message{Type: TypeLog, Log: &Log{Level: level, Message: message}}
}

// NewState wraps a state body in a STATE message.
func NewState(state *State) *Message {
	return &Message{Type: TypeState, State: state}
}
