package protocol

import (
	"io"
	"sync"

	"github.com/ajitpratap0/graphsink/pkg/json"
)

// Writer serialises messages as one JSON line each. It is safe for
// concurrent use; the logger and the checkpoint emitter share one Writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write emits msg followed by a newline as a single write.
func (w *Writer) Write(msg *Message) error {
	data, err := json.MarshalLine(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(data)
	return err
}

// Log emits a LOG message.
func (w *Writer) Log(level LogLevel, message string) error {
	return w.Write(NewLog(level, message))
}

// State emits a STATE message.
func (w *Writer) State(state *State) error {
	return w.Write(NewState(state))
}
