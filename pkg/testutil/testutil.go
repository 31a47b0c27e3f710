// Package testutil holds helpers shared by graphsink tests: a protocol
// logger capturing its output, a failure injecting sink and an integration
// suite base.
package testutil

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/logger"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

// Output captures protocol messages written during a test.
type Output struct {
	Buffer *bytes.Buffer
	Writer *protocol.Writer
	Logger *zap.Logger
}

// NewOutput creates a writer over a buffer and a protocol logger at level.
func NewOutput(t testing.TB, level string) *Output {
	t.Helper()
	buf := &bytes.Buffer{}
	w := protocol.NewWriter(buf)
	log, err := logger.New(logger.Config{Level: level, Encoding: logger.EncodingProtocol, Writer: w})
	require.NoError(t, err)
	return &Output{Buffer: buf, Writer: w, Logger: log}
}

// String returns everything written so far.
func (o *Output) String() string {
	return o.Buffer.String()
}

// LogLine renders msg as the INFO LOG line the protocol logger writes.
func LogLine(t testing.TB, msg string) string {
	t.Helper()
	data, err := json.MarshalNoEscape(protocol.NewLog(protocol.LogLevelInfo, msg))
	require.NoError(t, err)
	return string(data)
}

// FlakySink fails its first Failures writes, or every write when Failures
// is negative, and records what it was given.
type FlakySink struct {
	Failures int
	// Err is returned by failing writes instead of a connection error.
	Err error
	// Block makes failing writes wait for their context to be done.
	Block bool
	// OnWrite runs on every call before the outcome is decided.
	OnWrite func(*sink.Batch)

	mu      sync.Mutex
	calls   int
	ids     []string
	written map[string]int
	closed  bool
}

func (s *FlakySink) Write(ctx context.Context, b *sink.Batch) error {
	s.mu.Lock()
	s.calls++
	s.ids = append(s.ids, b.ID)
	if s.OnWrite != nil {
		s.OnWrite(b)
	}
	fail := s.Failures < 0 || s.calls <= s.Failures
	s.mu.Unlock()

	if fail && s.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fail {
		if s.Err != nil {
			return s.Err
		}
		return errors.New(errors.ErrorTypeConnection, "connection refused")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written == nil {
		s.written = make(map[string]int)
	}
	for model, n := range b.Counts() {
		s.written[model] += n
	}
	return nil
}

func (s *FlakySink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns the number of Write calls.
func (s *FlakySink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// BatchIDs returns the batch IDs in call order.
func (s *FlakySink) BatchIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// Written returns the per model counts of successful writes.
func (s *FlakySink) Written() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.written))
	for k, v := range s.written {
		out[k] = v
	}
	return out
}

// Closed reports whether Close was called.
func (s *FlakySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
