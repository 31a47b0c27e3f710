package protocol

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/graphsink/pkg/errors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    MessageType
		wantErr string
	}{
		{"record", `{"type":"RECORD","record":{"stream":"users","emitted_at":1,"data":{"id":"U1"}}}`, TypeRecord, ""},
		{"legacy state", `{"type":"STATE","state":{"data":{"cursor":"2021-01-01"}}}`, TypeState, ""},
		{"log", `{"type":"LOG","log":{"level":"INFO","message":"hi"}}`, TypeLog, ""},
		{"trace", `{"type":"TRACE","trace":{"type":"ERROR","emitted_at":1,"error":{"message":"x"}}}`, TypeTrace, ""},
		{"status", `{"type":"CONNECTION_STATUS","connectionStatus":{"status":"SUCCEEDED"}}`, TypeConnectionStatus, ""},
		{"empty", "   ", "", "empty line"},
		{"malformed", `{"type":"RECORD",`, "", "invalid message JSON"},
		{"unknown type", `{"type":"SPEC","spec":{}}`, "", `unknown message type "SPEC"`},
		{"no type", `{"record":{}}`, "", "message without type"},
		{"missing body", `{"type":"STATE"}`, "", "STATE message without body"},
		{"record without stream", `{"type":"RECORD","record":{"data":{}}}`, "", "record without stream"},
		{"not an object", `[1,2]`, "", "invalid message JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.line))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeDecode))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type)
		})
	}
}

func TestDecodeRecordFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"RECORD","record":{"stream":"src__incidents","namespace":"pd","emitted_at":1620000000000,"data":{"id":"P1","urgency":"high"}}}`))
	require.NoError(t, err)
	rec := msg.Record
	assert.Equal(t, "src__incidents", rec.Stream)
	assert.Equal(t, "pd", rec.Namespace)
	assert.Equal(t, int64(1620000000000), rec.EmittedAt)
	assert.Equal(t, "high", rec.Data["urgency"])
}

func TestDecodeStateKeepsBlobVerbatim(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"STATE","state":{"data":{"b":2,"a":{"x":[1,2]}}}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2,"a":{"x":[1,2]}}`, string(msg.State.Data))
	assert.False(t, msg.State.Empty())

	msg, err = Decode([]byte(`{"type":"STATE","state":{"type":"STREAM","stream":{"stream_descriptor":{"name":"incidents"},"stream_state":{"cursor":5}}}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"incidents"}, msg.State.Streams())
}

func TestReaderSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"RECORD","record":{"stream":"users","data":{"id":"1"}}}`,
		`not json`,
		``,
		`{"type":"BOGUS"}`,
		`{"type":"STATE","state":{"data":{"n":1}}}`,
	}, "\n")

	r := NewReader(strings.NewReader(input), zaptest.NewLogger(t))
	var types []MessageType
	for r.Next() {
		types = append(types, r.Message().Type)
	}
	require.NoError(t, r.Err())
	assert.Equal(t, []MessageType{TypeRecord, TypeState}, types)
	assert.Equal(t, 2, r.Skipped())
	assert.Equal(t, 5, r.Line())

	// Exhausted sequences stay exhausted.
	assert.False(t, r.Next())
	assert.Nil(t, r.Message())
}

func TestReaderEmptyInput(t *testing.T) {
	r := NewReader(strings.NewReader(""), nil)
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
	assert.Equal(t, 0, r.Line())
}

func TestReaderLongLines(t *testing.T) {
	big := `{"type":"RECORD","record":{"stream":"s","data":{"blob":"` + strings.Repeat("x", 200*1024) + `"}}}`
	input := big + "\n" + big + "\n" + `{"type":"LOG","log":{"level":"INFO","message":"ok"}}` + "\n"

	r := NewReader(strings.NewReader(input), zaptest.NewLogger(t))
	count := 0
	for r.Next() {
		count++
	}
	assert.Equal(t, 3, count)

	r = NewReader(strings.NewReader(input), zaptest.NewLogger(t), WithMaxLineSize(100*1024))
	var types []MessageType
	for r.Next() {
		types = append(types, r.Message().Type)
	}
	assert.Equal(t, []MessageType{TypeLog}, types)
	assert.Equal(t, 2, r.Skipped())
}

func TestWriterEnvelopeFormat(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Log(LogLevelInfo, `Processed records by stream: {"a__b__c":1}`))
	assert.Equal(t,
		`{"type":"LOG","log":{"level":"INFO","message":"Processed records by stream: {\"a__b__c\":1}"}}`+"\n",
		buf.String())

	buf.Reset()
	msg, err := Decode([]byte(`{"type":"STATE","state":{"data":{"cursor":"2021-01-01T00:00:00Z"}}}`))
	require.NoError(t, err)
	require.NoError(t, w.State(msg.State))
	assert.Equal(t, `{"type":"STATE","state":{"data":{"cursor":"2021-01-01T00:00:00Z"}}}`+"\n", buf.String())
}

func TestWriterKeepsHTMLCharacters(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Log(LogLevelInfo, `Processed records by stream: {"a&b<c>":1}`))
	assert.Equal(t,
		`{"type":"LOG","log":{"level":"INFO","message":"Processed records by stream: {\"a&b<c>\":1}"}}`+"\n",
		buf.String())
}

func TestWriterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Log(LogLevelDebug, "line"))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
	for _, l := range lines {
		_, err := Decode([]byte(l))
		assert.NoError(t, err)
	}
}
