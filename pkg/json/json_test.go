package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsMapKeys(t *testing.T) {
	data, err := Marshal(map[string]int{"users": 1, "incidents": 3, "incident_log_entries": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"incident_log_entries":3,"incidents":3,"users":1}`, string(data))
}

func TestMarshalNoEscape(t *testing.T) {
	data, err := MarshalNoEscape(map[string]string{"message": "a <b> & c"})
	require.NoError(t, err)
	assert.Equal(t, `{"message":"a <b> & c"}`, string(data))
}

func TestMarshalLines(t *testing.T) {
	data, err := MarshalLines([]map[string]int{{"a": 1}, {"b": 2}})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(data))

	line, err := MarshalLine(map[string]bool{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, "{\"ok\":true}\n", string(line))

	line, err = MarshalLine(map[string]string{"b": "x<y>", "a": "&"})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"&\",\"b\":\"x<y>\"}\n", string(line))
}

func TestPutBufferSkipsLargeBuffers(t *testing.T) {
	buf := GetBuffer()
	buf.Grow(2 * 1024 * 1024)
	PutBuffer(buf)

	next := GetBuffer()
	assert.Equal(t, 0, next.Len())
}
