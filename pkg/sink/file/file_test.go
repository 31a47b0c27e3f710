package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/graphsink/pkg/compression"
	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

func batch(id string) *sink.Batch {
	return &sink.Batch{
		ID:     id,
		Origin: "mytestsource",
		Models: []sink.ModelBatch{
			{Model: "ims_User", Records: []converter.DestinationRecord{
				converter.NewRecord("ims_User", converter.Fields{"uid": "U1", "source": "PagerDuty"}, converter.Fields{"name": "Jane"}),
			}},
			{Model: "ims_Incident", Records: []converter.DestinationRecord{
				converter.NewRecord("ims_Incident", converter.Fields{"uid": "P1", "source": "PagerDuty"}, nil),
				converter.NewRecord("ims_Incident", converter.Fields{"uid": "P2", "source": "PagerDuty"}, nil),
			}},
		},
	}
}

func TestFileSinkWritesObjectPerModel(t *testing.T) {
	dir := t.TempDir()
	s, err := sink.Create(context.Background(), "file", sink.Settings{
		"path":        dir,
		"prefix":      "graph",
		"compression": "gzip",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.Write(context.Background(), batch("b1")))
	// A retried batch overwrites the same objects.
	require.NoError(t, s.Write(context.Background(), batch("b1")))

	files, err := filepath.Glob(filepath.Join(dir, "graph", "*", "*"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	data, err := os.ReadFile(filepath.Join(dir, "graph", "ims_Incident", "b1.jsonl.gz"))
	require.NoError(t, err)
	ents, err := sink.Encoding{Format: sink.FormatJSONL, Compression: compression.Gzip}.Decode(data)
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, "P2", ents[1].Record["uid"])
}

func TestFileSinkRequiresPath(t *testing.T) {
	_, err := New(context.Background(), sink.Settings{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&Store{Dir: t.TempDir()}).Put(ctx, "a/b.jsonl", []byte("x"), "", "")
	assert.ErrorIs(t, err, context.Canceled)
}
