package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/graphsink/pkg/converter"
)

func rec(model, id string) converter.DestinationRecord {
	return converter.NewRecord(model, converter.Fields{"id": id}, nil)
}

func TestBufferModelOrder(t *testing.T) {
	b := NewBuffer(100, 0)
	b.Add([]converter.DestinationRecord{rec("ims_Incident", "1"), rec("compute_Application", "a")})
	b.Add([]converter.DestinationRecord{rec("ims_Incident", "2")})
	b.Add([]converter.DestinationRecord{rec("ims_User", "u")})

	snap := b.Snapshot()
	require.Len(t, snap.Models, 3)
	assert.Equal(t, "ims_Incident", snap.Models[0].Model)
	assert.Equal(t, "compute_Application", snap.Models[1].Model)
	assert.Equal(t, "ims_User", snap.Models[2].Model)
	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, uint64(3), snap.Seq)
	assert.Equal(t, map[string]int{"ims_Incident": 2, "compute_Application": 1, "ims_User": 1}, snap.Counts())
}

func TestBufferCommitKeepsLaterRecords(t *testing.T) {
	b := NewBuffer(100, 0)
	b.Add([]converter.DestinationRecord{rec("a", "1")})
	snap := b.Snapshot()

	b.Add([]converter.DestinationRecord{rec("a", "2"), rec("b", "1")})
	b.Commit(snap)

	assert.Equal(t, 2, b.Len())
	next := b.Snapshot()
	require.Len(t, next.Models, 2)
	assert.Equal(t, `{"id":"2"}`, next.Models[0].Records[0].Key)
	assert.Equal(t, "b", next.Models[1].Model)
	assert.Equal(t, uint64(2), next.Seq)

	b.Commit(next)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot().Models)
}

func TestBufferBounds(t *testing.T) {
	b := NewBuffer(2, 0)
	one := []converter.DestinationRecord{rec("a", "1")}
	assert.True(t, b.Fits(one))
	b.Add(one)
	assert.False(t, b.Full())
	assert.True(t, b.Fits(one))
	assert.False(t, b.Fits([]converter.DestinationRecord{rec("a", "2"), rec("a", "3")}))
	b.Add(one)
	assert.True(t, b.Full())
}

func TestBufferOversizeRecordFitsEmptyBuffer(t *testing.T) {
	big := []converter.DestinationRecord{converter.NewRecord("a", converter.Fields{"id": "1"}, converter.Fields{"blob": string(make([]byte, 256))})}
	b := NewBuffer(0, 64)

	assert.True(t, b.Fits(big))
	b.Add(big)
	assert.True(t, b.Full())
	assert.False(t, b.Fits(big))
}
