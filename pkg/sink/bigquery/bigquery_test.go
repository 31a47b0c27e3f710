package bigquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/graphsink/pkg/converter"
)

func TestRowSave(t *testing.T) {
	rec := converter.NewRecord("ims_User", converter.Fields{"uid": "U1", "source": "PagerDuty"}, converter.Fields{"name": "<Jane>"})
	at := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)

	values, insertID, err := row{model: "ims_User", record: rec, origin: "o", writtenAt: at}.Save()
	require.NoError(t, err)
	assert.Equal(t, "ims_User", values["model"])
	assert.Equal(t, rec.Key, values["key"])
	assert.JSONEq(t, `{"uid":"U1","source":"PagerDuty","name":"<Jane>"}`, values["record"].(string))
	assert.Equal(t, at, values["written_at"])
	assert.Equal(t, InsertID("ims_User", rec.Key), insertID)
}

func TestInsertIDStable(t *testing.T) {
	assert.Equal(t, InsertID("m", "k"), InsertID("m", "k"))
	assert.NotEqual(t, InsertID("m", "k"), InsertID("n", "k"))
	assert.NotEqual(t, InsertID("mk", ""), InsertID("m", "k"))
	assert.Len(t, InsertID("m", "k"), 32)
}
