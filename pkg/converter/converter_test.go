package converter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/graphsink/pkg/catalog"
	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
)

type stubConverter struct {
	Base
}

func (stubConverter) Convert(context.Context, *protocol.Record, *StreamContext) ([]DestinationRecord, error) {
	return nil, nil
}

func newStub(source, stream string) Converter {
	return stubConverter{NewBase(source, stream)}
}

func TestParseStreamName(t *testing.T) {
	tests := []struct {
		in         string
		wantOrigin string
		wantKey    StreamKey
	}{
		{"mytestsource__pagerduty__incidents", "mytestsource", StreamKey{"pagerduty", "incidents"}},
		{"PagerDuty__users", "", StreamKey{"pagerduty", "users"}},
		{"users", "", StreamKey{"default", "users"}},
		{"o__jira__issue__comments", "o", StreamKey{"jira", "issue__comments"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			origin, key := ParseStreamName(tt.in, "default")
			assert.Equal(t, tt.wantOrigin, origin)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestBaseAccepts(t *testing.T) {
	b := NewBase("pagerduty", "incidents")
	assert.True(t, b.Accepts(StreamIdentity{Name: "src__pagerduty__incidents"}))
	assert.True(t, b.Accepts(StreamIdentity{Name: "incidents"}))
	assert.False(t, b.Accepts(StreamIdentity{Name: "src__jira__incidents"}))
	assert.False(t, b.Accepts(StreamIdentity{Name: "src__pagerduty__users"}))
}

func TestNewRecordCanonicalKey(t *testing.T) {
	a := NewRecord("ims_Incident", Fields{"uid": "P1", "source": "PagerDuty"}, Fields{"title": "down", "url": nil})
	b := NewRecord("ims_Incident", Fields{"source": "PagerDuty", "uid": "P1"}, Fields{"title": "changed"})

	assert.Equal(t, `{"source":"PagerDuty","uid":"P1"}`, a.Key)
	assert.Equal(t, a.Key, b.Key)
	assert.Equal(t, "P1", a.Record["uid"])
	assert.NotContains(t, a.Record, "url")
	assert.Greater(t, a.EncodedSize(), len(a.Key))
}

func TestRefIsCopy(t *testing.T) {
	key := Fields{"uid": "U1"}
	ref := Ref(key)
	key["uid"] = "U2"
	assert.Equal(t, "U1", ref["uid"])
}

func TestMemo(t *testing.T) {
	sc := NewStreamContext(catalog.ConfiguredStream{}, StreamKey{}, "", nil, nil, nil)
	assert.False(t, sc.Seen("compute_Application", `{"name":"web"}`))
	assert.True(t, sc.Seen("compute_Application", `{"name":"web"}`))
	assert.False(t, sc.Seen("ims_User", `{"name":"web"}`))

	memo := NewMemo()
	first := NewStreamContext(catalog.ConfiguredStream{}, StreamKey{Name: "a"}, "", nil, memo, nil)
	second := NewStreamContext(catalog.ConfiguredStream{}, StreamKey{Name: "b"}, "", nil, memo, nil)
	assert.False(t, first.Seen("m", "k"))
	assert.True(t, second.Seen("m", "k"), "memo is shared across streams of a run")
}

func TestSetting(t *testing.T) {
	sc := NewStreamContext(catalog.ConfiguredStream{}, StreamKey{}, "", map[string]interface{}{"tz": "UTC", "n": 3}, nil, nil)
	assert.Equal(t, "UTC", sc.Setting("tz", "local"))
	assert.Equal(t, "x", sc.Setting("n", "x"))
	assert.Equal(t, "d", sc.Setting("missing", "d"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry("pagerduty", zaptest.NewLogger(t))
	require.NoError(t, r.Register(newStub("pagerduty", "incidents"), newStub("pagerduty", "users")))

	c, ok := r.Lookup(StreamIdentity{Name: "mytestsource__pagerduty__incidents"})
	require.True(t, ok)
	assert.Equal(t, "incidents", c.Stream())

	_, ok = r.Lookup(StreamIdentity{Name: "users"})
	assert.True(t, ok, "unprefixed names resolve through the default source")

	_, ok = r.Lookup(StreamIdentity{Name: "mytestsource__pagerduty__teams"})
	assert.False(t, ok)

	assert.Equal(t, []Info{{"pagerduty", "incidents"}, {"pagerduty", "users"}}, r.List())
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry("", nil)
	require.NoError(t, r.Register(newStub("pagerduty", "incidents")))

	err := r.Register(newStub("jira", "issues"), newStub("PagerDuty", "incidents"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Equal(t, 1, r.Len(), "failed call registers nothing")

	err = r.Register(newStub("jira", "issues"), newStub("jira", "issues"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegistryCheck(t *testing.T) {
	v, err := catalog.NewValidator(&catalog.ConfiguredCatalog{Streams: []catalog.ConfiguredStream{
		{Stream: catalog.Stream{Name: "src__pagerduty__incidents"}, SyncMode: catalog.SyncModeFullRefresh, DestinationSyncMode: catalog.DestinationSyncModeAppend},
		{Stream: catalog.Stream{Name: "src__pagerduty__teams"}, SyncMode: catalog.SyncModeFullRefresh, DestinationSyncMode: catalog.DestinationSyncModeAppend},
	}})
	require.NoError(t, err)

	r := NewRegistry("", nil)
	require.NoError(t, r.Register(newStub("pagerduty", "incidents")))
	assert.Equal(t, []string{"src__pagerduty__teams"}, r.Check(v))
}
