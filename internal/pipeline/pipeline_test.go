package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/graphsink/pkg/catalog"
	"github.com/ajitpratap0/graphsink/pkg/config"
	"github.com/ajitpratap0/graphsink/pkg/converter"
	"github.com/ajitpratap0/graphsink/pkg/converter/pagerduty"
	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/protocol"
	"github.com/ajitpratap0/graphsink/pkg/sink"
	"github.com/ajitpratap0/graphsink/pkg/statestore"
	"github.com/ajitpratap0/graphsink/pkg/testutil"
)

const streamPrefix = "mytestsource__pagerduty__"

func TestWritePagerDutyDryRun(t *testing.T) {
	cat, err := catalog.Load("../../pkg/catalog/testdata/pagerduty_catalog.json")
	require.NoError(t, err)
	validator, err := catalog.NewValidator(cat)
	require.NoError(t, err)

	registry := converter.NewRegistry("default", zaptest.NewLogger(t))
	require.NoError(t, registry.Register(pagerduty.Converters()...))

	in, err := os.Open("../../pkg/converter/pagerduty/testdata/all_streams.log")
	require.NoError(t, err)
	defer in.Close()

	out := testutil.NewOutput(t, "info")

	cfg := config.NewDestinationConfig("pagerduty-dry-run")
	cfg.DryRun = true
	dry := sink.NewDry()

	runner, err := New(Options{Config: cfg, Catalog: validator, Registry: registry, Sink: dry, Writer: out.Writer, Logger: out.Logger})
	require.NoError(t, err)
	require.NoError(t, runner.Write(context.Background(), in))

	processed := map[string]int{
		streamPrefix + "incident_log_entries": 3,
		streamPrefix + "incidents":            3,
		streamPrefix + "users":                1,
	}
	written := map[string]int{
		"compute_Application":           1,
		"ims_Incident":                  3,
		"ims_IncidentApplicationImpact": 3,
		"ims_IncidentAssignment":        3,
		"ims_IncidentEvent":             3,
		"ims_User":                      1,
	}

	stdout := out.String()
	assert.Contains(t, stdout, testutil.LogLine(t, "Processed 7 records"))
	assert.Contains(t, stdout, testutil.LogLine(t, "Would write 14 records"))
	assert.Contains(t, stdout, testutil.LogLine(t, "Errored 0 records"))
	assert.Contains(t, stdout, testutil.LogLine(t, "Skipped 0 records"))
	assert.Contains(t, stdout, testutil.LogLine(t, "Processed records by stream: "+sortedJSON(processed)))
	assert.Contains(t, stdout, testutil.LogLine(t, "Would write records by model: "+sortedJSON(written)))
	assert.Equal(t, 2, strings.Count(stdout, `{"type":"STATE"`))

	assert.Equal(t, written, dry.Written())
	assert.Equal(t, written, runner.Stats().WrittenByModel())
	require.NotNil(t, runner.LastCheckpoint())
}

func TestSortedJSONFormat(t *testing.T) {
	assert.Equal(t, `{"a":1,"b":2}`, sortedJSON(map[string]int{"b": 2, "a": 1}))
	assert.Equal(t, `{}`, sortedJSON(map[string]int{}))
}

// widgetConverter turns test__widgets records into one "widget" entity.
type widgetConverter struct {
	converter.Base
}

func (widgetConverter) Convert(_ context.Context, rec *protocol.Record, _ *converter.StreamContext) ([]converter.DestinationRecord, error) {
	switch rec.Data["id"] {
	case "bad":
		return nil, fmt.Errorf("widget without name")
	case "panic":
		panic("unexpected payload")
	}
	return []converter.DestinationRecord{
		converter.NewRecord("widget", converter.Fields{"id": rec.Data["id"]}, converter.Fields{"name": rec.Data["name"]}),
	}, nil
}

type harness struct {
	cfg    *config.DestinationConfig
	stdout *bytes.Buffer
	runner *Runner
	store  *statestore.Memory
}

func newHarness(t *testing.T, s sink.Sink, tune func(*config.DestinationConfig)) *harness {
	t.Helper()
	validator, err := catalog.NewValidator(&catalog.ConfiguredCatalog{Streams: []catalog.ConfiguredStream{{
		Stream:              catalog.Stream{Name: "o__test__widgets"},
		SyncMode:            catalog.SyncModeFullRefresh,
		DestinationSyncMode: catalog.DestinationSyncModeOverwrite,
	}}})
	require.NoError(t, err)

	registry := converter.NewRegistry("default", zaptest.NewLogger(t))
	require.NoError(t, registry.Register(&widgetConverter{Base: converter.NewBase("test", "widgets")}))

	cfg := config.NewDestinationConfig("widgets")
	cfg.Flush.RetryAttempts = 3
	cfg.Flush.RetryDelay = time.Millisecond
	cfg.Flush.MaxRetryDelay = 5 * time.Millisecond
	cfg.Flush.Jitter = 0
	if tune != nil {
		tune(cfg)
	}

	h := &harness{cfg: cfg, stdout: &bytes.Buffer{}, store: statestore.NewMemory()}
	h.runner, err = New(Options{
		Config:   cfg,
		Catalog:  validator,
		Registry: registry,
		Sink:     s,
		Writer:   protocol.NewWriter(h.stdout),
		Store:    h.store,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return h
}

func widget(id string) string {
	return fmt.Sprintf(`{"type":"RECORD","record":{"stream":"o__test__widgets","emitted_at":1,"data":{"id":%q,"name":"w-%s"}}}`, id, id)
}

func state(n int) string {
	return fmt.Sprintf(`{"type":"STATE","state":{"data":{"n":%d}}}`, n)
}

func input(lines ...string) io.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestWriteOutcomes(t *testing.T) {
	s := &testutil.FlakySink{}
	h := newHarness(t, s, nil)

	err := h.runner.Write(context.Background(), input(
		widget("1"),
		widget("bad"),
		widget("panic"),
		`{"type":"RECORD","record":{"stream":"o__test__gadgets","data":{}}}`,
		`not json`,
		widget("2"),
	))
	require.NoError(t, err)

	st := h.runner.Stats()
	assert.Equal(t, StreamStats{Processed: 2, Errored: 2}, st.Stream("o__test__widgets"))
	assert.Equal(t, StreamStats{Skipped: 1}, st.Stream("o__test__gadgets"))

	processed, errored, skipped, written := st.Totals()
	assert.Equal(t, 5, processed+errored+skipped)
	assert.Equal(t, 2, written)
	assert.Equal(t, map[string]int{"widget": 2}, s.Written())
}

func TestFlushRetriesWithStableBatchID(t *testing.T) {
	s := &testutil.FlakySink{Failures: 2}
	h := newHarness(t, s, nil)

	require.NoError(t, h.runner.Write(context.Background(), input(widget("1"), widget("2"), state(1))))

	ids := s.BatchIDs()
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])
	assert.Equal(t, map[string]int{"widget": 2}, h.runner.Stats().WrittenByModel())
	assert.Equal(t, 1, strings.Count(h.stdout.String(), `"type":"STATE"`))
}

func TestFlushExhaustionIsFatal(t *testing.T) {
	s := &testutil.FlakySink{Failures: -1}
	h := newHarness(t, s, nil)

	err := h.runner.Write(context.Background(), input(widget("1"), state(1), widget("2"), state(2)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFlush))
	assert.True(t, errors.IsFatal(err))

	assert.Equal(t, 3, s.Calls())
	assert.NotContains(t, h.stdout.String(), `"type":"STATE"`)
	assert.Nil(t, h.runner.LastCheckpoint())
	assert.Empty(t, h.runner.Stats().WrittenByModel())
	assert.Equal(t, StreamStats{Processed: 1}, h.runner.Stats().Stream("o__test__widgets"))
}

func TestStateHeldUntilCovered(t *testing.T) {
	var stdout *bytes.Buffer
	var statesSeenAtFlush []int
	s := &testutil.FlakySink{OnWrite: func(*sink.Batch) {
		statesSeenAtFlush = append(statesSeenAtFlush, strings.Count(stdout.String(), `"type":"STATE"`))
	}}
	h := newHarness(t, s, func(cfg *config.DestinationConfig) {
		cfg.Checkpoint.FlushOnState = false
	})
	stdout = h.stdout

	require.NoError(t, h.runner.Write(context.Background(), input(
		state(0),
		widget("1"),
		state(1),
		widget("2"),
		state(2),
	)))

	// The leading state covers nothing and goes out at once; the others
	// wait for the final flush.
	assert.Equal(t, []int{1}, statesSeenAtFlush)
	out := h.stdout.String()
	assert.Equal(t, 3, strings.Count(out, `"type":"STATE"`))
	assert.Less(t, strings.Index(out, `"n":1`), strings.Index(out, `"n":2`))

	cp, err := h.store.Load(context.Background(), "widgets")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(2), cp.Sequence)
	assert.Contains(t, string(cp.State), `"n":2`)
}

func TestBufferBoundTriggersFlush(t *testing.T) {
	s := &testutil.FlakySink{}
	h := newHarness(t, s, func(cfg *config.DestinationConfig) {
		cfg.Buffer.MaxRecords = 2
	})

	require.NoError(t, h.runner.Write(context.Background(), input(
		widget("1"), widget("2"), widget("3"), widget("4"), widget("5"),
	)))
	assert.Equal(t, 3, s.Calls())
	assert.Equal(t, map[string]int{"widget": 5}, s.Written())
}

// cancelReader cancels the run when the input is exhausted.
type cancelReader struct {
	cancel context.CancelFunc
}

func (r cancelReader) Read([]byte) (int, error) {
	r.cancel()
	return 0, io.EOF
}

func TestCancelledRunFlushesWithFreshContext(t *testing.T) {
	dry := sink.NewDry()
	h := newHarness(t, dry, func(cfg *config.DestinationConfig) {
		cfg.Checkpoint.FlushOnState = false
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := h.runner.Write(ctx, io.MultiReader(input(widget("1"), widget("2"), state(1)), cancelReader{cancel: cancel}))
	require.NoError(t, err)
	assert.Error(t, ctx.Err())
	assert.Equal(t, map[string]int{"widget": 2}, dry.Written())
	assert.Equal(t, 1, strings.Count(h.stdout.String(), `"type":"STATE"`))
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestNewWarnsAboutStreamsWithoutConverter(t *testing.T) {
	validator, err := catalog.NewValidator(&catalog.ConfiguredCatalog{Streams: []catalog.ConfiguredStream{{
		Stream:              catalog.Stream{Name: "o__jira__issues"},
		SyncMode:            catalog.SyncModeFullRefresh,
		DestinationSyncMode: catalog.DestinationSyncModeOverwrite,
	}}})
	require.NoError(t, err)

	out := testutil.NewOutput(t, "warn")
	_, err = New(Options{
		Config:   config.NewDestinationConfig("d"),
		Catalog:  validator,
		Registry: converter.NewRegistry("default", zap.NewNop()),
		Sink:     sink.NewDry(),
		Writer:   out.Writer,
		Logger:   out.Logger,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"level":"WARN"`)
	assert.Contains(t, out.String(), "o__jira__issues")
}

func TestCancelWhileInputIdleFlushes(t *testing.T) {
	dry := sink.NewDry()
	h := newHarness(t, dry, nil)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.runner.Write(ctx, pr) }()

	_, err := io.WriteString(pw, widget("1")+"\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		processed, _, _, _ := h.runner.Stats().Totals()
		return processed == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Nothing more arrives on the pipe; only the cancellation can end the run.
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Write did not return after cancellation while input was idle")
	}
	assert.Equal(t, map[string]int{"widget": 1}, dry.Written())
}

func TestFlushAttemptTimeoutIsRetriedThenFatal(t *testing.T) {
	s := &testutil.FlakySink{Failures: -1, Block: true}
	h := newHarness(t, s, func(cfg *config.DestinationConfig) {
		cfg.Flush.Timeout = 20 * time.Millisecond
	})

	err := h.runner.Write(context.Background(), input(widget("1"), state(1)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFlush))
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	assert.Equal(t, 3, s.Calls())
	assert.NotContains(t, h.stdout.String(), `"type":"STATE"`)
	assert.Nil(t, h.runner.LastCheckpoint())
	assert.Empty(t, h.runner.Stats().WrittenByModel())
}

func TestInvalidBatchIsNotRetried(t *testing.T) {
	s := &testutil.FlakySink{Failures: -1, Err: errors.New(errors.ErrorTypeValidation, "encode widget")}
	h := newHarness(t, s, nil)

	err := h.runner.Write(context.Background(), input(widget("1"), state(1)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFlush))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, 1, s.Calls())
	assert.NotContains(t, h.stdout.String(), `"type":"STATE"`)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(errors.New(errors.ErrorTypeTimeout, "slow")))
	assert.True(t, shouldRetry(errors.New(errors.ErrorTypeConnection, "refused")))
	assert.True(t, shouldRetry(io.ErrUnexpectedEOF))
	assert.False(t, shouldRetry(errors.New(errors.ErrorTypeValidation, "bad record")))
	assert.False(t, shouldRetry(errors.Wrap(io.EOF, errors.ErrorTypeConfig, "bad table")))
}

func TestStatsSeparateNamespaces(t *testing.T) {
	s := &testutil.FlakySink{}
	h := newHarness(t, s, nil)

	rec := func(ns, id string) string {
		return fmt.Sprintf(`{"type":"RECORD","record":{"stream":"o__test__widgets","namespace":%q,"data":{"id":%q,"name":"w"}}}`, ns, id)
	}
	require.NoError(t, h.runner.Write(context.Background(), input(rec("a", "1"), rec("b", "2"), rec("b", "3"))))

	st := h.runner.Stats()
	assert.Equal(t, StreamStats{Processed: 1}, st.Stream("a.o__test__widgets"))
	assert.Equal(t, StreamStats{Processed: 2}, st.Stream("b.o__test__widgets"))
	assert.Equal(t, map[string]int{"a.o__test__widgets": 1, "b.o__test__widgets": 2}, st.ProcessedByStream())
}
