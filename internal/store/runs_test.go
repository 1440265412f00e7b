package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domscout/internal/dom"
	"domscout/internal/engine"
	"domscout/internal/hooks"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	run, err := s.BeginRun(ctx, "page.html", "static")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	capture := true
	records := []engine.Record{
		{TagName: "!document", NodeKind: dom.KindDocument, Selector: "!document", EventType: "click",
			Source: engine.SourceExplicit, Capture: &capture},
		{TagName: "div", NodeKind: dom.KindElement, Selector: "#menu", EventType: "click",
			Source: engine.SourceAttribute, Handler: "open()", Text: "Menu"},
	}
	require.NoError(t, s.AddRecords(ctx, run.ID, records))
	// Same duplicate key, different handler: ignored.
	dup := records[1]
	dup.Handler = "other()"
	require.NoError(t, s.AddRecords(ctx, run.ID, []engine.Record{dup}))

	require.NoError(t, s.AddTimers(ctx, run.ID, []engine.TimerRecord{
		{Kind: hooks.Timeout, Delay: 250, Callable: "tick"},
	}))
	require.NoError(t, s.AddErrors(ctx, run.ID, []string{"ReferenceError: x is not defined"}))
	require.NoError(t, s.RecordDispatch(ctx, run.ID, "#menu", "click", true))

	clock = clock.Add(2 * time.Second)
	require.NoError(t, s.FinishRun(ctx, run.ID))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Records)
	assert.Equal(t, 1, got.Timers)
	assert.Equal(t, 1, got.Errors)
	assert.Equal(t, 1, got.Dispatches)
	assert.Equal(t, "2026-03-01T12:00:00Z", got.StartedAt.Format(time.RFC3339))
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 2*time.Second, got.FinishedAt.Sub(got.StartedAt))

	stored, err := s.Records(ctx, run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(records, stored); diff != "" {
		t.Errorf("stored records mismatch (-want +got):\n%s", diff)
	}

	dispatches, err := s.Dispatches(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, dispatches, 1)
	assert.True(t, dispatches[0].OK)
	assert.Equal(t, "#menu", dispatches[0].Selector)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	var ids []string
	for _, target := range []string{"a.html", "b.html", "c.html"} {
		run, err := s.BeginRun(ctx, target, "static")
		require.NoError(t, err)
		ids = append(ids, run.ID)
		clock = clock.Add(time.Minute)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Nil(t, runs[0].FinishedAt)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUnknownRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, "missing"), ErrRunNotFound)
	assert.Error(t, s.AddErrors(ctx, "missing", []string{"x"}), "foreign key rejects orphans")
}

func TestHostIsChecked(t *testing.T) {
	s := openTestStore(t)
	_, err := s.BeginRun(context.Background(), "x", "remote")
	assert.Error(t, err)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	run, err := s.BeginRun(context.Background(), "page.html", "live")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "live", got.Host)
}
