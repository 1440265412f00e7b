package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"domscout/internal/config"
	"domscout/internal/engine"
	"domscout/internal/surface"
)

const formPage = `<html><body>
<form onsubmit="save()">
  <input name="q" onchange="suggest()">
  <button>Go</button>
</form>
<ul><li onclick="pick()">a</li><li onclick="pick()">b</li></ul>
</body></html>`

func setup(t *testing.T) string {
	t.Helper()
	logger = zap.NewNop()
	liveHost = false
	timeout = 30 * time.Second
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "runs.db")
	cfg.Discovery.PageSize = 2

	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(formPage), 0o644))
	return page
}

func newScanCmd(out *bytes.Buffer, flags ...string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringSlice("events", nil, "")
	cmd.Flags().StringSlice("tags", nil, "")
	cmd.Flags().Bool("replay", false, "")
	cmd.Flags().Bool("no-store", false, "")
	_ = cmd.Flags().Parse(flags)
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd
}

func TestScanStaticDocument(t *testing.T) {
	page := setup(t)

	var out bytes.Buffer
	require.NoError(t, runScan(newScanCmd(&out), []string{page}))

	var res scanResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, hostStatic, res.Host)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Listeners)

	var keys []string
	for _, r := range res.Handlers {
		keys = append(keys, r.TagName+"/"+r.EventType+"/"+string(r.Source))
	}
	assert.ElementsMatch(t, []string{
		"form/submit/attribute",
		"input/change/attribute",
		"input/submit/inherited",
		"button/submit/inherited",
		"li/click/attribute",
		"li/click/attribute",
	}, keys)
}

func TestScanFiltersAndReplay(t *testing.T) {
	page := setup(t)

	var out bytes.Buffer
	cmd := newScanCmd(&out, "--events=click", "--tags=li", "--replay")
	require.NoError(t, runScan(cmd, []string{page}))

	var res scanResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Handlers, 2)
	require.Len(t, res.Dispatched, 2)
	for _, d := range res.Dispatched {
		assert.True(t, d.OK, d.Selector)
	}
	// pick() is not defined in a static document.
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "pick is not defined")
}

func TestScanNoStore(t *testing.T) {
	page := setup(t)

	var out bytes.Buffer
	require.NoError(t, runScan(newScanCmd(&out, "--no-store"), []string{page}))
	assert.NotContains(t, out.String(), "run_id")
	_, err := os.Stat(cfg.Store.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunsListsAndShows(t *testing.T) {
	page := setup(t)

	var out bytes.Buffer
	require.NoError(t, runScan(newScanCmd(&out), []string{page}))
	var res scanResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))

	list := &cobra.Command{}
	list.Flags().Int("limit", 20, "")
	var listOut bytes.Buffer
	list.SetOut(&listOut)
	require.NoError(t, runRuns(list, nil))
	assert.Contains(t, listOut.String(), res.RunID)
	assert.Contains(t, listOut.String(), "static")

	var showOut bytes.Buffer
	list.SetOut(&showOut)
	require.NoError(t, runRuns(list, []string{res.RunID}))
	var shown struct {
		ID         string          `json:"id"`
		Records    int             `json:"records"`
		RecordList []engine.Record `json:"record_list"`
	}
	require.NoError(t, json.Unmarshal(showOut.Bytes(), &shown))
	assert.Equal(t, res.RunID, shown.ID)
	assert.Equal(t, len(res.Handlers), shown.Records)
	assert.Len(t, shown.RecordList, shown.Records)
}

func TestRunsEmpty(t *testing.T) {
	setup(t)
	cmd := &cobra.Command{}
	cmd.Flags().Int("limit", 20, "")
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, runRuns(cmd, nil))
	assert.Contains(t, out.String(), "No runs recorded.")
}

func TestDispatchCommand(t *testing.T) {
	page := setup(t)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	require.NoError(t, runDispatch(cmd, []string{page, "ul > :nth-child(2)", "click"}))
	assert.True(t, strings.HasPrefix(out.String(), "true\n"))
	assert.Contains(t, out.String(), "page error: ReferenceError: pick is not defined")

	out.Reset()
	require.NoError(t, runDispatch(cmd, []string{page, "#missing", "click"}))
	assert.Equal(t, "false\n", out.String())
}

func TestCallAgainstServer(t *testing.T) {
	page := setup(t)
	h, err := openStatic(page)
	require.NoError(t, err)
	defer h.close()

	srv := httptest.NewServer(surface.New(h.backend, 2).Handler())
	defer srv.Close()

	cmd := &cobra.Command{}
	cmd.Flags().Bool("all", false, "")
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runCall(cmd, []string{srv.URL, surface.MethodElementsWithEventHandlers, `[[], ["li"], 0, 10]`}))
	var page1 []engine.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &page1))
	assert.Len(t, page1, 2)

	out.Reset()
	require.NoError(t, cmd.Flags().Set("all", "true"))
	require.NoError(t, runCall(cmd, []string{srv.URL, "get_all_event_listeners"}))
	var all []engine.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &all))
	assert.Len(t, all, 6)

	out.Reset()
	err = runCall(cmd, []string{srv.URL, surface.MethodDispatchEvent})
	assert.Error(t, err)
}

func TestWatchReloadsDocument(t *testing.T) {
	page := setup(t)
	h, err := openStatic(page)
	require.NoError(t, err)
	defer func() { _ = h.close() }()
	s := surface.New(h.backend, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchDocument(ctx, h, s) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	count := func() int {
		recs, err := surface.Collect(surface.Paginate(context.Background(), 10,
			surface.Records(s, surface.MethodElementsWithEventHandlers, nil, nil)))
		require.NoError(t, err)
		return len(recs)
	}
	require.Equal(t, 6, count())

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(page, []byte(`<html><body><a onclick="x()">x</a></body></html>`), 0o644))
	assert.Eventually(t, func() bool { return count() == 1 }, 5*time.Second, 20*time.Millisecond)
}
