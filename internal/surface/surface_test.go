package surface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"domscout/internal/dom"
	"domscout/internal/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const fixture = `<html><body>
<ul>
  <li onclick="pick()">one</li>
  <li onclick="pick()">two</li>
  <li onclick="pick()">three</li>
  <li onclick="pick()">four</li>
  <li onclick="pick()">five</li>
</ul>
<a href="/next">next</a>
<button id="bad" onclick="missing()">bad</button>
</body></html>`

func newSurface(t *testing.T) (*engine.Context, *Surface) {
	t.Helper()
	doc, err := dom.ParseString(fixture)
	require.NoError(t, err)
	doc.DefineFunction("pick", func(*dom.Event) error { return nil })

	ctx := engine.New(doc, engine.DefaultOptions())
	t.Cleanup(ctx.Close)

	doc.AddEventListener(doc.DocumentTarget(), "click", func(*dom.Event) error { return nil }, false)
	doc.SetTimeout(func() {}, 250*time.Millisecond)
	doc.SetInterval(func() {}, time.Second)
	return ctx, New(Local(ctx), 2)
}

func TestMethods(t *testing.T) {
	_, s := newSurface(t)
	assert.Equal(t, []string{
		MethodDispatchEvent,
		MethodElementsWithEventHandlers,
		MethodEventListeners,
		MethodJSErrors,
		MethodSetIntervals,
		MethodSetTimeouts,
	}, s.Methods())
}

func TestCallDefaultsAndPaging(t *testing.T) {
	_, s := newSurface(t)
	bg := context.Background()

	raw, err := s.Call(bg, MethodElementsWithEventHandlers, nil)
	require.NoError(t, err)
	var page []engine.Record
	require.NoError(t, json.Unmarshal(raw, &page))
	assert.Len(t, page, 2, "count defaults to the surface page size")

	raw, err = s.Call(bg, MethodElementsWithEventHandlers, EncodeArgs([]string{"click"}, []string{"li"}, 4, 10))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &page))
	require.Len(t, page, 1)
	assert.Equal(t, "five", page[0].Text)

	raw, err = s.Call(bg, MethodElementsWithEventHandlers, EncodeArgs(nil, nil, 100, 10))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestCallTimers(t *testing.T) {
	_, s := newSurface(t)

	raw, err := s.Call(context.Background(), MethodSetTimeouts, EncodeArgs(0, 10))
	require.NoError(t, err)
	var timers []engine.TimerRecord
	require.NoError(t, json.Unmarshal(raw, &timers))
	require.Len(t, timers, 1)
	assert.Equal(t, int64(250), timers[0].Delay)

	raw, err = s.Call(context.Background(), MethodSetIntervals, nil)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &timers))
	require.Len(t, timers, 1)
	assert.Equal(t, int64(1000), timers[0].Delay)
}

func TestCallRejectsBadInput(t *testing.T) {
	_, s := newSurface(t)
	bg := context.Background()

	_, err := s.Call(bg, "eval", nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	cases := []struct {
		name   string
		method string
		args   string
	}{
		{"not an array", MethodEventListeners, `{"start":0}`},
		{"wrong type", MethodEventListeners, `["click"]`},
		{"too many", MethodSetTimeouts, `[0, 1, 2]`},
		{"script in event type", MethodDispatchEvent, `["li", "click);alert(1"]`},
		{"empty event type", MethodDispatchEvent, `["li", ""]`},
		{"missing selector", MethodDispatchEvent, `[]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Call(bg, tc.method, json.RawMessage(tc.args))
			assert.ErrorIs(t, err, ErrBadArguments)
		})
	}
}

func TestDispatchAndErrors(t *testing.T) {
	_, s := newSurface(t)
	bg := context.Background()

	ok, err := DispatchEvent(bg, s, "#bad", "click")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = DispatchEvent(bg, s, "#gone", "click")
	require.NoError(t, err)
	assert.False(t, ok)

	msgs, err := JSErrors(bg, s)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "missing is not defined")
}

func TestPaginateStopsOnShortPage(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, start, count int) ([]int, error) {
		calls++
		var out []int
		for i := start; i < 5 && len(out) < count; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	got, err := Collect(Paginate(context.Background(), 2, fetch))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Equal(t, 3, calls)
}

func TestPaginateStopsOnEmptyPage(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, start, count int) ([]int, error) {
		calls++
		if start >= 4 {
			return nil, nil
		}
		return []int{start, start + 1}, nil
	}
	got, err := Collect(Paginate(context.Background(), 2, fetch))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
	assert.Equal(t, 3, calls)
}

func TestPaginateError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, start, count int) ([]int, error) {
		if start > 0 {
			return nil, boom
		}
		return []int{1, 2}, nil
	}
	got, err := Collect(Paginate(context.Background(), 2, fetch))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, got)
}

func TestPaginateEarlyBreak(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, start, count int) ([]int, error) {
		calls++
		return []int{start, start + 1}, nil
	}
	for v, err := range Paginate(context.Background(), 2, fetch) {
		require.NoError(t, err)
		if v == 2 {
			break
		}
	}
	assert.Equal(t, 2, calls)
}

func TestAllEventListenersChainsExplicitThenDeclarative(t *testing.T) {
	_, s := newSurface(t)

	all, err := Collect(AllEventListeners(context.Background(), s, nil, nil, 2))
	require.NoError(t, err)

	var sources []string
	for _, r := range all {
		sources = append(sources, string(r.Source))
	}
	// document click, one affordance for the link, then six onclick attributes.
	require.Len(t, all, 8)
	assert.Equal(t, engine.DocumentSelector, all[0].Selector)
	assert.Equal(t, string(engine.SourceAffordance), sources[1])
	for _, src := range sources[2:] {
		assert.Equal(t, string(engine.SourceAttribute), src)
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	_, s := newSurface(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.HTTP.CloseIdleConnections()
	bg := context.Background()

	records, err := Collect(Paginate(bg, 2, Records(client, MethodElementsWithEventHandlers, []string{"click"}, []string{"li"})))
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "one", records[0].Text)

	ok, err := DispatchEvent(bg, client, records[2].Selector, "click")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = client.Call(bg, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = DispatchEvent(bg, client, "li", "bad type")
	assert.ErrorIs(t, err, ErrBadArguments)
}

func TestHTTPHealthAndMethods(t *testing.T) {
	_, s := newSurface(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status": "ok"`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/methods", nil))
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, s.Methods(), names)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/call/"+MethodSetTimeouts, strings.NewReader(`"x"`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, http.StatusBadRequest, er.Status)
}

func TestSetBackend(t *testing.T) {
	_, s := newSurface(t)
	doc, err := dom.ParseString(`<html><body><p>quiet</p></body></html>`)
	require.NoError(t, err)
	fresh := engine.New(doc, engine.DefaultOptions())
	defer fresh.Close()

	s.SetBackend(Local(fresh))
	raw, err := s.Call(context.Background(), MethodElementsWithEventHandlers, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
