//go:build integration

package livepage_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domscout/internal/livepage"
	"domscout/internal/surface"
)

const page = `<html><body>
<button id="go" onclick="document.title = 'clicked'">Go</button>
<div id="menu" style="cursor: pointer; width: 50px; height: 20px">Menu</div>
<p id="hidden" style="display: none" onclick="x()">hidden</p>
<a id="off" onclick="document.removeEventListener('click', onDoc)">off</a>
<script>
  function onDoc() {}
  document.addEventListener('click', onDoc);
  document.getElementById('menu').addEventListener('mouseover', () => {});
  setTimeout(() => {}, 250);
  setInterval(() => {}, 60000);
  setTimeout(() => { throw new Error('boom'); }, 0);
</script>
</body></html>`

func TestLivePage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	opts := livepage.DefaultOptions()
	opts.SettleTime = 200 * time.Millisecond
	b, err := livepage.Start(ctx, opts)
	require.NoError(t, err)
	defer b.Close()

	p, err := b.Open(ctx, ts.URL)
	require.NoError(t, err)

	s := surface.New(p, 50)

	declared, err := surface.Collect(surface.Paginate(ctx, 50,
		surface.Records(s, surface.MethodElementsWithEventHandlers, nil, nil)))
	require.NoError(t, err)
	require.Len(t, declared, 2)
	assert.Equal(t, "#go", declared[0].Selector)

	listeners, err := surface.Collect(surface.Paginate(ctx, 50,
		surface.Records(s, surface.MethodEventListeners, nil, nil)))
	require.NoError(t, err)
	var keys []string
	for _, r := range listeners {
		keys = append(keys, r.Selector+"/"+r.EventType+"/"+string(r.Source))
	}
	assert.Contains(t, keys, "!document/click/explicit")
	assert.Contains(t, keys, "#menu/mouseover/explicit")
	assert.Contains(t, keys, "#menu/click/affordance")

	timeouts, err := surface.Collect(surface.Paginate(ctx, 50, surface.Timers(s, surface.MethodSetTimeouts)))
	require.NoError(t, err)
	assert.Len(t, timeouts, 2)

	ok, err := surface.DispatchEvent(ctx, s, "#go", "click")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = surface.DispatchEvent(ctx, s, "#hidden", "click")
	require.NoError(t, err)
	assert.False(t, ok)

	msgs, err := surface.JSErrors(ctx, s)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "boom")

	ok, err = surface.DispatchEvent(ctx, s, "#off", "click")
	require.NoError(t, err)
	require.True(t, ok)
	listeners, err = surface.Collect(surface.Paginate(ctx, 50,
		surface.Records(s, surface.MethodEventListeners, []string{"click"}, nil)))
	require.NoError(t, err)
	assert.Empty(t, listeners, "removing the document click listener removes the affordances")
}
