package hooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domscout/internal/dom"
)

type registration struct {
	kind    dom.NodeKind
	typ     string
	capture bool
}

type schedule struct {
	kind  TimerKind
	delay time.Duration
}

type unregistration struct {
	kind      dom.NodeKind
	typ       string
	remaining int
}

type recorder struct {
	regs      []registration
	unregs    []unregistration
	schedules []schedule
}

func (r *recorder) OnRegister(t dom.Target, typ string, capture bool) {
	r.regs = append(r.regs, registration{t.Kind, typ, capture})
}

func (r *recorder) OnUnregister(t dom.Target, typ string, remaining int) {
	r.unregs = append(r.unregs, unregistration{t.Kind, typ, remaining})
}

func (r *recorder) OnSchedule(kind TimerKind, delay time.Duration, _ string) {
	r.schedules = append(r.schedules, schedule{kind, delay})
}

func tick() {}

func TestInstallRecordsThenDelegates(t *testing.T) {
	doc, err := dom.ParseString(`<html><body><button id="b"></button></body></html>`)
	require.NoError(t, err)
	rec := &recorder{}
	in := NewInstaller(rec)

	require.False(t, doc.Platform.Hooked())
	require.True(t, in.Install(doc.Platform))
	assert.True(t, doc.Platform.Hooked())

	btn := doc.GetElementByID("b")
	clicks := 0
	doc.AddEventListener(dom.ElementTarget(btn), "click", func(*dom.Event) error { clicks++; return nil }, false)
	doc.AddEventListener(doc.DocumentTarget(), "keydown", func(*dom.Event) error { return nil }, true)
	doc.AddEventListener(dom.WindowTarget(), "load", func(*dom.Event) error { return nil }, false)

	fired := 0
	doc.SetTimeout(func() { fired++ }, 10*time.Millisecond)
	doc.SetInterval(tick, 20*time.Millisecond)

	assert.Equal(t, []registration{
		{dom.KindElement, "click", false},
		{dom.KindDocument, "keydown", true},
		{dom.KindWindow, "load", false},
	}, rec.regs)
	assert.Equal(t, []schedule{{Timeout, 10 * time.Millisecond}, {Interval, 20 * time.Millisecond}}, rec.schedules)

	ev, err := dom.NewMouseEvent("click", dom.MouseEventInit{Bubbles: true})
	require.NoError(t, err)
	_, err = doc.DispatchEvent(dom.ElementTarget(btn), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, clicks, "original primitive still registers the listener")

	doc.Advance(15 * time.Millisecond)
	assert.Equal(t, 1, fired)
}

func TestInstallIsIdempotent(t *testing.T) {
	doc, err := dom.ParseString(`<html></html>`)
	require.NoError(t, err)
	first, second := &recorder{}, &recorder{}

	require.True(t, NewInstaller(first).Install(doc.Platform))
	assert.False(t, NewInstaller(first).Install(doc.Platform))
	assert.False(t, NewInstaller(second).Install(doc.Platform), "the flag lives on the platform")

	doc.AddEventListener(dom.WindowTarget(), "click", func(*dom.Event) error { return nil }, false)
	assert.Len(t, first.regs, 1, "a second install must not double-wrap")
	assert.Empty(t, second.regs)
}

func TestRemovalIsReportedAfterDelegating(t *testing.T) {
	doc, err := dom.ParseString(`<html><body><a id="a">x</a></body></html>`)
	require.NoError(t, err)
	rec := &recorder{}
	require.True(t, NewInstaller(rec).Install(doc.Platform))

	a := dom.ElementTarget(doc.GetElementByID("a"))
	clicks := 0
	first := doc.AddEventListener(a, "click", func(*dom.Event) error { clicks++; return nil }, false)
	second := doc.AddEventListener(a, "click", func(*dom.Event) error { clicks++; return nil }, true)
	global := doc.AddEventListener(doc.DocumentTarget(), "click", func(*dom.Event) error { return nil }, false)

	assert.True(t, doc.RemoveEventListener(a, "click", first))
	assert.False(t, doc.RemoveEventListener(a, "click", first), "already removed")
	assert.False(t, doc.RemoveEventListener(a, "mouseover", second), "type must match")
	assert.True(t, doc.RemoveEventListener(doc.DocumentTarget(), "click", global))

	assert.Equal(t, []unregistration{
		{dom.KindElement, "click", 1},
		{dom.KindDocument, "click", 0},
	}, rec.unregs)

	ev, err := dom.NewMouseEvent("click", dom.MouseEventInit{Bubbles: true})
	require.NoError(t, err)
	_, err = doc.DispatchEvent(a, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, clicks, "only the remaining listener runs")
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(tick), "hooks.tick")
	assert.Equal(t, "<nil>", Describe(nil))
	var nilFn func()
	assert.Equal(t, "<nil>", Describe(nilFn))
}
