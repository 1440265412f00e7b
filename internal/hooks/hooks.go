// Package hooks wraps the host registration and scheduling primitives so every call is
// observed before it reaches the host.
package hooks

import (
	"reflect"
	"runtime"
	"time"

	"golang.org/x/net/html"

	"domscout/internal/dom"
	"domscout/internal/logging"
)

// TimerKind distinguishes one-shot from repeating timers.
type TimerKind string

const (
	Timeout  TimerKind = "timeout"
	Interval TimerKind = "interval"
)

// Interceptor receives every registration and scheduling call. Implementations decide
// what to keep; they must not block or call back into the platform.
//
// OnUnregister is called after a removal took effect, with the number of listeners of
// eventType still attached to target.
type Interceptor interface {
	OnRegister(target dom.Target, eventType string, capture bool)
	OnUnregister(target dom.Target, eventType string, remaining int)
	OnSchedule(kind TimerKind, delay time.Duration, callable string)
}

// Installer swaps a platform's primitives for observing wrappers. The platform carries
// the installed flag, so a platform is wrapped at most once whichever installer comes
// first.
type Installer struct {
	ic Interceptor
}

// NewInstaller returns an Installer reporting to ic.
func NewInstaller(ic Interceptor) *Installer {
	return &Installer{ic: ic}
}

// Install wraps the eight primitives of p. It returns false without touching p when p
// is already hooked.
func (in *Installer) Install(p *dom.Platform) bool {
	if !p.MarkHooked() {
		logging.HooksDebug("hooks already installed, skipping")
		return false
	}

	addWindow := p.AddWindowListener
	p.AddWindowListener = func(typ string, fn dom.Listener, capture bool) dom.ListenerID {
		in.ic.OnRegister(dom.WindowTarget(), typ, capture)
		return addWindow(typ, fn, capture)
	}

	addDocument := p.AddDocumentListener
	p.AddDocumentListener = func(typ string, fn dom.Listener, capture bool) dom.ListenerID {
		in.ic.OnRegister(dom.Target{Kind: dom.KindDocument}, typ, capture)
		return addDocument(typ, fn, capture)
	}

	addElement := p.AddElementListener
	p.AddElementListener = func(n *html.Node, typ string, fn dom.Listener, capture bool) dom.ListenerID {
		in.ic.OnRegister(dom.ElementTarget(n), typ, capture)
		return addElement(n, typ, fn, capture)
	}

	removeWindow := p.RemoveWindowListener
	p.RemoveWindowListener = func(typ string, id dom.ListenerID) (int, bool) {
		remaining, ok := removeWindow(typ, id)
		if ok {
			in.ic.OnUnregister(dom.WindowTarget(), typ, remaining)
		}
		return remaining, ok
	}

	removeDocument := p.RemoveDocumentListener
	p.RemoveDocumentListener = func(typ string, id dom.ListenerID) (int, bool) {
		remaining, ok := removeDocument(typ, id)
		if ok {
			in.ic.OnUnregister(dom.Target{Kind: dom.KindDocument}, typ, remaining)
		}
		return remaining, ok
	}

	removeElement := p.RemoveElementListener
	p.RemoveElementListener = func(n *html.Node, typ string, id dom.ListenerID) (int, bool) {
		remaining, ok := removeElement(n, typ, id)
		if ok {
			in.ic.OnUnregister(dom.ElementTarget(n), typ, remaining)
		}
		return remaining, ok
	}

	setTimeout := p.SetTimeout
	p.SetTimeout = func(fn func(), delay time.Duration) int {
		in.ic.OnSchedule(Timeout, delay, Describe(fn))
		return setTimeout(fn, delay)
	}

	setInterval := p.SetInterval
	p.SetInterval = func(fn func(), delay time.Duration) int {
		in.ic.OnSchedule(Interval, delay, Describe(fn))
		return setInterval(fn, delay)
	}

	logging.Hooks("installed registration and timer hooks")
	return true
}

// Describe names a callable for diagnostics.
func Describe(fn any) string {
	if fn == nil {
		return "<nil>"
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "<nil>"
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return "<func>"
}
