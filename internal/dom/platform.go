package dom

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/net/html"
)

// Platform is the set of host primitives page code uses to register listeners and
// schedule callbacks. Each field may be replaced with a wrapper that observes calls
// before delegating to the previous value.
//
// The remove primitives return how many listeners of the type remain on the target and
// whether the registration existed.
type Platform struct {
	AddWindowListener   func(typ string, fn Listener, capture bool) ListenerID
	AddDocumentListener func(typ string, fn Listener, capture bool) ListenerID
	AddElementListener  func(n *html.Node, typ string, fn Listener, capture bool) ListenerID

	RemoveWindowListener   func(typ string, id ListenerID) (int, bool)
	RemoveDocumentListener func(typ string, id ListenerID) (int, bool)
	RemoveElementListener  func(n *html.Node, typ string, id ListenerID) (int, bool)

	SetTimeout  func(fn func(), delay time.Duration) int
	SetInterval func(fn func(), delay time.Duration) int

	hooked bool
}

// MarkHooked flags the platform as wrapped by an interception layer. It returns false
// when the platform was already flagged.
func (p *Platform) MarkHooked() bool {
	if p.hooked {
		return false
	}
	p.hooked = true
	return true
}

// Hooked reports whether MarkHooked has run.
func (p *Platform) Hooked() bool { return p.hooked }

func (d *Document) nativePlatform() *Platform {
	return &Platform{
		AddWindowListener: func(typ string, fn Listener, capture bool) ListenerID {
			return d.addListener(WindowTarget(), typ, fn, capture)
		},
		AddDocumentListener: func(typ string, fn Listener, capture bool) ListenerID {
			return d.addListener(d.DocumentTarget(), typ, fn, capture)
		},
		AddElementListener: func(n *html.Node, typ string, fn Listener, capture bool) ListenerID {
			return d.addListener(ElementTarget(n), typ, fn, capture)
		},
		RemoveWindowListener: func(typ string, id ListenerID) (int, bool) {
			return d.window.remove(typ, id)
		},
		RemoveDocumentListener: func(typ string, id ListenerID) (int, bool) {
			return d.docLists.remove(typ, id)
		},
		RemoveElementListener: func(n *html.Node, typ string, id ListenerID) (int, bool) {
			return d.listenersOf(ElementTarget(n)).remove(typ, id)
		},
		SetTimeout: func(fn func(), delay time.Duration) int {
			return d.timers.schedule(fn, delay, false)
		},
		SetInterval: func(fn func(), delay time.Duration) int {
			return d.timers.schedule(fn, delay, true)
		},
	}
}

func (d *Document) addListener(t Target, typ string, fn Listener, capture bool) ListenerID {
	d.nextListener++
	id := d.nextListener
	d.listenersOf(t).add(id, typ, fn, capture)
	return id
}

// AddEventListener registers fn on t through the current platform primitives. The
// returned ID removes the registration again.
func (d *Document) AddEventListener(t Target, typ string, fn Listener, capture bool) ListenerID {
	switch t.Kind {
	case KindWindow:
		return d.Platform.AddWindowListener(typ, fn, capture)
	case KindDocument:
		return d.Platform.AddDocumentListener(typ, fn, capture)
	default:
		return d.Platform.AddElementListener(t.Node, typ, fn, capture)
	}
}

// RemoveEventListener unregisters the listener id of type typ from t through the
// current platform primitives. It reports whether the registration existed.
func (d *Document) RemoveEventListener(t Target, typ string, id ListenerID) bool {
	var ok bool
	switch t.Kind {
	case KindWindow:
		_, ok = d.Platform.RemoveWindowListener(typ, id)
	case KindDocument:
		_, ok = d.Platform.RemoveDocumentListener(typ, id)
	default:
		_, ok = d.Platform.RemoveElementListener(t.Node, typ, id)
	}
	return ok
}

// SetTimeout schedules fn once after delay of virtual time.
func (d *Document) SetTimeout(fn func(), delay time.Duration) int {
	return d.Platform.SetTimeout(fn, delay)
}

// SetInterval schedules fn every delay of virtual time.
func (d *Document) SetInterval(fn func(), delay time.Duration) int {
	return d.Platform.SetInterval(fn, delay)
}

// ClearTimer cancels a pending timeout or interval.
func (d *Document) ClearTimer(id int) {
	d.timers.cancel(id)
}

// Advance moves the virtual clock forward, running every timer that falls due in order.
func (d *Document) Advance(dur time.Duration) {
	d.timers.advance(dur, func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				d.reportError(fmt.Errorf("uncaught exception in timer: %v", r))
			}
		}()
		fn()
	})
}

// PendingTimers returns the number of scheduled timers.
func (d *Document) PendingTimers() int {
	return len(d.timers.pending)
}

const minInterval = time.Millisecond

type timer struct {
	id     int
	due    time.Duration
	every  time.Duration
	repeat bool
	fn     func()
}

type timerQueue struct {
	now     time.Duration
	nextID  int
	pending map[int]*timer
}

func newTimerQueue() *timerQueue {
	return &timerQueue{pending: make(map[int]*timer)}
}

func (q *timerQueue) schedule(fn func(), delay time.Duration, repeat bool) int {
	if delay < 0 {
		delay = 0
	}
	q.nextID++
	t := &timer{id: q.nextID, due: q.now + delay, every: delay, repeat: repeat, fn: fn}
	if repeat && t.every < minInterval {
		t.every = minInterval
	}
	q.pending[t.id] = t
	return t.id
}

func (q *timerQueue) cancel(id int) {
	delete(q.pending, id)
}

func (q *timerQueue) advance(dur time.Duration, run func(func())) {
	end := q.now + dur
	for {
		next := q.nextDue(end)
		if next == nil {
			break
		}
		q.now = next.due
		if next.repeat {
			next.due += next.every
		} else {
			delete(q.pending, next.id)
		}
		run(next.fn)
	}
	q.now = end
}

func (q *timerQueue) nextDue(end time.Duration) *timer {
	var due []*timer
	for _, t := range q.pending {
		if t.due <= end {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})
	return due[0]
}
