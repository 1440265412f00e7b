package dom

import (
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/net/html"
)

var (
	// ErrInvalidEventType is returned when an event type is not a dotted identifier.
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrEventNotInitialized is returned when dispatching an event that was never initialized.
	ErrEventNotInitialized = errors.New("event not initialized")
	// ErrEventDispatching is returned when an event is dispatched while already in flight.
	ErrEventDispatching = errors.New("event is already being dispatched")
)

var eventTypePattern = regexp.MustCompile(`^[a-zA-Z.]+$`)

// ValidEventType reports whether typ is acceptable as an event type.
func ValidEventType(typ string) bool {
	return eventTypePattern.MatchString(typ)
}

// Listener is an event callback. A returned error is reported as an uncaught error.
type Listener func(*Event) error

// Target identifies where a listener is attached or an event is sent.
type Target struct {
	Kind NodeKind
	Node *html.Node // nil for the window
}

// WindowTarget is the global window object.
func WindowTarget() Target { return Target{Kind: KindWindow} }

// DocumentTarget is the document node.
func (d *Document) DocumentTarget() Target { return Target{Kind: KindDocument, Node: d.root} }

// ElementTarget wraps an element.
func ElementTarget(n *html.Node) Target { return Target{Kind: KindElement, Node: n} }

// Phase is the event propagation phase.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseCapturing
	PhaseAtTarget
	PhaseBubbling
)

// MouseEventInit carries the MouseEvent constructor dictionary.
type MouseEventInit struct {
	Bubbles    bool
	Cancelable bool
	Detail     int
	ScreenX    int
	ScreenY    int
	ClientX    int
	ClientY    int
	CtrlKey    bool
	AltKey     bool
	ShiftKey   bool
	MetaKey    bool
	Button     int
}

// Event is a synthetic or native DOM event.
type Event struct {
	Type       string
	Bubbles    bool
	Cancelable bool
	Mouse      bool
	MouseEventInit

	Target        Target
	CurrentTarget Target
	Phase         Phase

	initialized      bool
	dispatching      bool
	defaultPrevented bool
	stopped          bool
	stoppedNow       bool
}

// CreateEvent returns an uninitialized generic event, as document.createEvent("Events").
func CreateEvent() *Event {
	return &Event{}
}

// InitEvent sets the type and flags of a generic event.
func (e *Event) InitEvent(typ string, bubbles, cancelable bool) error {
	if e.dispatching {
		return ErrEventDispatching
	}
	if !ValidEventType(typ) {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, typ)
	}
	e.Type = typ
	e.Bubbles = bubbles
	e.Cancelable = cancelable
	e.initialized = true
	e.defaultPrevented = false
	e.stopped = false
	e.stoppedNow = false
	return nil
}

// NewMouseEvent constructs an initialized mouse event.
func NewMouseEvent(typ string, init MouseEventInit) (*Event, error) {
	if !ValidEventType(typ) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, typ)
	}
	return &Event{
		Type:           typ,
		Bubbles:        init.Bubbles,
		Cancelable:     init.Cancelable,
		Mouse:          true,
		MouseEventInit: init,
		initialized:    true,
	}, nil
}

func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.defaultPrevented = true
	}
}

func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

func (e *Event) StopPropagation() { e.stopped = true }

func (e *Event) StopImmediatePropagation() {
	e.stopped = true
	e.stoppedNow = true
}

// ListenerID identifies one registration so it can be removed later. Go funcs are not
// comparable, so removal goes by ID rather than by callback.
type ListenerID int

type registration struct {
	id      ListenerID
	typ     string
	fn      Listener
	capture bool
}

type listenerSet struct {
	regs []registration
}

func newListenerSet() *listenerSet { return &listenerSet{} }

func (s *listenerSet) add(id ListenerID, typ string, fn Listener, capture bool) {
	s.regs = append(s.regs, registration{id: id, typ: typ, fn: fn, capture: capture})
}

// remove drops the registration id of type typ and returns how many listeners of typ
// are left. ok is false when no such registration exists.
func (s *listenerSet) remove(typ string, id ListenerID) (remaining int, ok bool) {
	out := s.regs[:0]
	for _, r := range s.regs {
		if r.id == id && r.typ == typ {
			ok = true
			continue
		}
		if r.typ == typ {
			remaining++
		}
		out = append(out, r)
	}
	clear(s.regs[len(out):])
	s.regs = out
	return remaining, ok
}

// matching snapshots listeners so registrations made during dispatch do not run.
func (s *listenerSet) matching(typ string, phase Phase) []Listener {
	if s == nil {
		return nil
	}
	var out []Listener
	for _, r := range s.regs {
		if r.typ != typ {
			continue
		}
		switch phase {
		case PhaseCapturing:
			if !r.capture {
				continue
			}
		case PhaseBubbling:
			if r.capture {
				continue
			}
		}
		out = append(out, r.fn)
	}
	return out
}

func (d *Document) listenersOf(t Target) *listenerSet {
	switch t.Kind {
	case KindWindow:
		return d.window
	case KindDocument:
		return d.docLists
	default:
		st := d.stateFor(t.Node)
		if st.listeners == nil {
			st.listeners = newListenerSet()
		}
		return st.listeners
	}
}

// ListenerCount returns how many listeners of typ are attached to t.
func (d *Document) ListenerCount(t Target, typ string) int {
	return len(d.listenersOf(t).matching(typ, PhaseAtTarget))
}

// DispatchEvent delivers e to t through capture, target and bubble phases. It returns
// false when a listener cancelled the event. Listener failures never abort dispatch;
// they are reported through OnError hooks.
func (d *Document) DispatchEvent(t Target, e *Event) (bool, error) {
	if !e.initialized {
		return false, ErrEventNotInitialized
	}
	if e.dispatching {
		return false, ErrEventDispatching
	}
	e.dispatching = true
	e.Target = t
	defer func() {
		e.dispatching = false
		e.Phase = PhaseNone
		e.CurrentTarget = Target{}
	}()

	path := d.propagationPath(t)

	e.Phase = PhaseCapturing
	for _, step := range path {
		d.invoke(step, e)
		if e.stopped {
			return !e.defaultPrevented, nil
		}
	}

	e.Phase = PhaseAtTarget
	d.invoke(t, e)
	if e.stopped || !e.Bubbles {
		return !e.defaultPrevented, nil
	}

	e.Phase = PhaseBubbling
	for i := len(path) - 1; i >= 0; i-- {
		d.invoke(path[i], e)
		if e.stopped {
			break
		}
	}
	return !e.defaultPrevented, nil
}

// propagationPath lists the targets above t, outermost first.
func (d *Document) propagationPath(t Target) []Target {
	switch t.Kind {
	case KindWindow:
		return nil
	case KindDocument:
		return []Target{WindowTarget()}
	}
	var chain []Target
	for p := t.Node.Parent; p != nil; p = p.Parent {
		switch p.Type {
		case html.ElementNode:
			chain = append(chain, ElementTarget(p))
		case html.DocumentNode:
			chain = append(chain, d.DocumentTarget())
		}
	}
	if len(chain) > 0 && chain[len(chain)-1].Kind == KindDocument {
		chain = append(chain, WindowTarget())
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func (d *Document) invoke(t Target, e *Event) {
	e.CurrentTarget = t
	var fns []Listener
	if t.Kind == KindElement && e.Phase != PhaseCapturing {
		if h := d.handlerProperty(t.Node, "on"+e.Type); h != nil {
			fns = append(fns, h)
		}
	}
	fns = append(fns, d.listenersOf(t).matching(e.Type, e.Phase)...)
	for _, fn := range fns {
		d.call(e, fn)
		if e.stoppedNow {
			return
		}
	}
}

func (d *Document) call(e *Event, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			d.reportError(fmt.Errorf("uncaught exception in %s listener: %v", e.Type, r))
		}
	}()
	if err := fn(e); err != nil {
		d.reportError(err)
	}
}
