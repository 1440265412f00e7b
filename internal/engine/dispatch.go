package engine

import (
	"domscout/internal/dom"
	"domscout/internal/eventtable"
	"domscout/internal/logging"
)

// Resolve maps a selector, or one of the pseudo-target sentinels, to a live visible
// target.
func (c *Context) Resolve(selector string) (dom.Target, bool) {
	switch selector {
	case WindowSelector:
		return dom.WindowTarget(), true
	case DocumentSelector:
		return c.doc.DocumentTarget(), true
	}
	n, err := c.doc.QuerySelector(selector)
	if err != nil {
		logging.DispatchWarn("cannot resolve %q: %v", selector, err)
		return dom.Target{}, false
	}
	if c.hidden(n) {
		return dom.Target{}, false
	}
	return dom.ElementTarget(n), true
}

// Dispatch synthesizes eventType on the element addressed by selector. Mouse-family
// types are built with the mouse event constructor, others with the generic one; both
// bubble and are cancelable. It returns false when the target is gone or hidden, or the
// event cannot be built.
func (c *Context) Dispatch(selector, eventType string) bool {
	if c.closed {
		return false
	}
	target, ok := c.Resolve(selector)
	if !ok {
		logging.Dispatch("target %q vanished or hidden", selector)
		return false
	}

	ev, err := newEvent(eventType)
	if err != nil {
		logging.DispatchWarn("cannot build %q event: %v", eventType, err)
		return false
	}
	if _, err := c.doc.DispatchEvent(target, ev); err != nil {
		logging.DispatchWarn("dispatch of %q on %q failed: %v", eventType, selector, err)
		return false
	}
	logging.Dispatch("dispatched %s on %s", eventType, selector)
	return true
}

func newEvent(eventType string) (*dom.Event, error) {
	if eventtable.IsMouse(eventType) {
		return dom.NewMouseEvent(eventType, dom.MouseEventInit{Bubbles: true, Cancelable: true})
	}
	ev := dom.CreateEvent()
	if err := ev.InitEvent(eventType, true, true); err != nil {
		return nil, err
	}
	ev.AltKey, ev.ShiftKey, ev.CtrlKey, ev.MetaKey = false, false, false, false
	return ev, nil
}
