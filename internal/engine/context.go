// Package engine discovers the interaction surface of a document and replays it.
//
// A Context is bound to one document lifetime. It owns the explicit registrations and
// timers captured through platform hooks and the per-node caches of declarative and
// inherited handlers. Queries walk the current DOM, merge those sources, deduplicate and
// return a page of records.
package engine

import (
	"time"

	"golang.org/x/net/html"

	"domscout/internal/diag"
	"domscout/internal/dom"
	"domscout/internal/eventtable"
	"domscout/internal/hooks"
	"domscout/internal/logging"
	"domscout/internal/selector"
	"domscout/internal/sidetable"
)

// Options configures a Context.
type Options struct {
	Selector selector.Options
	// ErrorLimit bounds the diagnostic error list.
	ErrorLimit int
}

// DefaultOptions returns the default selector strategies and error limit.
func DefaultOptions() Options {
	return Options{Selector: selector.DefaultOptions(), ErrorLimit: diag.DefaultLimit}
}

// Context is the document-scoped discovery state. Its methods must be called from one
// goroutine at a time.
type Context struct {
	doc       *dom.Document
	opts      Options
	sel       *selector.Synthesizer
	installer *hooks.Installer
	errors    *diag.ErrorLog

	explicit  []explicitReg
	timeouts  []TimerRecord
	intervals []TimerRecord

	self      *sidetable.Table[html.Node, []Record]
	inherited *sidetable.Table[html.Node, []Record]

	closed bool
}

var _ hooks.Interceptor = (*Context)(nil)

// New creates a Context for doc and installs the platform hooks.
func New(doc *dom.Document, opts Options) *Context {
	c := &Context{
		opts:   opts,
		errors: diag.NewErrorLog(opts.ErrorLimit),
	}
	c.installer = hooks.NewInstaller(c)
	c.bind(doc)
	c.Initialize()
	doc.OnError(c.errors.Record)
	logging.Discovery("context created for document %s", doc.ID())
	return c
}

// NewDetached creates a Context whose registrations are fed by an external adapter
// through OnRegister and OnSchedule instead of in-process hooks.
func NewDetached(doc *dom.Document, opts Options) *Context {
	c := &Context{
		opts:   opts,
		errors: diag.NewErrorLog(opts.ErrorLimit),
	}
	c.installer = hooks.NewInstaller(c)
	c.bind(doc)
	return c
}

func (c *Context) bind(doc *dom.Document) {
	c.doc = doc
	c.sel = selector.New(doc.Root(), c.opts.Selector)
	c.self = sidetable.New[html.Node, []Record]()
	c.inherited = sidetable.New[html.Node, []Record]()
}

// Initialize installs the hooks on the document platform. Repeated calls are no-ops
// and return false.
func (c *Context) Initialize() bool {
	return c.installer.Install(c.doc.Platform)
}

// Refresh rebinds the Context to a new snapshot of the same document lifetime. Captured
// registrations, timers and errors are kept; node caches start over because the
// snapshot has new node identities.
func (c *Context) Refresh(doc *dom.Document) {
	c.bind(doc)
	logging.DiscoveryDebug("context refreshed onto snapshot %s", doc.ID())
}

// Close releases everything the Context owns. Queries on a closed Context return empty
// pages and Dispatch returns false.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.explicit = nil
	c.timeouts = nil
	c.intervals = nil
	c.self.Clear()
	c.inherited.Clear()
	logging.Discovery("context closed for document %s", c.doc.ID())
}

// Errors returns the diagnostic error list.
func (c *Context) Errors() *diag.ErrorLog { return c.errors }

// OnRegister records an explicit listener registration that passes the validity table.
func (c *Context) OnRegister(target dom.Target, eventType string, capture bool) {
	if c.closed {
		return
	}
	captured := capture
	switch target.Kind {
	case dom.KindWindow, dom.KindDocument:
		if !eventtable.ValidForGlobal(eventType) {
			logging.HooksDebug("ignoring %s listener on %s", eventType, pseudoName(target.Kind))
			return
		}
		name := pseudoName(target.Kind)
		c.explicit = append(c.explicit, explicitReg{Record: Record{
			TagName:   name,
			NodeKind:  target.Kind,
			Selector:  name,
			EventType: eventType,
			Source:    SourceExplicit,
			Capture:   &captured,
		}})
	default:
		n := target.Node
		if c.hidden(n) {
			return
		}
		tag := dom.TagName(n)
		if !eventtable.ValidForElement(tag, eventType) {
			logging.HooksDebug("ignoring %s listener on <%s>", eventType, tag)
			return
		}
		sel, ok := c.sel.Compute(n)
		if !ok {
			return
		}
		c.explicit = append(c.explicit, explicitReg{node: n, Record: Record{
			TagName:   tag,
			NodeKind:  dom.KindElement,
			Selector:  sel,
			EventType: eventType,
			Source:    SourceExplicit,
			Capture:   &captured,
			Text:      superTrim(dom.TextContent(n)),
		}})
	}
}

// OnUnregister drops the explicit records of eventType on target once no listener of
// that type remains there. Element records match by node, or by selector when the node
// comes from a later snapshot of the same document.
func (c *Context) OnUnregister(target dom.Target, eventType string, remaining int) {
	if c.closed || remaining > 0 {
		return
	}
	var sel string
	if target.Kind == dom.KindElement {
		sel, _ = c.sel.Compute(target.Node)
	}
	kept := c.explicit[:0]
	dropped := 0
	for _, reg := range c.explicit {
		if reg.EventType == eventType && c.owns(reg, target, sel) {
			dropped++
			continue
		}
		kept = append(kept, reg)
	}
	clear(c.explicit[len(kept):])
	c.explicit = kept
	if dropped > 0 {
		logging.HooksDebug("dropped %d %s registrations after removal", dropped, eventType)
	}
}

// OnSchedule records a timer.
func (c *Context) OnSchedule(kind hooks.TimerKind, delay time.Duration, callable string) {
	if c.closed {
		return
	}
	rec := newTimerRecord(kind, delay, callable)
	if kind == hooks.Interval {
		c.intervals = append(c.intervals, rec)
		return
	}
	c.timeouts = append(c.timeouts, rec)
}

// owns reports whether reg was registered on target. A record whose node belongs to an
// earlier snapshot is matched by its selector instead.
func (c *Context) owns(reg explicitReg, target dom.Target, sel string) bool {
	if reg.NodeKind != target.Kind {
		return false
	}
	if target.Kind != dom.KindElement || reg.node == target.Node {
		return true
	}
	return sel != "" && reg.Selector == sel && !c.doc.Contains(reg.node)
}

func (c *Context) hidden(n *html.Node) bool {
	return n == nil || c.doc.Box(n).Empty()
}

func pseudoName(kind dom.NodeKind) string {
	if kind == dom.KindWindow {
		return WindowSelector
	}
	return DocumentSelector
}
