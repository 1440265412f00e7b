package livepage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/errgroup"

	"domscout/internal/diag"
	"domscout/internal/dom"
	"domscout/internal/engine"
	"domscout/internal/eventtable"
	"domscout/internal/hooks"
	"domscout/internal/logging"
	"domscout/internal/surface"
)

var _ surface.Backend = (*Page)(nil)

// Page is one browser tab under discovery. It implements surface.Backend.
type Page struct {
	opts Options
	page *rod.Page

	// mu serializes CDP evaluation and engine access.
	mu     sync.Mutex
	engine *engine.Context

	errors    *diag.ErrorLog
	navigated atomic.Bool

	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once
}

// snapshot is the decoded result of snapshotJS.
type snapshot struct {
	Root   *dom.Snapshot `json:"root"`
	Regs   []registration `json:"regs"`
	Timers []timerCall    `json:"timers"`
}

// registration is one add or remove seen by the shim. W and H hold the element's box
// when it was added.
type registration struct {
	Kind      dom.NodeKind `json:"kind"`
	Index     int          `json:"index"`
	Type      string       `json:"type"`
	Capture   bool         `json:"capture"`
	Remove    bool         `json:"remove"`
	Remaining int          `json:"remaining"`
	W         *float64     `json:"w"`
	H         *float64     `json:"h"`
}

type timerCall struct {
	Kind     hooks.TimerKind `json:"kind"`
	Delay    float64         `json:"delay"`
	Callable string          `json:"callable"`
}

// Open creates a tab, installs the registration shim and navigates to url.
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	rp, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	p := newPage(rp, b.opts)

	if _, err := rp.EvalOnNewDocument(shimJS); err != nil {
		_ = rp.Close()
		return nil, fmt.Errorf("install shim: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.ViewportWidth,
		Height:            b.opts.ViewportHeight,
		DeviceScaleFactor: 1.0,
	}).Call(rp); err != nil {
		logging.LiveWarn("failed to set viewport: %v", err)
	}
	if err := (proto.RuntimeEnable{}).Call(rp); err != nil {
		_ = rp.Close()
		return nil, fmt.Errorf("enable runtime domain: %w", err)
	}
	p.watch(ctx)

	if err := p.Navigate(ctx, url); err != nil {
		_ = p.Close()
		return nil, err
	}
	b.track(p)
	return p, nil
}

func newPage(rp *rod.Page, opts Options) *Page {
	return &Page{
		opts:   opts,
		page:   rp,
		errors: diag.NewErrorLog(opts.Engine.ErrorLimit),
	}
}

// watch streams uncaught exceptions into the error log and notes main-frame
// navigations, which start a new document lifetime.
func (p *Page) watch(ctx context.Context) {
	streamCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	g, gctx := errgroup.WithContext(streamCtx)
	p.group = g

	wait := p.page.Context(gctx).EachEvent(
		func(ev *proto.RuntimeExceptionThrown) {
			msg := exceptionMessage(ev)
			p.errors.Add(msg, "runtime")
			logging.LiveDebug("page exception: %s", msg)
		},
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame != nil && ev.Frame.ParentID == "" {
				p.navigated.Store(true)
			}
		},
	)
	g.Go(func() error {
		wait()
		return nil
	})
}

func exceptionMessage(ev *proto.RuntimeExceptionThrown) string {
	d := ev.ExceptionDetails
	if d == nil {
		return "unknown exception"
	}
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

// Navigate loads url and waits for the load event plus the settle time.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	nav := p.page.Context(ctx).Timeout(p.opts.NavigationTimeout)
	defer nav.CancelTimeout()
	if err := nav.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load of %s: %w", url, err)
	}
	p.navigated.Store(true)
	logging.Live("loaded %s", url)

	if p.opts.SettleTime > 0 {
		select {
		case <-time.After(p.opts.SettleTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops the event stream, discards the engine state and closes the tab.
func (p *Page) Close() error {
	var err error
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
			_ = p.group.Wait()
		}
		p.mu.Lock()
		if p.engine != nil {
			p.engine.Close()
		}
		p.mu.Unlock()
		if cerr := p.page.Close(); cerr != nil {
			err = fmt.Errorf("close page: %w", cerr)
		}
	})
	return err
}

// sync captures a snapshot and brings the engine up to date with it. Callers hold mu.
func (p *Page) sync(ctx context.Context) error {
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(snapshotJS))
	if err != nil {
		return fmt.Errorf("snapshot page: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	p.apply(snap)
	return nil
}

// apply rebuilds the document from snap and feeds the drained registrations and
// timers to the engine. A navigation since the last snapshot starts a new Context.
func (p *Page) apply(snap snapshot) {
	doc, elements := dom.Build(snap.Root)

	switch {
	case p.engine == nil:
		p.engine = engine.NewDetached(doc, p.opts.Engine)
	case p.navigated.Load():
		p.engine.Close()
		p.engine = engine.NewDetached(doc, p.opts.Engine)
		logging.Live("new document lifetime %s", doc.ID())
	default:
		p.engine.Refresh(doc)
	}
	p.navigated.Store(false)

	for _, r := range snap.Regs {
		var target dom.Target
		switch r.Kind {
		case dom.KindWindow:
			target = dom.WindowTarget()
		case dom.KindDocument:
			target = doc.DocumentTarget()
		default:
			if r.Index < 0 || r.Index >= len(elements) {
				continue
			}
			target = dom.ElementTarget(elements[r.Index])
		}
		switch {
		case r.Remove:
			p.engine.OnUnregister(target, r.Type, r.Remaining)
		case target.Kind == dom.KindElement && r.W != nil && r.H != nil:
			// Visibility is judged on the box the element had when the listener was added.
			now := doc.Box(target.Node)
			doc.SetBox(target.Node, dom.Box{Width: *r.W, Height: *r.H})
			p.engine.OnRegister(target, r.Type, r.Capture)
			doc.SetBox(target.Node, now)
		default:
			p.engine.OnRegister(target, r.Type, r.Capture)
		}
	}
	for _, t := range snap.Timers {
		delay := time.Duration(t.Delay * float64(time.Millisecond))
		p.engine.OnSchedule(t.Kind, delay, t.Callable)
	}
	logging.LiveDebug("snapshot: %d elements, %d registrations, %d timers",
		len(elements), len(snap.Regs), len(snap.Timers))
}

func (p *Page) query(ctx context.Context, fn func(c *engine.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sync(ctx); err != nil {
		return err
	}
	fn(p.engine)
	return nil
}

// ElementsWithEventHandlers implements surface.Backend.
func (p *Page) ElementsWithEventHandlers(ctx context.Context, eventFilter, tagFilter []string, start, count int) (engine.Page, error) {
	var page engine.Page
	err := p.query(ctx, func(c *engine.Context) {
		page = c.GetElementsWithEventHandlers(eventFilter, tagFilter, start, count)
	})
	return page, err
}

// EventListeners implements surface.Backend.
func (p *Page) EventListeners(ctx context.Context, eventFilter, tagFilter []string, start, count int) (engine.Page, error) {
	var page engine.Page
	err := p.query(ctx, func(c *engine.Context) {
		page = c.GetEventListeners(eventFilter, tagFilter, start, count)
	})
	return page, err
}

// Timeouts implements surface.Backend.
func (p *Page) Timeouts(ctx context.Context, start, count int) (engine.TimerPage, error) {
	var page engine.TimerPage
	err := p.query(ctx, func(c *engine.Context) { page = c.GetTimeouts(start, count) })
	return page, err
}

// Intervals implements surface.Backend.
func (p *Page) Intervals(ctx context.Context, start, count int) (engine.TimerPage, error) {
	var page engine.TimerPage
	err := p.query(ctx, func(c *engine.Context) { page = c.GetIntervals(start, count) })
	return page, err
}

// Dispatch fires eventType on the live element addressed by selector. An invalid
// event type yields false without touching the page.
func (p *Page) Dispatch(ctx context.Context, selector, eventType string) (bool, error) {
	if !dom.ValidEventType(eventType) {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.page.Context(ctx).Evaluate(rod.Eval(dispatchJS, selector, eventType, eventtable.IsMouse(eventType)))
	if err != nil {
		var evalErr *rod.EvalError
		if errors.As(err, &evalErr) {
			logging.LiveWarn("dispatch of %s on %s threw: %v", eventType, selector, err)
			return false, nil
		}
		return false, fmt.Errorf("dispatch %s on %s: %w", eventType, selector, err)
	}
	ok := res.Value.Bool()
	logging.Live("dispatch %s on %s -> %v", eventType, selector, ok)
	return ok, nil
}

// Errors implements surface.Backend.
func (p *Page) Errors(context.Context) ([]string, error) {
	return p.errors.Messages(), nil
}
