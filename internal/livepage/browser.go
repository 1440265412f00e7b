// Package livepage runs the discovery engine against a real browser page over the
// Chrome DevTools protocol.
//
// A script injected before any page script wraps the registration and timer
// primitives and queues what it sees. Every query evaluates a snapshot of the DOM
// (structure, rendered boxes, cursors, handler properties), rebuilds it as a
// dom.Document and drains the queues into a detached engine.Context, so the inventory
// rules are the ones the in-memory host uses.
package livepage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"domscout/internal/engine"
	"domscout/internal/logging"
)

// Options configures the browser and the pages opened in it.
type Options struct {
	DebuggerURL       string
	Launch            []string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	SettleTime        time.Duration
	Engine            engine.Options
}

// DefaultOptions returns headless defaults.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
		SettleTime:        500 * time.Millisecond,
		Engine:            engine.DefaultOptions(),
	}
}

// Browser owns one Chrome connection.
type Browser struct {
	opts     Options
	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
	pages    []*Page
}

// Start connects to opts.DebuggerURL, or launches Chrome when it is empty.
func Start(ctx context.Context, opts Options) (*Browser, error) {
	controlURL := opts.DebuggerURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = newLauncher(opts)
		url, err := l.Launch()
		if err != nil && len(opts.Launch) > 1 {
			logging.LiveWarn("launch with custom flags failed, retrying plain: %v", err)
			l = launcher.New().Bin(opts.Launch[0]).Headless(opts.Headless)
			url, err = l.Launch()
		}
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	logging.Live("connected to %s", controlURL)
	return &Browser{opts: opts, browser: browser, launched: l}, nil
}

func newLauncher(opts Options) *launcher.Launcher {
	l := launcher.New().Headless(opts.Headless)
	if len(opts.Launch) == 0 {
		return l
	}
	l = l.Bin(opts.Launch[0])
	for _, raw := range opts.Launch[1:] {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// Close closes every open page and the browser. A browser this package launched is
// killed.
func (b *Browser) Close() error {
	b.mu.Lock()
	pages := b.pages
	b.pages = nil
	b.mu.Unlock()

	var errs []error
	for _, p := range pages {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if b.launched != nil {
		b.launched.Kill()
	}
	return errors.Join(errs...)
}

func (b *Browser) track(p *Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages = append(b.pages, p)
}
