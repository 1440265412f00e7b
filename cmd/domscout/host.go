package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"domscout/internal/config"
	"domscout/internal/diag"
	"domscout/internal/dom"
	"domscout/internal/engine"
	"domscout/internal/livepage"
	"domscout/internal/selector"
	"domscout/internal/surface"
)

const (
	hostStatic = "static"
	hostLive   = "live"
)

// host is an opened target: an in-memory document or a Chrome tab.
type host struct {
	target  string
	kind    string
	backend surface.Backend
	close   func() error
}

func engineOptions(c *config.Config) engine.Options {
	return engine.Options{
		Selector: selector.Options{
			Strategies:         c.Selector.Strategies,
			PrefixTag:          c.Selector.PrefixTag,
			IDBlacklist:        c.Selector.IDBlacklist,
			ClassBlacklist:     c.Selector.ClassBlacklist,
			AttributeBlacklist: c.Selector.AttributeBlacklist,
			AttributeWhitelist: c.Selector.AttributeWhitelist,
		},
		ErrorLimit: diag.DefaultLimit,
	}
}

func liveOptions(c *config.Config) livepage.Options {
	return livepage.Options{
		DebuggerURL:       c.Browser.DebuggerURL,
		Launch:            c.Browser.Launch,
		Headless:          c.Browser.Headless,
		ViewportWidth:     c.Browser.ViewportWidth,
		ViewportHeight:    c.Browser.ViewportHeight,
		NavigationTimeout: c.GetNavigationTimeout(),
		SettleTime:        c.GetSettleTime(),
		Engine:            engineOptions(c),
	}
}

func isURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "file://")
}

func openHost(ctx context.Context, target string) (*host, error) {
	if isURL(target) || liveHost {
		return openLive(ctx, target)
	}
	return openStatic(target)
}

func openStatic(path string) (*host, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	c := engine.New(doc, engineOptions(cfg))
	logger.Debug("opened static document", zap.String("path", path), zap.String("document", doc.ID()))
	return &host{
		target:  path,
		kind:    hostStatic,
		backend: surface.Local(c),
		close:   func() error { c.Close(); return nil },
	}, nil
}

func loadDocument(path string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	doc, err := dom.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func openLive(ctx context.Context, target string) (*host, error) {
	url := target
	if !isURL(target) {
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", target, err)
		}
		url = "file://" + filepath.ToSlash(abs)
	}

	b, err := livepage.Start(ctx, liveOptions(cfg))
	if err != nil {
		return nil, err
	}
	p, err := b.Open(ctx, url)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	logger.Debug("opened live page", zap.String("url", url))
	return &host{
		target:  url,
		kind:    hostLive,
		backend: p,
		close:   b.Close,
	}, nil
}
