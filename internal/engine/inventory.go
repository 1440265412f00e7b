package engine

import (
	"time"

	"golang.org/x/net/html"

	"domscout/internal/dom"
	"domscout/internal/logging"
)

const slowQuery = 50 * time.Millisecond

// GetElementsWithEventHandlers returns declared and inherited handlers of visible
// elements in document order. Empty filters mean no restriction. The first start unique
// records are skipped and at most count are returned.
func (c *Context) GetElementsWithEventHandlers(eventFilter, tagFilter []string, start, count int) Page {
	if c.closed || count <= 0 {
		return Page{}
	}
	timer := logging.StartTimer(logging.CategoryDiscovery, "GetElementsWithEventHandlers")
	defer timer.StopWithThreshold(slowQuery)

	seen := deduper{}
	skipped := 0
	page := Page{}
	for _, n := range c.doc.Elements(tagFilter) {
		if c.hidden(n) || !matchesFilter(tagFilter, dom.TagName(n)) {
			continue
		}
		merged := append(append([]Record(nil), c.extractDeclarative(n)...), c.extractInherited(n)...)
		for _, r := range merged {
			if !matchesFilter(eventFilter, r.EventType) || !seen.add(r) {
				continue
			}
			if skipped < start {
				skipped++
				continue
			}
			page = append(page, r)
			if len(page) >= count {
				return page
			}
		}
	}
	return page
}

// GetEventListeners returns the hook-captured registrations matching the filters. When
// a window or document registration is among them and the event filter admits click,
// every visible element with a pointer cursor is added as an affordance click record.
func (c *Context) GetEventListeners(eventFilter, tagFilter []string, start, count int) Page {
	if c.closed || count <= 0 {
		return Page{}
	}
	seen := deduper{}
	var all []Record
	global := false
	for _, reg := range c.explicit {
		r := reg.Record
		if !matchesFilter(tagFilter, r.TagName) || !matchesFilter(eventFilter, r.EventType) {
			continue
		}
		if !seen.add(r) {
			continue
		}
		all = append(all, r)
		if r.NodeKind == dom.KindWindow || r.NodeKind == dom.KindDocument {
			global = true
		}
	}

	if global && matchesFilter(eventFilter, "click") {
		for _, r := range c.affordances(tagFilter) {
			if seen.add(r) {
				all = append(all, r)
			}
		}
	}
	return slicePage(all, start, count)
}

// affordances yields a click record for each visible element whose computed cursor is
// pointer.
func (c *Context) affordances(tagFilter []string) []Record {
	var out []Record
	for _, n := range c.doc.Elements(tagFilter) {
		if !matchesFilter(tagFilter, dom.TagName(n)) || c.hidden(n) {
			continue
		}
		if c.doc.ComputedStyle(n, "cursor") != "pointer" {
			continue
		}
		if r, ok := c.affordance(n); ok {
			out = append(out, r)
		}
	}
	logging.DiscoveryDebug("affordance scan produced %d records", len(out))
	return out
}

func (c *Context) affordance(n *html.Node) (Record, bool) {
	sel, ok := c.sel.Compute(n)
	if !ok {
		return Record{}, false
	}
	return Record{
		TagName:   dom.TagName(n),
		NodeKind:  dom.KindElement,
		Selector:  sel,
		EventType: "click",
		Source:    SourceAffordance,
		Text:      superTrim(dom.TextContent(n)),
	}, true
}

// GetTimeouts pages over captured one-shot timers.
func (c *Context) GetTimeouts(start, count int) TimerPage {
	return sliceTimers(c.timeouts, start, count)
}

// GetIntervals pages over captured repeating timers.
func (c *Context) GetIntervals(start, count int) TimerPage {
	return sliceTimers(c.intervals, start, count)
}

func slicePage(records []Record, start, count int) Page {
	lo, hi, ok := bounds(len(records), start, count)
	if !ok {
		return Page{}
	}
	out := make(Page, hi-lo)
	copy(out, records[lo:hi])
	return out
}

func sliceTimers(records []TimerRecord, start, count int) TimerPage {
	lo, hi, ok := bounds(len(records), start, count)
	if !ok {
		return TimerPage{}
	}
	out := make(TimerPage, hi-lo)
	copy(out, records[lo:hi])
	return out
}

func bounds(n, start, count int) (int, int, bool) {
	if start < 0 {
		start = 0
	}
	if count <= 0 || start >= n {
		return 0, 0, false
	}
	if count < n-start {
		return start, start + count, true
	}
	return start, n, true
}
