package engine

import (
	"strings"

	"golang.org/x/net/html"

	"domscout/internal/dom"
	"domscout/internal/eventtable"
	"domscout/internal/logging"
)

const handlerPrefixLen = len("on")

// extractDeclarative returns the handlers n declares through on* attributes and on*
// property slots. Results are unfiltered and computed once per node.
func (c *Context) extractDeclarative(n *html.Node) []Record {
	return c.self.LoadOrCompute(n, func() []Record {
		return c.scanDeclarative(n)
	})
}

func (c *Context) scanDeclarative(n *html.Node) []Record {
	tag := dom.TagName(n)
	var (
		records  []Record
		selector string
		resolved bool
		text     string
	)
	// The selector and text are only needed once the node turns out to declare a handler.
	resolve := func() bool {
		if !resolved {
			resolved = true
			var ok bool
			selector, ok = c.sel.Compute(n)
			if !ok {
				logging.DiscoveryDebug("<%s> declares handlers but has no unique selector", tag)
				selector = ""
			}
			text = superTrim(dom.TextContent(n))
		}
		return selector != ""
	}

	fromAttributes := make(map[string]bool)
	for _, a := range n.Attr {
		if a.Namespace != "" || len(a.Key) <= handlerPrefixLen || !strings.HasPrefix(a.Key, "on") {
			continue
		}
		eventType := strings.ToLower(a.Key[handlerPrefixLen:])
		if !eventtable.ValidForElement(tag, eventType) {
			continue
		}
		if !resolve() {
			return nil
		}
		fromAttributes[eventType] = true
		records = append(records, Record{
			TagName:   tag,
			NodeKind:  dom.KindElement,
			Selector:  selector,
			EventType: eventType,
			Source:    SourceAttribute,
			Handler:   a.Val,
			Text:      text,
		})
	}

	for _, name := range c.doc.HandlerPropertyNames(n) {
		if len(name) <= handlerPrefixLen {
			continue
		}
		eventType := strings.ToLower(name[handlerPrefixLen:])
		if fromAttributes[eventType] || !eventtable.ValidForElement(tag, eventType) {
			continue
		}
		if !resolve() {
			return nil
		}
		records = append(records, Record{
			TagName:   tag,
			NodeKind:  dom.KindElement,
			Selector:  selector,
			EventType: eventType,
			Source:    SourceProperty,
			Handler:   "function " + name,
			Text:      text,
		})
	}
	return records
}

// extractInherited attributes ancestor-declared handlers to n, for the tags that
// meaningfully receive bubbled events. Event validity is not re-checked for n.
func (c *Context) extractInherited(n *html.Node) []Record {
	return c.inherited.LoadOrCompute(n, func() []Record {
		return c.scanInherited(n)
	})
}

func (c *Context) scanInherited(n *html.Node) []Record {
	tag := dom.TagName(n)
	if !eventtable.Inherits(tag) {
		return nil
	}
	var (
		records  []Record
		selector string
		text     string
	)
	for p := dom.ParentElement(n); p != nil; p = dom.ParentElement(p) {
		declared := c.extractDeclarative(p)
		if len(declared) == 0 {
			continue
		}
		if selector == "" {
			var ok bool
			if selector, ok = c.sel.Compute(n); !ok {
				return nil
			}
			text = superTrim(dom.TextContent(n))
		}
		for _, r := range declared {
			r.TagName = tag
			r.Selector = selector
			r.NodeKind = dom.KindElement
			r.Text = text
			r.Source = SourceInherited
			records = append(records, r)
		}
	}
	return records
}
