// Package dom is the in-memory host platform: an HTML node tree with the pieces of a
// browser page the discovery engine depends on (event registration, timers, computed
// cursor, layout boxes, handler properties and event dispatch).
//
// Nodes are plain *html.Node values from golang.org/x/net/html. Every piece of
// host-only state (listeners, handler properties, explicit layout) lives in side maps
// owned by the Document, so a node removed from the document drops that state with it.
package dom

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// NodeKind classifies event targets. Values follow the DOM nodeType constants; the
// window pseudo-target has no node and uses -1.
type NodeKind int

const (
	KindWindow   NodeKind = -1
	KindElement  NodeKind = 1
	KindDocument NodeKind = 9
)

// Document is one page lifetime.
type Document struct {
	id    string
	root  *html.Node
	gq    *goquery.Document
	state map[*html.Node]*nodeState

	window   *listenerSet
	docLists *listenerSet

	// Platform holds the registration and scheduling primitives. Page code always
	// goes through these fields so an interception layer can wrap them.
	Platform *Platform

	sheet        []styleRule
	scripts      map[string]Listener
	timers       *timerQueue
	nextListener ListenerID
	onErrors     []func(error)
}

type nodeState struct {
	listeners *listenerSet
	props     map[string]Listener
	style     map[string]string
	box       *Box
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return newDocument(gq), nil
}

// ParseString parses an HTML document held in memory.
func ParseString(src string) (*Document, error) {
	return Parse(strings.NewReader(src))
}

// NewDocument wraps an existing node tree. root must be an html.DocumentNode.
func NewDocument(root *html.Node) *Document {
	return newDocument(goquery.NewDocumentFromNode(root))
}

func newDocument(gq *goquery.Document) *Document {
	d := &Document{
		id:       uuid.NewString(),
		root:     gq.Nodes[0],
		gq:       gq,
		state:    make(map[*html.Node]*nodeState),
		window:   newListenerSet(),
		docLists: newListenerSet(),
		scripts:  make(map[string]Listener),
		timers:   newTimerQueue(),
	}
	d.Platform = d.nativePlatform()
	d.sheet = parseStyleSheets(d.root)
	return d
}

// ID identifies this document lifetime.
func (d *Document) ID() string { return d.id }

// Root returns the html.DocumentNode.
func (d *Document) Root() *html.Node { return d.root }

// DocumentElement returns the <html> element, or nil.
func (d *Document) DocumentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	nodes := d.gq.Find("body").Nodes
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func (d *Document) stateFor(n *html.Node) *nodeState {
	st, ok := d.state[n]
	if !ok {
		st = &nodeState{}
		d.state[n] = st
	}
	return st
}

// Elements returns all elements in document order, or only those whose tag name is in
// tags when tags is non-empty.
// Tags that do not form a valid selector group are matched by exact name instead.
func (d *Document) Elements(tags []string) []*html.Node {
	if len(tags) == 0 {
		return d.gq.Find("*").Nodes
	}
	group := strings.Join(tags, ",")
	if _, err := cascadia.Compile(group); err == nil {
		return d.gq.Find(group).Nodes
	}
	var out []*html.Node
	for _, n := range d.gq.Find("*").Nodes {
		if slices.Contains(tags, TagName(n)) {
			out = append(out, n)
		}
	}
	return out
}

// QuerySelectorAll returns every element matching sel in document order.
func (d *Document) QuerySelectorAll(sel string) ([]*html.Node, error) {
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return compiled.MatchAll(d.root), nil
}

// QuerySelector returns the first element matching sel, or nil.
func (d *Document) QuerySelector(sel string) (*html.Node, error) {
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return compiled.MatchFirst(d.root), nil
}

// GetElementByID returns the first element whose id attribute equals id.
func (d *Document) GetElementByID(id string) *html.Node {
	var found *html.Node
	walkElements(d.root, func(n *html.Node) bool {
		if v, ok := Attr(n, "id"); ok && v == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// AppendChild attaches child as the last child of parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.AppendChild(child)
}

// Remove detaches n from the tree and forgets host state for n and its subtree.
func (d *Document) Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	var forget func(*html.Node)
	forget = func(x *html.Node) {
		delete(d.state, x)
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			forget(c)
		}
	}
	forget(n)
}

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: strings.ToLower(tag)}
}

// SetAttribute sets or replaces an attribute value.
func (d *Document) SetAttribute(n *html.Node, key, val string) {
	key = strings.ToLower(key)
	d.resetReflectedProperty(n, key)
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttribute deletes an attribute if present.
func (d *Document) RemoveAttribute(n *html.Node, key string) {
	key = strings.ToLower(key)
	d.resetReflectedProperty(n, key)
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

// Writing an on* attribute replaces whatever was assigned to the matching slot.
func (d *Document) resetReflectedProperty(n *html.Node, key string) {
	if !strings.HasPrefix(key, "on") {
		return
	}
	if st, ok := d.state[n]; ok && st.props != nil {
		delete(st.props, key)
	}
}

// OnError registers a hook receiving uncaught errors from listeners and timers.
func (d *Document) OnError(fn func(error)) {
	d.onErrors = append(d.onErrors, fn)
}

func (d *Document) reportError(err error) {
	for _, fn := range d.onErrors {
		fn(err)
	}
}

// Attr returns the value of an un-namespaced attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// TagName returns the lowercase tag name of an element.
func TagName(n *html.Node) string {
	return strings.ToLower(n.Data)
}

// TextContent concatenates the text of every descendant text node.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		if x.Type == html.TextNode {
			b.WriteString(x.Data)
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// ParentElement returns the nearest element ancestor, or nil when the parent is the
// document node or absent.
func ParentElement(n *html.Node) *html.Node {
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		return n.Parent
	}
	return nil
}

func walkElements(n *html.Node, fn func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !fn(c) {
			return false
		}
		if !walkElements(c, fn) {
			return false
		}
	}
	return true
}
