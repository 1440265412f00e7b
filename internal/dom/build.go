package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Snapshot is a serialized element subtree captured from another host, such as a
// browser page. Text nodes have an empty Tag.
type Snapshot struct {
	Tag      string      `json:"tag,omitempty"`
	Attrs    [][2]string `json:"attrs,omitempty"`
	Text     string      `json:"text,omitempty"`
	Children []*Snapshot `json:"children,omitempty"`

	// Rendered layout and computed cursor at capture time.
	Width  float64 `json:"w,omitempty"`
	Height float64 `json:"h,omitempty"`
	Cursor string  `json:"cursor,omitempty"`

	// Props names on* slots holding a function that no attribute explains.
	Props []string `json:"props,omitempty"`
}

// Build turns a snapshot of the <html> element into a Document. The returned slice
// holds the created elements in document order, so index i addresses the i-th element
// the capturing side visited. Captured boxes and cursors are pinned with SetBox and
// SetStyle; captured properties are filled with no-op listeners.
func Build(root *Snapshot) (*Document, []*html.Node) {
	docNode := &html.Node{Type: html.DocumentNode}
	var elements []*html.Node
	if root != nil {
		docNode.AppendChild(buildNode(root, &elements))
	}
	d := NewDocument(docNode)

	var i int
	var apply func(s *Snapshot)
	apply = func(s *Snapshot) {
		if s.Tag == "" {
			return
		}
		n := elements[i]
		i++
		d.SetBox(n, Box{Width: s.Width, Height: s.Height})
		if s.Cursor != "" {
			d.SetStyle(n, "cursor", s.Cursor)
		}
		for _, p := range s.Props {
			d.SetHandlerProperty(n, p, opaqueListener)
		}
		for _, c := range s.Children {
			apply(c)
		}
	}
	if root != nil {
		apply(root)
	}
	return d, elements
}

func buildNode(s *Snapshot, elements *[]*html.Node) *html.Node {
	if s.Tag == "" {
		return &html.Node{Type: html.TextNode, Data: s.Text}
	}
	tag := strings.ToLower(s.Tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for _, kv := range s.Attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: strings.ToLower(kv[0]), Val: kv[1]})
	}
	*elements = append(*elements, n)
	for _, c := range s.Children {
		n.AppendChild(buildNode(c, elements))
	}
	return n
}

func opaqueListener(*Event) error { return nil }
