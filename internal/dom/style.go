package dom

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Box is the rendered size of an element, the offsetWidth/offsetHeight pair.
type Box struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box has no rendered area on either axis.
func (b Box) Empty() bool {
	return b.Width <= 0 && b.Height <= 0
}

type styleRule struct {
	sel   cascadia.Sel
	decls map[string]string
	order int
}

var inheritedProperties = map[string]bool{
	"cursor":     true,
	"visibility": true,
}

// Elements that never produce a layout box.
var unrenderedTags = map[string]bool{
	"head": true, "script": true, "style": true, "meta": true, "title": true,
	"link": true, "template": true, "base": true, "noscript": true,
}

var cssComment = regexp.MustCompile(`(?s)/\*.*?\*/`)

func parseStyleSheets(root *html.Node) []styleRule {
	var rules []styleRule
	order := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && TagName(n) == "style" {
			for _, r := range parseStyleSheet(TextContent(n)) {
				r.order = order
				order++
				rules = append(rules, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return rules
}

// parseStyleSheet understands flat "selectors { declarations }" blocks. At-rules are
// skipped along with anything cascadia cannot compile.
func parseStyleSheet(src string) []styleRule {
	src = cssComment.ReplaceAllString(src, "")
	var rules []styleRule
	for _, block := range strings.Split(src, "}") {
		head, body, ok := strings.Cut(block, "{")
		if !ok {
			continue
		}
		head = strings.TrimSpace(head)
		if head == "" || strings.HasPrefix(head, "@") {
			continue
		}
		decls := parseDeclarations(body)
		if len(decls) == 0 {
			continue
		}
		for _, part := range strings.Split(head, ",") {
			sel, err := cascadia.Parse(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			rules = append(rules, styleRule{sel: sel, decls: decls})
		}
	}
	return rules
}

func parseDeclarations(body string) map[string]string {
	decls := make(map[string]string)
	for _, decl := range strings.Split(body, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		if prop == "" || val == "" {
			continue
		}
		decls[prop] = strings.ToLower(val)
	}
	return decls
}

// SetStyle forces a computed style value for n, overriding stylesheets.
func (d *Document) SetStyle(n *html.Node, prop, val string) {
	st := d.stateFor(n)
	if st.style == nil {
		st.style = make(map[string]string)
	}
	st.style[strings.ToLower(prop)] = strings.ToLower(val)
}

// ComputedStyle resolves one CSS property for n. Precedence runs explicit value,
// inline style attribute, matching stylesheet rule, user-agent default, then the
// parent's value for inherited properties.
func (d *Document) ComputedStyle(n *html.Node, prop string) string {
	prop = strings.ToLower(prop)
	if n == nil || n.Type != html.ElementNode {
		return initialValue(prop)
	}
	if st, ok := d.state[n]; ok && st.style != nil {
		if v, ok := st.style[prop]; ok {
			return v
		}
	}
	if inline, ok := Attr(n, "style"); ok {
		if v, ok := parseDeclarations(inline)[prop]; ok {
			return v
		}
	}
	if v, ok := d.sheetValue(n, prop); ok {
		return v
	}
	if v, ok := userAgentValue(n, prop); ok {
		return v
	}
	if inheritedProperties[prop] {
		if p := ParentElement(n); p != nil {
			return d.ComputedStyle(p, prop)
		}
	}
	return initialValue(prop)
}

func (d *Document) sheetValue(n *html.Node, prop string) (string, bool) {
	var best *styleRule
	for i := range d.sheet {
		r := &d.sheet[i]
		v, ok := r.decls[prop]
		if !ok || v == "inherit" || !r.sel.Match(n) {
			continue
		}
		if best == nil || !r.sel.Specificity().Less(best.sel.Specificity()) {
			best = r
		}
	}
	if best == nil {
		return "", false
	}
	return best.decls[prop], true
}

func userAgentValue(n *html.Node, prop string) (string, bool) {
	tag := TagName(n)
	switch prop {
	case "cursor":
		if tag == "a" || tag == "area" {
			if _, ok := Attr(n, "href"); ok {
				return "pointer", true
			}
		}
	case "display":
		if unrenderedTags[tag] {
			return "none", true
		}
		if _, ok := Attr(n, "hidden"); ok {
			return "none", true
		}
	}
	return "", false
}

func initialValue(prop string) string {
	switch prop {
	case "cursor":
		return "auto"
	case "visibility":
		return "visible"
	case "display":
		return "inline"
	}
	return ""
}

// SetBox records the rendered size of n, overriding the nominal layout.
func (d *Document) SetBox(n *html.Node, b Box) {
	box := b
	d.stateFor(n).box = &box
}

// Box returns the rendered size of n. Detached nodes and nodes under a display:none
// ancestor have an empty box. Without an explicit size, rendered elements get a nominal
// 1x1 box unless their inline style pins both dimensions to zero.
func (d *Document) Box(n *html.Node) Box {
	if n == nil || !d.Contains(n) {
		return Box{}
	}
	if st, ok := d.state[n]; ok && st.box != nil {
		return *st.box
	}
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if d.ComputedStyle(p, "display") == "none" {
			return Box{}
		}
	}
	if inline, ok := Attr(n, "style"); ok {
		decls := parseDeclarations(inline)
		if isZeroLength(decls["width"]) && isZeroLength(decls["height"]) {
			return Box{}
		}
	}
	return Box{Width: 1, Height: 1}
}

func isZeroLength(v string) bool {
	switch v {
	case "0", "0px", "0em", "0rem", "0%":
		return true
	}
	return false
}
