package dom

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

var callStatement = regexp.MustCompile(`^([A-Za-z_$][\w$.]*)\s*\((.*)\)$`)

// DefineFunction makes fn callable by name from inline handler attributes such as
// onclick="save()".
func (d *Document) DefineFunction(name string, fn Listener) {
	d.scripts[name] = fn
}

// SetHandlerProperty assigns the on<type> slot of n, as el.onclick = fn. A nil fn
// clears the slot even when the matching attribute is present.
func (d *Document) SetHandlerProperty(n *html.Node, name string, fn Listener) {
	st := d.stateFor(n)
	if st.props == nil {
		st.props = make(map[string]Listener)
	}
	st.props[strings.ToLower(name)] = fn
}

// HandlerProperties returns every non-empty on* slot of n. Attributes reflect into
// their slots, so an element with onclick="f()" reports "onclick" here too.
func (d *Document) HandlerProperties(n *html.Node) map[string]Listener {
	out := make(map[string]Listener)
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.HasPrefix(a.Key, "on") {
			out[a.Key] = d.compileHandler(a.Val)
		}
	}
	if st, ok := d.state[n]; ok {
		for name, fn := range st.props {
			if fn == nil {
				delete(out, name)
				continue
			}
			out[name] = fn
		}
	}
	return out
}

// HandlerPropertyNames returns the keys of HandlerProperties in sorted order.
func (d *Document) HandlerPropertyNames(n *html.Node) []string {
	props := d.HandlerProperties(n)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Document) handlerProperty(n *html.Node, name string) Listener {
	if st, ok := d.state[n]; ok {
		if fn, set := st.props[name]; set {
			return fn
		}
	}
	if body, ok := Attr(n, name); ok {
		return d.compileHandler(body)
	}
	return nil
}

// compileHandler turns an inline handler body into a listener. Bodies are sequences of
// calls to functions registered with DefineFunction plus "return false"; anything else
// is inert.
func (d *Document) compileHandler(body string) Listener {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "javascript:")
	return func(e *Event) error {
		for _, stmt := range strings.Split(body, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if stmt == "return false" {
				e.PreventDefault()
				continue
			}
			m := callStatement.FindStringSubmatch(stmt)
			if m == nil {
				continue
			}
			fn, ok := d.scripts[m[1]]
			if !ok {
				return fmt.Errorf("ReferenceError: %s is not defined", m[1])
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	}
}
