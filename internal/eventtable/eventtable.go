// Package eventtable holds the static knowledge of which event types are meaningful
// on which targets.
package eventtable

import "slices"

// Universal lists the mouse interactions valid on every element.
var Universal = []string{
	"click", "dblclick", "mousedown", "mousemove", "mouseout", "mouseover", "mouseup",
}

// PerTag extends Universal for specific tags.
var PerTag = map[string][]string{
	"body":     {"load"},
	"button":   {"focus", "blur"},
	"form":     {"submit", "reset"},
	"input":    {"select", "change", "focus", "blur", "keydown", "keypress", "keyup", "input"},
	"label":    {"focus", "blur"},
	"textarea": {"select", "change", "focus", "blur", "keydown", "keypress", "keyup", "input"},
	"select":   {"change", "focus", "blur"},
}

// Global lists the events worth recording on the window and document.
var Global = []string{
	"blur", "change", "click", "dblclick", "focus", "input", "keydown", "keypress",
	"keyup", "load", "mousedown", "mousemove", "mouseout", "mouseover", "mouseup",
	"reset", "select", "submit",
}

// Mouse lists the types synthesized as mouse events on dispatch.
var Mouse = []string{
	"mousedown", "mouseup", "click", "dblclick", "mousemove", "mouseover", "mouseout",
}

// InheritingTags are the descendant tags that pick up handlers from ancestors.
var InheritingTags = []string{
	"a", "div", "input", "textarea", "select", "form", "li", "span", "button",
}

// ValidForElement reports whether typ is meaningful on an element with the given tag.
func ValidForElement(tag, typ string) bool {
	if slices.Contains(Universal, typ) {
		return true
	}
	return slices.Contains(PerTag[tag], typ)
}

// ValidForGlobal reports whether typ is meaningful on the window or document.
func ValidForGlobal(typ string) bool {
	return slices.Contains(Global, typ)
}

// IsMouse reports whether typ is dispatched as a mouse event.
func IsMouse(typ string) bool {
	return slices.Contains(Mouse, typ)
}

// Inherits reports whether elements of tag receive inherited handler records.
func Inherits(tag string) bool {
	return slices.Contains(InheritingTags, tag)
}

// ElementTypes returns every event type valid for tag, universal ones first.
func ElementTypes(tag string) []string {
	out := slices.Clone(Universal)
	for _, typ := range PerTag[tag] {
		if !slices.Contains(out, typ) {
			out = append(out, typ)
		}
	}
	return out
}
