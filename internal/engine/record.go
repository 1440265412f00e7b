package engine

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/net/html"

	"domscout/internal/dom"
	"domscout/internal/hooks"
)

// Source names the mechanism that discovered an interaction.
type Source string

const (
	SourceExplicit   Source = "explicit"
	SourceAttribute  Source = "attribute"
	SourceProperty   Source = "property"
	SourceInherited  Source = "inherited"
	SourceAffordance Source = "affordance"
)

// Sentinel selectors and tag names for the two pseudo-targets.
const (
	WindowSelector   = "!window"
	DocumentSelector = "!document"
)

// Record is one discovered interaction.
type Record struct {
	TagName   string       `json:"tag_name"`
	NodeKind  dom.NodeKind `json:"node_type"`
	Selector  string       `json:"selector"`
	EventType string       `json:"event_type"`
	Source    Source       `json:"source"`
	Capture   *bool        `json:"use_capture,omitempty"`
	Handler   string       `json:"handler,omitempty"`
	Text      string       `json:"text_content"`
}

// explicitReg is a hook-captured record plus the element it was registered on. node is
// nil for the window and document.
type explicitReg struct {
	Record
	node *html.Node
}

type recordKey struct {
	tag, selector, event string
	source               Source
}

// key is the duplicate identity. Handler bodies, capture flags and text are ignored.
func (r Record) key() recordKey {
	return recordKey{tag: r.TagName, selector: r.Selector, event: r.EventType, source: r.Source}
}

// Page is one slice of query results.
type Page []Record

// MarshalJSON renders an empty page as [] rather than null.
func (p Page) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Record(p))
}

// TimerRecord is one captured scheduling call.
type TimerRecord struct {
	Kind     hooks.TimerKind `json:"kind"`
	Delay    int64           `json:"timeout"` // milliseconds
	Callable string          `json:"function"`
}

// TimerPage is one slice of timer records.
type TimerPage []TimerRecord

func (p TimerPage) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]TimerRecord(p))
}

func newTimerRecord(kind hooks.TimerKind, delay time.Duration, callable string) TimerRecord {
	return TimerRecord{Kind: kind, Delay: delay.Milliseconds(), Callable: callable}
}

// superTrim strips the text and removes every run of spaces, tabs and newlines.
func superTrim(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// matchesFilter treats an empty filter as no restriction.
func matchesFilter(filter []string, v string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == v {
			return true
		}
	}
	return false
}

type deduper map[recordKey]struct{}

// add reports whether r was not seen before.
func (d deduper) add(r Record) bool {
	k := r.key()
	if _, seen := d[k]; seen {
		return false
	}
	d[k] = struct{}{}
	return true
}
