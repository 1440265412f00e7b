// Package selector synthesizes short CSS selectors that address exactly one element.
//
// Each element level gets the first strategy (id, class, attribute, tag, nthchild) that
// yields a unique selector, and levels are chained with " > " from the element upward
// until the chain resolves to the element alone.
package selector

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"domscout/internal/logging"
	"domscout/internal/sidetable"
)

// Strategy names.
const (
	StrategyID        = "id"
	StrategyClass     = "class"
	StrategyAttribute = "attribute"
	StrategyTag       = "tag"
	StrategyNthChild  = "nthchild"
)

// maxTokens bounds the powerset search over class and attribute tokens.
const maxTokens = 12

// Options configures a Synthesizer. Blacklist entries are exact values, or regular
// expressions when wrapped in slashes ("/^js-/").
type Options struct {
	Strategies         []string
	PrefixTag          bool
	IDBlacklist        []string
	ClassBlacklist     []string
	AttributeBlacklist []string
	AttributeWhitelist []string
}

// DefaultOptions returns the id, class, tag, nthchild strategy order with no prefixing.
func DefaultOptions() Options {
	return Options{
		Strategies: []string{StrategyID, StrategyClass, StrategyTag, StrategyNthChild},
	}
}

type result struct {
	selector string
	ok       bool
}

// Synthesizer computes selectors for elements of one document. Results are memoized per
// element and revalidated on every hit, so a mutation that changes what a memoized
// selector matches forces a recompute.
type Synthesizer struct {
	root *html.Node
	opts Options

	idBlacklist    []matcher
	classBlacklist []matcher

	memo *sidetable.Table[html.Node, result]
}

// New returns a Synthesizer rooted at the document node.
func New(root *html.Node, opts Options) *Synthesizer {
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultOptions().Strategies
	}
	s := &Synthesizer{
		root:           root,
		opts:           opts,
		classBlacklist: compileList(opts.ClassBlacklist),
		memo:           sidetable.New[html.Node, result](),
	}
	s.idBlacklist = append(compileList(opts.IDBlacklist),
		matcher{exact: ""},
		matcher{re: regexp.MustCompile(`\s`)},
		matcher{re: regexp.MustCompile(`^\d`)},
	)
	return s
}

// Compute returns a selector S such that querying the document with S yields exactly n.
// It reports false when n is not an element or no chain up to the root is unique.
func (s *Synthesizer) Compute(n *html.Node) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	if r, hit := s.memo.Load(n); hit {
		if r.ok && s.matchesOnly(r.selector, n) {
			return r.selector, true
		}
		logging.SelectorDebug("memoized selector %q for <%s> is stale", r.selector, n.Data)
	}
	sel, ok := s.compute(n)
	if !ok {
		logging.SelectorDebug("no unique selector for <%s>", n.Data)
	}
	s.memo.Store(n, result{selector: sel, ok: ok})
	return sel, ok
}

func (s *Synthesizer) compute(n *html.Node) (string, bool) {
	var levels []string
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		levels = append([]string{s.Unique(p)}, levels...)
		chain := strings.Join(levels, " > ")
		if s.matchesOnly(chain, n) {
			return chain, true
		}
	}
	return "", false
}

// Unique returns the first per-level selector the configured strategies produce for n,
// or "*" when none applies.
func (s *Synthesizer) Unique(n *html.Node) string {
	tag := s.tagSelector(n)
	for _, strategy := range s.opts.Strategies {
		var sel string
		switch strategy {
		case StrategyID:
			sel = s.idSelector(n)
		case StrategyTag:
			if s.uniqueAmongSiblings(tag, n) {
				sel = tag
			}
		case StrategyClass:
			if items := s.classSelectors(n); len(items) > 0 {
				sel = s.testCombinations(n, items, tag)
			}
		case StrategyAttribute:
			if items := s.attributeSelectors(n); len(items) > 0 {
				sel = s.testCombinations(n, items, tag)
			}
		case StrategyNthChild:
			sel = s.nthChildSelector(n)
		}
		if sel != "" {
			return sel
		}
	}
	return "*"
}

func (s *Synthesizer) tagSelector(n *html.Node) string {
	return Escape(strings.ToLower(n.Data))
}

func (s *Synthesizer) prefix(n *html.Node) string {
	if s.opts.PrefixTag {
		return s.tagSelector(n)
	}
	return ""
}

func (s *Synthesizer) idSelector(n *html.Node) string {
	id, ok := attr(n, "id")
	if !ok || !notInList(id, s.idBlacklist) {
		return ""
	}
	sel := s.prefix(n) + "#" + Escape(id)
	if len(s.queryAll(sel, s.root)) == 1 {
		return sel
	}
	return ""
}

func (s *Synthesizer) classSelectors(n *html.Node) []string {
	raw, ok := attr(n, "class")
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Fields(raw) {
		if notInList(item, s.classBlacklist) {
			out = append(out, "."+Escape(item))
		}
	}
	return out
}

func (s *Synthesizer) attributeSelectors(n *html.Node) []string {
	var out []string
	for _, name := range s.opts.AttributeWhitelist {
		if v, ok := attr(n, name); ok {
			out = append(out, "["+Escape(name)+"="+quote(v)+"]")
		}
	}
	skip := append([]string{"id", "class"}, s.opts.AttributeBlacklist...)
	skip = append(skip, s.opts.AttributeWhitelist...)
	for _, a := range n.Attr {
		if a.Namespace != "" || contains(skip, a.Key) {
			continue
		}
		out = append(out, "["+Escape(a.Key)+"="+quote(a.Val)+"]")
	}
	return out
}

func (s *Synthesizer) nthChildSelector(n *html.Node) string {
	if n.Parent == nil {
		return ""
	}
	k := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		k++
		if c == n {
			return s.prefix(n) + ":nth-child(" + strconv.Itoa(k) + ")"
		}
	}
	return ""
}

// testCombinations tries every token combination, shortest first: document-unique, then
// unique under the parent, then the same two passes with the tag prepended.
func (s *Synthesizer) testCombinations(n *html.Node, items []string, tag string) string {
	combos := combinations(items)
	if !s.opts.PrefixTag {
		for _, c := range combos {
			if s.matchesOnly(c, n) {
				return c
			}
		}
		for _, c := range combos {
			if s.uniqueAmongSiblings(c, n) {
				return c
			}
		}
	}
	for _, c := range combos {
		if s.matchesOnly(tag+c, n) {
			return tag + c
		}
	}
	for _, c := range combos {
		if s.uniqueAmongSiblings(tag+c, n) {
			return tag + c
		}
	}
	return ""
}

// matchesOnly reports whether sel matches exactly n in the whole document.
func (s *Synthesizer) matchesOnly(sel string, n *html.Node) bool {
	found := s.queryAll(sel, s.root)
	return len(found) == 1 && found[0] == n
}

// uniqueAmongSiblings reports whether sel matches exactly n among the descendants of
// n's parent.
func (s *Synthesizer) uniqueAmongSiblings(sel string, n *html.Node) bool {
	if n.Parent == nil {
		return false
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return false
	}
	var found []*html.Node
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			found = append(found, compiled.MatchAll(c)...)
			if len(found) > 1 {
				return false
			}
		}
	}
	return len(found) == 1 && found[0] == n
}

func (s *Synthesizer) queryAll(sel string, root *html.Node) []*html.Node {
	if sel == "" {
		return nil
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		logging.SelectorDebug("rejecting invalid selector %q: %v", sel, err)
		return nil
	}
	return compiled.MatchAll(root)
}

// combinations returns the non-empty powerset of items, each joined without separator,
// ordered by ascending size.
func combinations(items []string) []string {
	if len(items) > maxTokens {
		items = items[:maxTokens]
	}
	sets := [][]string{{}}
	for _, item := range items {
		for _, set := range sets {
			next := make([]string, len(set), len(set)+1)
			copy(next, set)
			sets = append(sets, append(next, item))
		}
	}
	sets = sets[1:]
	sort.SliceStable(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })
	out := make([]string, len(sets))
	for i, set := range sets {
		out[i] = strings.Join(set, "")
	}
	return out
}

type matcher struct {
	exact string
	re    *regexp.Regexp
}

func (m matcher) match(v string) bool {
	if m.re != nil {
		return m.re.MatchString(v)
	}
	return m.exact == v
}

func compileList(entries []string) []matcher {
	var out []matcher
	for _, e := range entries {
		if len(e) > 2 && strings.HasPrefix(e, "/") && strings.HasSuffix(e, "/") {
			if re, err := regexp.Compile(e[1 : len(e)-1]); err == nil {
				out = append(out, matcher{re: re})
				continue
			}
		}
		out = append(out, matcher{exact: e})
	}
	return out
}

func notInList(v string, list []matcher) bool {
	for _, m := range list {
		if m.match(v) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
