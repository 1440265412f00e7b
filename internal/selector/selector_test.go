package selector

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const fixture = `<html><head><title>t</title></head><body>
<div id="main"><p class="x y">a</p><p class="x">b</p></div>
<ul><li>1</li><li>2</li><li class="x">3</li></ul>
<div id="dup"></div><div id="dup"></div>
<section id="1st"><a href="/a" data-role="nav">a</a><a href="/b">b</a></section>
<span class="has:colon">c</span>
<form><input name="q"><input name="q" type="submit"></form>
</body></html>`

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return root
}

func find(t *testing.T, root *html.Node, sel string, idx int) *html.Node {
	t.Helper()
	nodes := cascadia.MustCompile(sel).MatchAll(root)
	require.Greater(t, len(nodes), idx, "fixture lookup %s", sel)
	return nodes[idx]
}

func TestComputeUniqueForEveryElement(t *testing.T) {
	root := parse(t, fixture)
	strategies := [][]string{
		{StrategyID, StrategyClass, StrategyTag, StrategyNthChild},
		{StrategyTag, StrategyNthChild},
		{StrategyAttribute, StrategyTag, StrategyNthChild},
		{StrategyClass, StrategyAttribute, StrategyTag, StrategyNthChild},
	}
	for _, order := range strategies {
		t.Run(strings.Join(order, ","), func(t *testing.T) {
			s := New(root, Options{Strategies: order})
			for _, n := range cascadia.MustCompile("*").MatchAll(root) {
				sel, ok := s.Compute(n)
				require.True(t, ok, "no selector for <%s>", n.Data)
				found := cascadia.MustCompile(sel).MatchAll(root)
				require.Len(t, found, 1, "selector %q", sel)
				assert.Same(t, n, found[0], "selector %q", sel)
			}
		})
	}
}

func TestComputeExpected(t *testing.T) {
	root := parse(t, fixture)
	s := New(root, DefaultOptions())

	tests := []struct {
		name string
		sel  string
		idx  int
		want string
	}{
		{"unique id", "#main", 0, "#main"},
		{"single class", "p", 0, ".y"},
		{"nth child under id", "p", 1, "#main > :nth-child(2)"},
		{"nth child under tag", "li", 1, "ul > :nth-child(2)"},
		{"duplicate id falls back", "div", 1, "body > :nth-child(3)"},
		{"escaped class", "span", 0, `.has\:colon`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Compute(find(t, root, tt.sel, tt.idx))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDBlacklist(t *testing.T) {
	root := parse(t, fixture)
	section := find(t, root, "section", 0)

	got, ok := New(root, DefaultOptions()).Compute(section)
	require.True(t, ok)
	assert.NotContains(t, got, "#", "ids starting with a digit are never used")

	main := find(t, root, "#main", 0)
	opts := DefaultOptions()
	opts.IDBlacklist = []string{"/^ma/"}
	got, ok = New(root, opts).Compute(main)
	require.True(t, ok)
	assert.NotEqual(t, "#main", got)
}

func TestPrefixTag(t *testing.T) {
	root := parse(t, fixture)
	opts := DefaultOptions()
	opts.PrefixTag = true
	s := New(root, opts)

	got, ok := s.Compute(find(t, root, "#main", 0))
	require.True(t, ok)
	assert.Equal(t, "div#main", got)

	got, ok = s.Compute(find(t, root, "p", 0))
	require.True(t, ok)
	assert.Equal(t, "p.y", got)
}

func TestAttributeStrategy(t *testing.T) {
	root := parse(t, fixture)
	s := New(root, Options{Strategies: []string{StrategyAttribute, StrategyNthChild}})

	got, ok := s.Compute(find(t, root, "a", 0))
	require.True(t, ok)
	assert.Equal(t, `[href="/a"]`, got)

	got, ok = s.Compute(find(t, root, "input", 1))
	require.True(t, ok)
	assert.Equal(t, `[type="submit"]`, got)
}

func TestComputeRejectsNonElements(t *testing.T) {
	root := parse(t, fixture)
	s := New(root, DefaultOptions())

	_, ok := s.Compute(root)
	assert.False(t, ok)
	_, ok = s.Compute(nil)
	assert.False(t, ok)

	detached := &html.Node{Type: html.ElementNode, Data: "div"}
	_, ok = s.Compute(detached)
	assert.False(t, ok)
}

func TestComputeMemoized(t *testing.T) {
	root := parse(t, fixture)
	s := New(root, DefaultOptions())
	p := find(t, root, "p", 1)

	first, ok := s.Compute(p)
	require.True(t, ok)
	second, ok := s.Compute(p)
	assert.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.memo.Len())

	p.Parent.RemoveChild(p)
	_, ok = s.Compute(p)
	assert.False(t, ok, "a detached element has no selector")
}

func TestComputeAfterSiblingInserted(t *testing.T) {
	root := parse(t, `<html><body><ul><li>a</li><li>b</li></ul></body></html>`)
	s := New(root, DefaultOptions())
	b := find(t, root, "li", 1)

	before, ok := s.Compute(b)
	require.True(t, ok)
	require.Contains(t, before, ":nth-child(2)")

	ul := b.Parent
	ul.InsertBefore(&html.Node{Type: html.ElementNode, Data: "li"}, ul.FirstChild)

	after, ok := s.Compute(b)
	require.True(t, ok)
	assert.NotEqual(t, before, after)
	found := cascadia.MustCompile(after).MatchAll(root)
	require.Len(t, found, 1)
	assert.Same(t, b, found[0])
}

func TestCombinations(t *testing.T) {
	assert.Equal(t, []string{".a", ".b", ".c", ".a.b", ".a.c", ".b.c", ".a.b.c"}, combinations([]string{".a", ".b", ".c"}))
	assert.Empty(t, combinations(nil))
	assert.Len(t, combinations(make([]string, 20)), 1<<maxTokens-1)
}

func TestEscape(t *testing.T) {
	tests := map[string]string{
		"plain":  "plain",
		"1a":     `\31 a`,
		"-1":     `-\31 `,
		"-":      `\-`,
		"a b":    `a\ b`,
		"a:b":    `a\:b`,
		"héllo":  "héllo",
		"a\x01b": `a\1 b`,
		"_x-y":   "_x-y",
	}
	for in, want := range tests {
		assert.Equal(t, want, Escape(in), "Escape(%q)", in)
	}
}
