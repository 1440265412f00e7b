package sidetable

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type node struct{ name string }

func TestStoreLoad(t *testing.T) {
	tab := New[node, string]()
	a := &node{name: "a"}
	b := &node{name: "a"}

	tab.Store(a, "first")
	v, ok := tab.Load(a)
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	_, ok = tab.Load(b)
	assert.False(t, ok, "lookup is by identity, not value")

	tab.Store(a, "second")
	v, _ = tab.Load(a)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, tab.Len())

	tab.Delete(a)
	assert.Equal(t, 0, tab.Len())
}

func TestLoadOrCompute(t *testing.T) {
	tab := New[node, int]()
	n := &node{}
	calls := 0
	compute := func() int { calls++; return 42 }

	assert.Equal(t, 42, tab.LoadOrCompute(n, compute))
	assert.Equal(t, 42, tab.LoadOrCompute(n, compute))
	assert.Equal(t, 1, calls)
}

func TestEntriesDropWithKey(t *testing.T) {
	tab := New[node, []byte]()
	func() {
		n := &node{name: "temp"}
		tab.Store(n, make([]byte, 64))
	}()

	deadline := time.Now().Add(5 * time.Second)
	for tab.Len() > 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, tab.Len())
}
