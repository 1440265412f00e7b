// Package sidetable provides identity-keyed side tables whose entries vanish when the
// key object is garbage collected. They let caches attach data to DOM nodes without
// putting fields on the nodes or keeping detached subtrees alive.
package sidetable

import (
	"runtime"
	"sync"
	"weak"
)

// Table maps *K identities to V values. It holds keys weakly.
type Table[K any, V any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[K]]V
}

// New returns an empty table.
func New[K any, V any]() *Table[K, V] {
	return &Table[K, V]{entries: make(map[weak.Pointer[K]]V)}
}

// Load returns the value stored for key.
func (t *Table[K, V]) Load(key *K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[weak.Make(key)]
	return v, ok
}

// Store sets the value for key. The entry is dropped once key becomes unreachable.
func (t *Table[K, V]) Store(key *K, val V) {
	wp := weak.Make(key)
	t.mu.Lock()
	_, existed := t.entries[wp]
	t.entries[wp] = val
	t.mu.Unlock()
	if !existed {
		runtime.AddCleanup(key, t.evict, wp)
	}
}

// LoadOrCompute returns the stored value for key, computing and storing it first when
// absent. compute runs without the table lock held.
func (t *Table[K, V]) LoadOrCompute(key *K, compute func() V) V {
	if v, ok := t.Load(key); ok {
		return v
	}
	v := compute()
	t.Store(key, v)
	return v
}

// Delete removes the entry for key.
func (t *Table[K, V]) Delete(key *K) {
	t.evict(weak.Make(key))
}

// Len returns the number of live entries.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear drops every entry.
func (t *Table[K, V]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entries)
}

func (t *Table[K, V]) evict(wp weak.Pointer[K]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, wp)
}
