// Package heap implements an indexable binary min-heap.
//
// Items live in a flat slice; a key→index side table is kept consistent on
// every swap so that an arbitrary key can be updated or removed in O(log n).
// Not safe for concurrent use.
package heap

import "fmt"

type item[K comparable, P any] struct {
	key  K
	prio P
}

// Heap is a min-heap of keys ordered by priority P.
type Heap[K comparable, P any] struct {
	items []item[K, P]
	index map[K]int
	less  func(a, b P) bool
}

// New returns an empty heap ordered by less.
func New[K comparable, P any](less func(a, b P) bool) *Heap[K, P] {
	return &Heap[K, P]{
		index: make(map[K]int),
		less:  less,
	}
}

// Len returns the number of keys in the heap.
func (h *Heap[K, P]) Len() int { return len(h.items) }

// Contains reports whether key is in the heap.
func (h *Heap[K, P]) Contains(key K) bool {
	_, ok := h.index[key]
	return ok
}

// Get returns key's priority.
func (h *Heap[K, P]) Get(key K) (P, bool) {
	i, ok := h.index[key]
	if !ok {
		var zero P
		return zero, false
	}
	return h.items[i].prio, true
}

// Push inserts key with priority p. Pushing a key twice is a programming
// error and panics.
func (h *Heap[K, P]) Push(key K, p P) {
	if _, ok := h.index[key]; ok {
		panic(fmt.Sprintf("heap: duplicate key %v", key))
	}
	h.items = append(h.items, item[K, P]{key: key, prio: p})
	i := len(h.items) - 1
	h.index[key] = i
	h.up(i)
}

// Update changes key's priority and restores heap order. Returns false if
// key is absent.
func (h *Heap[K, P]) Update(key K, p P) bool {
	i, ok := h.index[key]
	if !ok {
		return false
	}
	h.items[i].prio = p
	h.fix(i)
	return true
}

// Remove deletes key and returns its priority.
func (h *Heap[K, P]) Remove(key K) (P, bool) {
	i, ok := h.index[key]
	if !ok {
		var zero P
		return zero, false
	}
	p := h.items[i].prio
	h.removeAt(i)
	return p, true
}

// Peek returns the minimum without removing it.
func (h *Heap[K, P]) Peek() (K, P, bool) {
	if len(h.items) == 0 {
		var (
			zk K
			zp P
		)
		return zk, zp, false
	}
	it := h.items[0]
	return it.key, it.prio, true
}

// Pop removes and returns the minimum.
func (h *Heap[K, P]) Pop() (K, P, bool) {
	k, p, ok := h.Peek()
	if ok {
		h.removeAt(0)
	}
	return k, p, ok
}

// Clear removes every key.
func (h *Heap[K, P]) Clear() {
	h.items = nil
	h.index = make(map[K]int)
}

// ---- internals ----

func (h *Heap[K, P]) removeAt(i int) {
	last := len(h.items) - 1
	delete(h.index, h.items[i].key)
	if i != last {
		h.items[i] = h.items[last]
		h.index[h.items[i].key] = i
	}
	var zero item[K, P]
	h.items[last] = zero // drop references held by K/P
	h.items = h.items[:last]
	if i < len(h.items) {
		h.fix(i)
	}
}

func (h *Heap[K, P]) fix(i int) {
	if !h.down(i) {
		h.up(i)
	}
}

func (h *Heap[K, P]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.items[i].prio, h.items[parent].prio) {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

// down sifts i towards the leaves and reports whether it moved.
func (h *Heap[K, P]) down(i int) bool {
	start := i
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			break
		}
		m := l
		if r := l + 1; r < n && h.less(h.items[r].prio, h.items[l].prio) {
			m = r
		}
		if !h.less(h.items[m].prio, h.items[i].prio) {
			break
		}
		h.swap(i, m)
		i = m
	}
	return i > start
}

func (h *Heap[K, P]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].key] = i
	h.index[h.items[j].key] = j
}
