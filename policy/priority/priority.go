// Package priority implements eviction by caller-supplied priority.
package priority

import (
	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/internal/heap"
	"github.com/IvanBrykalov/policycache/policy"
)

type rank struct {
	prio int
	seq  uint64 // last access
}

func less(a, b rank) bool {
	if a.prio != b.prio {
		return a.prio < b.prio
	}
	return a.seq < b.seq
}

// Priority evicts the lowest Args.Priority first; among equal priorities the
// least recently used goes first.
type Priority[K comparable, V any] struct {
	h   *heap.Heap[K, rank]
	seq uint64
}

// New returns a priority eviction policy.
func New[K comparable, V any]() *Priority[K, V] {
	return &Priority[K, V]{h: heap.New[K, rank](less)}
}

func (p *Priority[K, V]) Kind() policy.Kind { return policy.Eviction }

func (p *Priority[K, V]) OnGet(key K, _ *backend.Entry[K, V]) policy.Verdict {
	if r, ok := p.h.Get(key); ok {
		p.touch(key, r.prio)
	}
	return policy.Valid
}

// OnSet records the priority; a re-set key takes the new one.
func (p *Priority[K, V]) OnSet(key K, _ *backend.Entry[K, V], args policy.Args[K]) {
	if p.h.Contains(key) {
		p.touch(key, args.Priority)
		return
	}
	p.seq++
	p.h.Push(key, rank{prio: args.Priority, seq: p.seq})
}

// OnUpdate counts as a use; a non-zero Priority replaces the old one.
func (p *Priority[K, V]) OnUpdate(key K, _ *backend.Entry[K, V], _ V, args policy.Args[K]) {
	r, ok := p.h.Get(key)
	if !ok {
		return
	}
	if args.Priority != 0 {
		r.prio = args.Priority
	}
	p.touch(key, r.prio)
}

func (p *Priority[K, V]) OnDelete(key K, _ *backend.Entry[K, V]) { p.h.Remove(key) }

func (p *Priority[K, V]) OnClear() { p.h.Clear() }

func (p *Priority[K, V]) RequiresEntryOnDeletion() bool { return false }

// Victim proposes the lowest-priority, least recently used key.
func (p *Priority[K, V]) Victim() (K, bool) {
	k, _, ok := p.h.Peek()
	return k, ok
}

// Of returns key's priority.
func (p *Priority[K, V]) Of(key K) (int, bool) {
	r, ok := p.h.Get(key)
	return r.prio, ok
}

func (p *Priority[K, V]) touch(key K, prio int) {
	p.seq++
	p.h.Update(key, rank{prio: prio, seq: p.seq})
}

var (
	_ policy.Policy[string, int] = (*Priority[string, int])(nil)
	_ policy.Evictor[string]     = (*Priority[string, int])(nil)
)
