// Package lfu implements Least-Frequently-Used eviction and its variant with
// dynamic aging (LFUDA).
//
// LFU: each key carries a counter that starts at 0 and grows by one on every
// read, update or re-set; the victim is the minimum counter, ties broken by
// least recent touch.
//
// LFUDA: the ordering key is K = F + L, where F is the counter (each access
// weighs C = 1) and L is a cache-wide age that starts at 0 and is raised to
// the victim's K every time a victim is chosen. Keys touched after an
// eviction therefore start from the current age, and formerly hot keys that
// went cold are eventually overtaken.
package lfu

import (
	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/internal/heap"
	"github.com/IvanBrykalov/policycache/policy"
)

type score struct {
	k   float64 // F (LFU) or F + L (LFUDA)
	seq uint64  // last touch
}

func less(a, b score) bool {
	if a.k != b.k {
		return a.k < b.k
	}
	return a.seq < b.seq
}

// LFU is the frequency-ordered eviction policy. See the package doc.
type LFU[K comparable, V any] struct {
	h     *heap.Heap[K, score]
	freq  map[K]uint64
	seq   uint64
	aging bool
	age   float64
}

// New returns a plain LFU policy.
func New[K comparable, V any]() *LFU[K, V] {
	return &LFU[K, V]{h: heap.New[K, score](less), freq: make(map[K]uint64)}
}

// NewDynamicAging returns an LFUDA policy.
func NewDynamicAging[K comparable, V any]() *LFU[K, V] {
	p := New[K, V]()
	p.aging = true
	return p
}

func (p *LFU[K, V]) Kind() policy.Kind { return policy.Eviction }

func (p *LFU[K, V]) OnGet(key K, _ *backend.Entry[K, V]) policy.Verdict {
	p.touch(key)
	return policy.Valid
}

func (p *LFU[K, V]) OnSet(key K, _ *backend.Entry[K, V], _ policy.Args[K]) {
	if _, ok := p.freq[key]; ok {
		p.touch(key)
		return
	}
	p.freq[key] = 0
	p.seq++
	p.h.Push(key, score{k: p.key(0), seq: p.seq})
}

func (p *LFU[K, V]) OnUpdate(key K, _ *backend.Entry[K, V], _ V, _ policy.Args[K]) {
	p.touch(key)
}

func (p *LFU[K, V]) OnDelete(key K, _ *backend.Entry[K, V]) {
	p.h.Remove(key)
	delete(p.freq, key)
}

// OnClear forgets every counter. The age is kept: it only grows.
func (p *LFU[K, V]) OnClear() {
	p.h.Clear()
	p.freq = make(map[K]uint64)
}

func (p *LFU[K, V]) RequiresEntryOnDeletion() bool { return false }

// Victim proposes the key with the smallest ordering key. Under dynamic aging
// it also raises the cache age to that key.
func (p *LFU[K, V]) Victim() (K, bool) {
	k, s, ok := p.h.Peek()
	if ok && p.aging && s.k > p.age {
		p.age = s.k
	}
	return k, ok
}

// Frequency returns key's access counter.
func (p *LFU[K, V]) Frequency(key K) (uint64, bool) {
	f, ok := p.freq[key]
	return f, ok
}

// Age returns the current cache age (always 0 for plain LFU).
func (p *LFU[K, V]) Age() float64 { return p.age }

func (p *LFU[K, V]) touch(key K) {
	f, ok := p.freq[key]
	if !ok {
		return
	}
	f++
	p.freq[key] = f
	p.seq++
	p.h.Update(key, score{k: p.key(f), seq: p.seq})
}

func (p *LFU[K, V]) key(f uint64) float64 {
	if p.aging {
		return float64(f) + p.age
	}
	return float64(f)
}

var (
	_ policy.Policy[string, int] = (*LFU[string, int])(nil)
	_ policy.Evictor[string]     = (*LFU[string, int])(nil)
)
