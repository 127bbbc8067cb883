// Package gdsf implements GreedyDual-Size-Frequency eviction.
//
// Each key is scored
//
//	H = L + F × Cost / Size
//
// where F is the access count (1 on insertion, +1 per read, update or re-set),
// Cost and Size come from the arguments bundle (zero means 1), and L is a
// cache-wide inflation value raised to the victim's H whenever a victim is
// chosen. The victim is the minimum H, ties going to the least recently
// touched key. Expensive, compact entries outlive cheap, bulky ones with the
// same access pattern.
package gdsf

import (
	"fmt"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/internal/heap"
	"github.com/IvanBrykalov/policycache/policy"
)

type meta struct {
	freq uint64
	cost float64
	size float64
}

type score struct {
	h   float64
	seq uint64
}

func less(a, b score) bool {
	if a.h != b.h {
		return a.h < b.h
	}
	return a.seq < b.seq
}

// GDSF is the cost/size/frequency-weighted eviction policy.
type GDSF[K comparable, V any] struct {
	h    *heap.Heap[K, score]
	meta map[K]*meta
	seq  uint64
	l    float64
}

// New returns a GDSF policy.
func New[K comparable, V any]() *GDSF[K, V] {
	return &GDSF[K, V]{h: heap.New[K, score](less), meta: make(map[K]*meta)}
}

func (p *GDSF[K, V]) Kind() policy.Kind { return policy.Eviction }

func (p *GDSF[K, V]) OnGet(key K, _ *backend.Entry[K, V]) policy.Verdict {
	if m, ok := p.meta[key]; ok {
		m.freq++
		p.rescore(key, m)
	}
	return policy.Valid
}

// OnSet admits key with F = 1, or counts a re-set as an access with the new
// cost and size.
func (p *GDSF[K, V]) OnSet(key K, _ *backend.Entry[K, V], args policy.Args[K]) {
	if m, ok := p.meta[key]; ok {
		m.freq++
		m.cost, m.size = orOne(args.Cost), orOne(args.Size)
		p.rescore(key, m)
		return
	}
	m := &meta{freq: 1, cost: orOne(args.Cost), size: orOne(args.Size)}
	p.meta[key] = m
	p.seq++
	p.h.Push(key, score{h: p.score(m), seq: p.seq})
}

// OnUpdate counts as an access; non-zero Cost or Size replace the old ones.
func (p *GDSF[K, V]) OnUpdate(key K, _ *backend.Entry[K, V], _ V, args policy.Args[K]) {
	m, ok := p.meta[key]
	if !ok {
		return
	}
	m.freq++
	if args.Cost != 0 {
		m.cost = args.Cost
	}
	if args.Size != 0 {
		m.size = args.Size
	}
	p.rescore(key, m)
}

func (p *GDSF[K, V]) OnDelete(key K, _ *backend.Entry[K, V]) {
	p.h.Remove(key)
	delete(p.meta, key)
}

// OnClear forgets every key. L is kept: it only grows.
func (p *GDSF[K, V]) OnClear() {
	p.h.Clear()
	p.meta = make(map[K]*meta)
}

func (p *GDSF[K, V]) RequiresEntryOnDeletion() bool { return false }

// Victim proposes the minimum-H key and inflates L to its score.
func (p *GDSF[K, V]) Victim() (K, bool) {
	k, s, ok := p.h.Peek()
	if ok && s.h > p.l {
		p.l = s.h
	}
	return k, ok
}

// Validate rejects negative costs and sizes.
func (p *GDSF[K, V]) Validate(a policy.Args[K]) error {
	if a.Cost < 0 {
		return fmt.Errorf("%w: gdsf cost %v < 0", policy.ErrInvalidArgs, a.Cost)
	}
	if a.Size < 0 {
		return fmt.Errorf("%w: gdsf size %v < 0", policy.ErrInvalidArgs, a.Size)
	}
	return nil
}

// Score returns key's current H.
func (p *GDSF[K, V]) Score(key K) (float64, bool) {
	s, ok := p.h.Get(key)
	return s.h, ok
}

// Inflation returns L.
func (p *GDSF[K, V]) Inflation() float64 { return p.l }

func (p *GDSF[K, V]) score(m *meta) float64 {
	return p.l + float64(m.freq)*m.cost/m.size
}

func (p *GDSF[K, V]) rescore(key K, m *meta) {
	p.seq++
	p.h.Update(key, score{h: p.score(m), seq: p.seq})
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

var (
	_ policy.Policy[string, int] = (*GDSF[string, int])(nil)
	_ policy.Evictor[string]     = (*GDSF[string, int])(nil)
	_ policy.Validator[string]   = (*GDSF[string, int])(nil)
)
