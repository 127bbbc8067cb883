// Package lru implements the LRU eviction policy.
package lru

import (
	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/internal/list"
	"github.com/IvanBrykalov/policycache/policy"
)

// LRU is a classic "move-to-front" Least-Recently-Used policy: reads, writes
// and updates move the key to MRU; the victim is the LRU end.
type LRU[K comparable, V any] struct {
	l *list.List[K]
}

// New returns an LRU policy.
func New[K comparable, V any]() *LRU[K, V] {
	return &LRU[K, V]{l: list.New[K]()}
}

func (p *LRU[K, V]) Kind() policy.Kind { return policy.Eviction }

// OnGet promotes the entry to MRU.
func (p *LRU[K, V]) OnGet(key K, _ *backend.Entry[K, V]) policy.Verdict {
	p.l.MoveToFront(key)
	return policy.Valid
}

// OnSet places the entry at MRU (a re-set key is promoted).
func (p *LRU[K, V]) OnSet(key K, _ *backend.Entry[K, V], _ policy.Args[K]) { p.l.PushFront(key) }

// OnUpdate promotes the entry to MRU (updates are treated as recent use).
func (p *LRU[K, V]) OnUpdate(key K, _ *backend.Entry[K, V], _ V, _ policy.Args[K]) {
	p.l.MoveToFront(key)
}

func (p *LRU[K, V]) OnDelete(key K, _ *backend.Entry[K, V]) { p.l.Remove(key) }

func (p *LRU[K, V]) OnClear() { p.l.Clear() }

func (p *LRU[K, V]) RequiresEntryOnDeletion() bool { return false }

// Victim proposes the least recently used key.
func (p *LRU[K, V]) Victim() (K, bool) { return p.l.Back() }

// Keys returns the tracked keys from MRU to LRU.
func (p *LRU[K, V]) Keys() []K { return p.l.Keys() }

var (
	_ policy.Policy[string, int] = (*LRU[string, int])(nil)
	_ policy.Evictor[string]     = (*LRU[string, int])(nil)
)
