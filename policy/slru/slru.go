// Package slru implements the segmented LRU eviction policy.
package slru

import (
	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/internal/list"
	"github.com/IvanBrykalov/policycache/policy"
)

// SLRU keeps two recency segments:
//
//   - probation: admits first-time entries (MRU at front)
//   - protected: entries accessed at least twice, bounded by protectedCap
//
// A hit in probation promotes the key to protected; protected overflow demotes
// its LRU back to probation MRU. Victims come from probation first, so a
// single scan over cold keys cannot flush the protected working set.
type SLRU[K comparable, V any] struct {
	probation *list.List[K]
	protected *list.List[K]

	protectedCap int
}

// New returns an SLRU policy. protectedCap < 1 is raised to 1.
// A common choice is ~80% of the cache capacity.
func New[K comparable, V any](protectedCap int) *SLRU[K, V] {
	if protectedCap < 1 {
		protectedCap = 1
	}
	return &SLRU[K, V]{
		probation:    list.New[K](),
		protected:    list.New[K](),
		protectedCap: protectedCap,
	}
}

func (q *SLRU[K, V]) Kind() policy.Kind { return policy.Eviction }

// OnGet promotes a probationary key, or refreshes a protected one.
func (q *SLRU[K, V]) OnGet(key K, _ *backend.Entry[K, V]) policy.Verdict {
	q.touch(key)
	return policy.Valid
}

// OnSet admits a new key into probation; a re-set key counts as an access.
func (q *SLRU[K, V]) OnSet(key K, _ *backend.Entry[K, V], _ policy.Args[K]) {
	if q.probation.Contains(key) || q.protected.Contains(key) {
		q.touch(key)
		return
	}
	q.probation.PushFront(key)
}

// OnUpdate follows OnGet semantics (updates count as recent use).
func (q *SLRU[K, V]) OnUpdate(key K, _ *backend.Entry[K, V], _ V, _ policy.Args[K]) {
	q.touch(key)
}

func (q *SLRU[K, V]) OnDelete(key K, _ *backend.Entry[K, V]) {
	if !q.probation.Remove(key) {
		q.protected.Remove(key)
	}
}

func (q *SLRU[K, V]) OnClear() {
	q.probation.Clear()
	q.protected.Clear()
}

func (q *SLRU[K, V]) RequiresEntryOnDeletion() bool { return false }

// Victim proposes the probation LRU, or the protected LRU when probation is
// empty.
func (q *SLRU[K, V]) Victim() (K, bool) {
	if k, ok := q.probation.Back(); ok {
		return k, true
	}
	return q.protected.Back()
}

// Segments returns the probation and protected keys, MRU first.
func (q *SLRU[K, V]) Segments() (probation, protected []K) {
	return q.probation.Keys(), q.protected.Keys()
}

func (q *SLRU[K, V]) touch(key K) {
	if q.protected.MoveToFront(key) {
		return
	}
	if !q.probation.Remove(key) {
		return
	}
	q.protected.PushFront(key)
	// Demote protected overflow to probation MRU.
	for q.protected.Len() > q.protectedCap {
		k, _ := q.protected.PopBack()
		q.probation.PushFront(k)
	}
}

var (
	_ policy.Policy[string, int] = (*SLRU[string, int])(nil)
	_ policy.Evictor[string]     = (*SLRU[string, int])(nil)
)
