// Package backend provides the storage layer that owns the key→entry mapping.
//
// A Backend knows nothing about policies: it stores entries and hands out
// pointers to them. Two interchangeable implementations are provided:
//
//   - NewMap: a plain map of heap-allocated entries.
//   - NewPooled: the same map, but entries detached by Delete/Clear are
//     recycled through a pool to bound allocation under heavy churn.
//
// Backends are not safe for concurrent use; the cache serializes access.
package backend

import "iter"

// Backend is the entry storage contract used by the cache.
type Backend[K comparable, V any] interface {
	// Get returns the live entry for key.
	Get(key K) (*Entry[K, V], bool)

	// Set stores value under key. An existing entry is mutated in place
	// (created == false); otherwise a fresh, zero-metadata entry is created.
	Set(key K, value V) (e *Entry[K, V], created bool)

	// Delete removes key and recycles its entry. Returns false if absent.
	Delete(key K) bool

	// Remove detaches key's entry without recycling it, so that callers can
	// still read it (e.g. to notify policies). Pass it to Recycle afterwards.
	Remove(key K) (*Entry[K, V], bool)

	// Recycle returns a detached entry to the backend. No-op for backends
	// that do not pool.
	Recycle(e *Entry[K, V])

	// Clear removes every entry.
	Clear()

	// Len returns the number of live entries.
	Len() int

	// All iterates over live entries in unspecified order. The backend must
	// not be mutated during iteration.
	All() iter.Seq[*Entry[K, V]]
}
