package cache

import (
	"iter"
	"time"

	"github.com/IvanBrykalov/policycache/policy"
)

// Cache is an in-memory key/value cache composed of one backend and an
// ordered list of policies.
// All methods are safe for concurrent use by multiple goroutines.
//
// Expected runtime conditions (miss, expired entry) are return values, never
// errors. Only calls that carry an arguments bundle return an error, when a
// policy rejects the bundle.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and a boolean flag indicating presence.
	// Every policy sees the hit in order; the first one reporting the entry
	// expired deletes it and Get reports a miss.
	Get(k K) (V, bool)

	// Has reports whether a live entry exists for k without promoting it or
	// renewing its TTL.
	Has(k K) bool

	// Set inserts or replaces k→v with the cache's default arguments.
	Set(k K, v V)

	// SetWithTTL inserts or replaces k→v with a per-key TTL (relative
	// duration). A non-positive ttl disables expiration for this entry.
	SetWithTTL(k K, v V, ttl time.Duration)

	// SetWithArgs inserts or replaces k→v. Zero fields of args are filled from
	// the cache defaults.
	SetWithArgs(k K, v V, args policy.Args[K]) error

	// Add inserts k→v only if k is not present.
	// Returns false if the key already exists (no update is performed).
	Add(k K, v V) bool

	// Update replaces the value of an existing key in place, keeping its
	// deadline and eviction metadata. Returns false if k is absent.
	Update(k K, v V) bool

	// Upset updates k in place when present (zero fields of args, including
	// TTL, leave the current metadata untouched) and sets it otherwise.
	Upset(k K, v V, args policy.Args[K]) error

	// Delete removes k, and first every key depending on it. Returns false if
	// k was absent.
	Delete(k K) bool

	// Clear removes every entry.
	Clear()

	// Len returns the number of resident entries, including expired entries
	// not yet collected.
	Len() int

	// All iterates over a snapshot of the live (key, value) pairs.
	All() iter.Seq2[K, V]

	// Subscribe registers fn for every cache event and returns a function
	// that removes it. fn runs outside the cache lock, in event order.
	Subscribe(fn func(Event[K, V])) (unsubscribe func())

	// Stats returns cumulative counters.
	Stats() Stats

	// Close closes the policies (stopping collector timers) and marks the
	// cache closed. Later mutations are ignored and reads miss.
	Close() error
}

// Keyed is a Cache whose keys may each be managed by a different named
// policy set.
type Keyed[K comparable, V any] interface {
	Cache[K, V]

	// SetIn inserts or replaces k→v under the named policy set. A key moving
	// between sets is removed from its old set first.
	SetIn(set string, k K, v V, args policy.Args[K]) error

	// SetOf returns the name of the policy set managing k.
	SetOf(k K) (string, bool)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Sets        uint64
	Updates     uint64
	Deletes     uint64
	Evictions   uint64
	Expirations uint64
}
