package backend

import "time"

// Entry is a key/value pair owned by a Backend together with the metadata
// written by expiration policies.
//
// Policies receive *Entry only for the duration of a hook call and must not
// retain it: the pooled backend recycles entries after deletion.
type Entry[K comparable, V any] struct {
	Key   K
	Value V

	// Absolute expiration deadline. Zero means "no TTL".
	ExpiresAt time.Time

	// TTL the deadline was computed from; sliding expiration renews
	// ExpiresAt as now+TTL on access.
	TTL time.Duration

	// PolicySet is the index of the policy set that manages this entry.
	// Zero is the cache's default set.
	PolicySet int
}

// HasDeadline reports whether the entry carries an expiration deadline.
func (e *Entry[K, V]) HasDeadline() bool { return !e.ExpiresAt.IsZero() }

// ExpiredAt reports whether the deadline has passed at now (now >= ExpiresAt).
func (e *Entry[K, V]) ExpiredAt(now time.Time) bool {
	return e.HasDeadline() && !e.ExpiresAt.After(now)
}

func (e *Entry[K, V]) reset() {
	*e = Entry[K, V]{}
}
