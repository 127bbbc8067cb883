// Package policy defines the contract between the cache and its expiration
// and eviction policies.
//
// A cache owns one backend and an ordered list of policies fixed at
// construction. On every operation the cache calls the matching hook on each
// policy in registration order. Policies never own entries: they receive an
// *Entry for the duration of a hook and keep only auxiliary indices keyed by
// the entry's key.
//
// Concurrency: all hooks are invoked under the cache lock; implementations
// need no synchronization of their own.
package policy

import (
	"errors"
	"time"

	"github.com/IvanBrykalov/policycache/backend"
)

// Verdict is the result of OnGet/Peek.
type Verdict int

const (
	// Valid means the entry may be served.
	Valid Verdict = iota
	// Expired means the entry is stale; the cache deletes it and reports a miss.
	Expired
)

// Kind classifies a policy. Expiration policies must be registered before
// eviction policies so that stale entries never compete in eviction scoring.
type Kind int

const (
	Expiration Kind = iota
	Eviction
)

func (k Kind) String() string {
	switch k {
	case Expiration:
		return "expiration"
	case Eviction:
		return "eviction"
	default:
		return "unknown"
	}
}

// Policy is implemented by every expiration and eviction strategy.
//
// Semantics:
//   - OnGet runs on every hit, in order; the first Expired short-circuits.
//   - OnSet runs after the backend created (or overwrote) the entry.
//   - OnUpdate runs after an in-place value change; zero fields of args mean
//     "leave unchanged".
//   - OnDelete runs after the entry left the backend, whatever removed it
//     (explicit delete, expiration, eviction, cascade). e is nil unless some
//     policy in the set reports RequiresEntryOnDeletion.
//   - OnClear runs once after the backend was cleared.
type Policy[K comparable, V any] interface {
	Kind() Kind
	OnGet(key K, e *backend.Entry[K, V]) Verdict
	OnSet(key K, e *backend.Entry[K, V], args Args[K])
	OnUpdate(key K, e *backend.Entry[K, V], old V, args Args[K])
	OnDelete(key K, e *backend.Entry[K, V])
	OnClear()
	// RequiresEntryOnDeletion reports whether OnDelete needs the entry
	// (e.g. to read its deadline), not just its key.
	RequiresEntryOnDeletion() bool
}

// Evictor is implemented by policies that can choose a victim under
// capacity pressure. Victim only proposes a key; the cache deletes it through
// the standard path, which notifies every policy.
type Evictor[K comparable] interface {
	Victim() (K, bool)
}

// Peeker is implemented by policies that can judge validity without side
// effects (no promotion, no renewal). Used by Has and iteration.
type Peeker[K comparable, V any] interface {
	Peek(key K, e *backend.Entry[K, V]) Verdict
}

// Cascader is implemented by policies that require other keys to be deleted
// before key is.
type Cascader[K comparable] interface {
	Dependents(key K) []K
}

// Expirer is the handle a cache gives to policies that expire entries out of
// band (garbage collectors). Expire deletes key as expired if the entry still
// carries a deadline that is not after deadline.
type Expirer[K comparable] interface {
	Expire(key K, deadline time.Time)
}

// Binder is implemented by policies that need the cache's Expirer.
type Binder[K comparable] interface {
	Bind(Expirer[K])
}

// Validator is implemented by policies that constrain the arguments bundle.
type Validator[K comparable] interface {
	Validate(Args[K]) error
}

// Closer is implemented by policies that own timers or goroutines.
type Closer interface {
	Close()
}

// ErrInvalidArgs is wrapped by Validator errors.
var ErrInvalidArgs = errors.New("policy: invalid arguments")

// Args is the typed arguments bundle passed on set/update. Each policy reads
// only the fields it understands.
type Args[K comparable] struct {
	// TTL is consumed by expiration policies. Zero means no TTL on set and
	// "keep the current deadline" on update.
	TTL time.Duration
	// Priority is consumed by the priority eviction policy.
	Priority int
	// Cost and Size are consumed by GDSF.
	Cost float64
	Size float64
	// DependsOn lists parent keys for the dependency policy.
	DependsOn []K
}

// WithDefaults returns a copy of a where zero fields are filled from def.
func (a Args[K]) WithDefaults(def Args[K]) Args[K] {
	if a.TTL == 0 {
		a.TTL = def.TTL
	}
	if a.Priority == 0 {
		a.Priority = def.Priority
	}
	if a.Cost == 0 {
		a.Cost = def.Cost
	}
	if a.Size == 0 {
		a.Size = def.Size
	}
	if a.DependsOn == nil && def.DependsOn != nil {
		a.DependsOn = append([]K(nil), def.DependsOn...)
	}
	return a
}
