package cache

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/clock"
	"github.com/IvanBrykalov/policycache/policy"
)

// Configuration errors returned by the constructors.
var (
	ErrNilPolicy          = errors.New("cache: nil policy")
	ErrExpirationOrder    = errors.New("cache: expiration policy registered after an eviction policy")
	ErrMultipleExpiration = errors.New("cache: more than one expiration policy in a set")
	ErrNoEvictor          = errors.New("cache: capacity is bounded but no policy can choose a victim")
	ErrUnknownPolicySet   = errors.New("cache: unknown policy set")
	ErrDuplicatePolicySet = errors.New("cache: duplicate policy set name")
)

// ErrInvalidArgs is returned (wrapped) when a policy rejects an arguments
// bundle.
var ErrInvalidArgs = policy.ErrInvalidArgs

// EvictReason explains why an entry was removed without an explicit Delete.
type EvictReason int

const (
	// EvictCapacity: removed by an eviction policy to honour Capacity.
	EvictCapacity EvictReason = iota
	// EvictExpired: removed by an expiration policy (on access or by a
	// collector).
	EvictExpired
	// EvictCascade: removed because a key it depends on was removed.
	EvictCascade
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	case EvictCascade:
		return "cascade"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
	// Load observes one loader call of a renewable cache.
	Load(d time.Duration, err error)
}

// Options configures the cache behavior. Zero values are safe;
// sane defaults are applied in New():
//   - nil Backend  => backend.NewMap
//   - nil Clock    => clock.System
//   - nil Logger   => zap.NewNop()
//   - nil Metrics  => NoopMetrics
type Options[K comparable, V any] struct {
	// Backend stores the entries.
	Backend backend.Backend[K, V]

	// Policies is the ordered policy list of the default set. Expiration
	// policies come first, at most one of them.
	Policies []policy.Policy[K, V]

	// Capacity is the entry count limit; 0 means unbounded. A bounded cache
	// needs at least one policy implementing policy.Evictor.
	Capacity int

	// DefaultArgs fills the zero fields of every arguments bundle
	// (DefaultArgs.TTL is the default TTL).
	DefaultArgs policy.Args[K]

	// Clock is used for the cache's own bookkeeping. Policies and collectors
	// take their clock through their own options.
	Clock clock.Clock

	// Observability
	Logger  *zap.Logger
	Metrics Metrics
}

func (o *Options[K, V]) withDefaults() {
	if o.Backend == nil {
		o.Backend = backend.NewMap[K, V]()
	}
	o.Clock = clock.OrSystem(o.Clock)
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
}
