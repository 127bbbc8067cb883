// Package gc provides timer-driven garbage collectors that make expiration
// proactive: a registered key is expired when its deadline passes, whether or
// not it is ever read again.
//
// Three strategies trade precision against bookkeeping:
//
//   - Heap: exact. One timer armed for the earliest deadline; O(log n)
//     schedule/cancel through an indexable min-heap.
//   - Bucket: approximate. Deadlines are grouped into fixed-width buckets,
//     each with its own timer; O(1) schedule/cancel, entries expire at most
//     one bucket width late.
//   - Interval: periodic. One ticker scans every registered key; O(1)
//     schedule/cancel, O(n) per sweep.
//
// Delivery protocol: when a timer fires, due keys move from the pending
// structure to a "firing" set under the collector's mutex; the mutex is then
// released and each key is handed to the bound policy.Expirer. Cancel
// succeeds for pending and firing keys alike, so the cache's delete path
// (which cancels the registration) works the same whether it was triggered by
// the collector or by a caller. Lock order is always cache → collector.
package gc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/policycache/clock"
	"github.com/IvanBrykalov/policycache/policy"
)

// Configuration errors.
var (
	ErrInvalidWidth  = errors.New("gc: bucket width must be > 0")
	ErrInvalidPeriod = errors.New("gc: sweep period must be > 0")
)

// Collector schedules expiration deadlines for keys.
//
// Schedule of a key that already has a registration and Cancel of a key that
// has none are programming errors: Schedule panics, Cancel reports false and
// lets the caller decide.
type Collector[K comparable] interface {
	// Bind sets the expirer that receives due keys. Binding twice panics.
	Bind(policy.Expirer[K])
	Schedule(key K, at time.Time)
	Cancel(key K) bool
	// Len returns the number of registrations (pending plus in delivery).
	Len() int
	// Clear drops every registration and stops all timers. The collector
	// stays bound and usable.
	Clear()
	// Close stops all timers and drops every registration.
	Close()
}

// Option configures a collector.
type Option func(*options)

type options struct {
	clock  clock.Clock
	logger *zap.Logger
}

// WithClock sets the time source (default clock.System).
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(name string, opts []Option) options {
	o := options{clock: clock.System, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.clock = clock.OrSystem(o.clock)
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.With(zap.String("collector", name))
	return o
}

type due[K comparable] struct {
	key   K
	at    time.Time
	token uint64
}

// base carries the state shared by every collector: binding, the firing set
// and the delivery loop.
type base[K comparable] struct {
	mu     sync.Mutex
	opt    options
	target policy.Expirer[K]
	// firing maps keys in delivery to the token of the registration being
	// delivered, so a stale delivery never drops a newer registration.
	firing map[K]uint64
	tokens uint64
	closed bool
}

func newBase[K comparable](o options) base[K] {
	return base[K]{opt: o, firing: make(map[K]uint64)}
}

// startFiringLocked moves key into the firing set under a fresh token.
func (b *base[K]) startFiringLocked(key K, at time.Time) due[K] {
	b.tokens++
	b.firing[key] = b.tokens
	return due[K]{key: key, at: at, token: b.tokens}
}

func (b *base[K]) Bind(t policy.Expirer[K]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.target != nil {
		panic("gc: collector is already bound to a cache")
	}
	b.target = t
}

// checkNewLocked panics if key already has a registration, pending or firing.
func (b *base[K]) checkNewLocked(key K, pending bool) {
	if b.closed {
		panic("gc: schedule on a closed collector")
	}
	if _, ok := b.firing[key]; ok || pending {
		panic(fmt.Sprintf("gc: key %v is already scheduled", key))
	}
}

// cancelFiringLocked removes key from the firing set.
func (b *base[K]) cancelFiringLocked(key K) bool {
	if _, ok := b.firing[key]; ok {
		delete(b.firing, key)
		return true
	}
	return false
}

// deliver hands due keys to the target. Must be called without b.mu held.
func (b *base[K]) deliver(target policy.Expirer[K], keys []due[K]) {
	if len(keys) == 0 {
		return
	}
	b.opt.logger.Debug("gc sweep", zap.Int("due", len(keys)))
	for _, d := range keys {
		b.mu.Lock()
		tok, still := b.firing[d.key]
		still = still && tok == d.token
		b.mu.Unlock()
		if !still {
			// Cancelled by an earlier delivery (cascade) or a concurrent delete.
			continue
		}
		if target != nil {
			target.Expire(d.key, d.at)
		}
		b.mu.Lock()
		if tok, ok := b.firing[d.key]; ok && tok == d.token {
			// The expirer did not cancel the registration: the key was not
			// managed by a proactive policy anymore. Drop it.
			delete(b.firing, d.key)
			if target != nil {
				b.opt.logger.Warn("gc: delivered key was not cancelled by the cache",
					zap.Any("key", d.key), zap.Time("deadline", d.at))
			}
		}
		b.mu.Unlock()
	}
}
