// Package expiration provides the expiration policies: None, Reactive and
// Proactive, each optionally sliding.
//
// Expiration policies are the only writers of Entry.ExpiresAt and Entry.TTL.
// A cache set holds at most one of them, registered before any eviction
// policy.
package expiration

import (
	"errors"
	"fmt"
	"time"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/clock"
	"github.com/IvanBrykalov/policycache/gc"
	"github.com/IvanBrykalov/policycache/policy"
)

// ErrNoCollector is returned by NewProactive when no collector is given.
var ErrNoCollector = errors.New("expiration: proactive policy requires a garbage collector")

// Option configures Reactive and Proactive policies.
type Option func(*options)

type options struct {
	clock   clock.Clock
	sliding bool
}

// WithClock sets the time source (default clock.System).
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Sliding renews the deadline to now+TTL on every successful read.
func Sliding() Option {
	return func(o *options) { o.sliding = true }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.clock = clock.OrSystem(o.clock)
	return o
}

func validate[K comparable](a policy.Args[K]) error {
	if a.TTL < 0 {
		return fmt.Errorf("%w: negative TTL %v", policy.ErrInvalidArgs, a.TTL)
	}
	return nil
}

// stamp writes the deadline for ttl, or clears it when ttl is zero.
func stamp[K comparable, V any](e *backend.Entry[K, V], now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		e.TTL, e.ExpiresAt = 0, time.Time{}
		return
	}
	e.TTL, e.ExpiresAt = ttl, now.Add(ttl)
}

// ---- None ----

// None never expires anything.
type None[K comparable, V any] struct{}

// NewNone returns the no-op expiration policy.
func NewNone[K comparable, V any]() *None[K, V] { return &None[K, V]{} }

func (*None[K, V]) Kind() policy.Kind { return policy.Expiration }
func (*None[K, V]) OnGet(K, *backend.Entry[K, V]) policy.Verdict { return policy.Valid }
func (*None[K, V]) Peek(K, *backend.Entry[K, V]) policy.Verdict { return policy.Valid }
func (*None[K, V]) OnSet(K, *backend.Entry[K, V], policy.Args[K]) {}
func (*None[K, V]) OnUpdate(K, *backend.Entry[K, V], V, policy.Args[K]) {}
func (*None[K, V]) OnDelete(K, *backend.Entry[K, V]) {}
func (*None[K, V]) OnClear() {}
func (*None[K, V]) RequiresEntryOnDeletion() bool { return false }

// ---- Reactive ----

// Reactive checks the deadline on access only. An entry that is never read
// again stays resident until evicted or deleted.
type Reactive[K comparable, V any] struct {
	opt options
}

// NewReactive returns an access-checked expiration policy.
func NewReactive[K comparable, V any](opts ...Option) *Reactive[K, V] {
	return &Reactive[K, V]{opt: buildOptions(opts)}
}

func (p *Reactive[K, V]) Kind() policy.Kind { return policy.Expiration }

func (p *Reactive[K, V]) OnGet(_ K, e *backend.Entry[K, V]) policy.Verdict {
	now := p.opt.clock.Now()
	if e.ExpiredAt(now) {
		return policy.Expired
	}
	if p.opt.sliding && e.TTL > 0 {
		e.ExpiresAt = now.Add(e.TTL)
	}
	return policy.Valid
}

func (p *Reactive[K, V]) Peek(_ K, e *backend.Entry[K, V]) policy.Verdict {
	if e.ExpiredAt(p.opt.clock.Now()) {
		return policy.Expired
	}
	return policy.Valid
}

func (p *Reactive[K, V]) OnSet(_ K, e *backend.Entry[K, V], args policy.Args[K]) {
	stamp(e, p.opt.clock.Now(), args.TTL)
}

func (p *Reactive[K, V]) OnUpdate(_ K, e *backend.Entry[K, V], _ V, args policy.Args[K]) {
	if args.TTL > 0 {
		stamp(e, p.opt.clock.Now(), args.TTL)
	}
}

func (p *Reactive[K, V]) OnDelete(K, *backend.Entry[K, V]) {}
func (p *Reactive[K, V]) OnClear() {}
func (p *Reactive[K, V]) RequiresEntryOnDeletion() bool { return false }

func (p *Reactive[K, V]) Validate(a policy.Args[K]) error { return validate(a) }

// ---- Proactive ----

// Proactive hands every deadline to a garbage collector, which expires the
// entry when the deadline passes whether or not it is read again.
//
// Every entry carrying a deadline has exactly one registration in the
// collector; every removal path cancels it before returning.
type Proactive[K comparable, V any] struct {
	opt options
	gc  gc.Collector[K]
}

// NewProactive returns a collector-driven expiration policy. The policy owns
// the collector: closing the policy closes it.
func NewProactive[K comparable, V any](c gc.Collector[K], opts ...Option) (*Proactive[K, V], error) {
	if c == nil {
		return nil, ErrNoCollector
	}
	return &Proactive[K, V]{opt: buildOptions(opts), gc: c}, nil
}

func (p *Proactive[K, V]) Kind() policy.Kind { return policy.Expiration }

// Bind forwards the cache's expire handle to the collector.
func (p *Proactive[K, V]) Bind(x policy.Expirer[K]) { p.gc.Bind(x) }

// OnGet reports entries whose deadline passed but were not swept yet.
func (p *Proactive[K, V]) OnGet(key K, e *backend.Entry[K, V]) policy.Verdict {
	now := p.opt.clock.Now()
	if e.ExpiredAt(now) {
		return policy.Expired
	}
	if p.opt.sliding && e.TTL > 0 {
		p.cancel(key)
		e.ExpiresAt = now.Add(e.TTL)
		p.gc.Schedule(key, e.ExpiresAt)
	}
	return policy.Valid
}

func (p *Proactive[K, V]) Peek(_ K, e *backend.Entry[K, V]) policy.Verdict {
	if e.ExpiredAt(p.opt.clock.Now()) {
		return policy.Expired
	}
	return policy.Valid
}

// OnSet replaces the deadline; a re-set key loses its old registration.
func (p *Proactive[K, V]) OnSet(key K, e *backend.Entry[K, V], args policy.Args[K]) {
	if e.HasDeadline() {
		p.cancel(key)
	}
	stamp(e, p.opt.clock.Now(), args.TTL)
	if e.HasDeadline() {
		p.gc.Schedule(key, e.ExpiresAt)
	}
}

func (p *Proactive[K, V]) OnUpdate(key K, e *backend.Entry[K, V], _ V, args policy.Args[K]) {
	if args.TTL > 0 {
		p.OnSet(key, e, args)
	}
}

func (p *Proactive[K, V]) OnDelete(key K, e *backend.Entry[K, V]) {
	if e != nil && e.HasDeadline() {
		p.cancel(key)
	}
}

func (p *Proactive[K, V]) OnClear() { p.gc.Clear() }

func (p *Proactive[K, V]) RequiresEntryOnDeletion() bool { return true }

func (p *Proactive[K, V]) Validate(a policy.Args[K]) error { return validate(a) }

// Close stops the collector.
func (p *Proactive[K, V]) Close() { p.gc.Close() }

func (p *Proactive[K, V]) cancel(key K) {
	if !p.gc.Cancel(key) {
		panic(fmt.Sprintf("expiration: no collector registration for key %v", key))
	}
}

var (
	_ policy.Policy[string, int] = (*None[string, int])(nil)
	_ policy.Policy[string, int] = (*Reactive[string, int])(nil)
	_ policy.Peeker[string, int] = (*Reactive[string, int])(nil)
	_ policy.Validator[string]   = (*Reactive[string, int])(nil)
	_ policy.Policy[string, int] = (*Proactive[string, int])(nil)
	_ policy.Peeker[string, int] = (*Proactive[string, int])(nil)
	_ policy.Binder[string]      = (*Proactive[string, int])(nil)
	_ policy.Closer              = (*Proactive[string, int])(nil)
)
