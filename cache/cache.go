package cache

import (
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-reflect"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/internal/util"
	"github.com/IvanBrykalov/policycache/policy"
)

// policySet is one ordered policy list with its capabilities resolved once.
type policySet[K comparable, V any] struct {
	name       string
	policies   []policy.Policy[K, V]
	peekers    []policy.Peeker[K, V]
	evictors   []policy.Evictor[K]
	cascaders  []policy.Cascader[K]
	validators []policy.Validator[K]
	needsEntry bool // some policy wants the entry in OnDelete
}

func newPolicySet[K comparable, V any](name string, ps []policy.Policy[K, V]) (*policySet[K, V], error) {
	s := &policySet[K, V]{name: name, policies: ps}
	seenEviction, expirations := false, 0
	for i, p := range ps {
		if p == nil {
			return nil, fmt.Errorf("%w: set %q position %d", ErrNilPolicy, name, i)
		}
		switch p.Kind() {
		case policy.Expiration:
			if seenEviction {
				return nil, fmt.Errorf("%w: set %q: %s at position %d", ErrExpirationOrder, name, typeName(p), i)
			}
			expirations++
			if expirations > 1 {
				return nil, fmt.Errorf("%w: set %q: %s at position %d", ErrMultipleExpiration, name, typeName(p), i)
			}
		case policy.Eviction:
			seenEviction = true
		}
		if x, ok := p.(policy.Peeker[K, V]); ok {
			s.peekers = append(s.peekers, x)
		}
		if x, ok := p.(policy.Evictor[K]); ok {
			s.evictors = append(s.evictors, x)
		}
		if x, ok := p.(policy.Cascader[K]); ok {
			s.cascaders = append(s.cascaders, x)
		}
		if x, ok := p.(policy.Validator[K]); ok {
			s.validators = append(s.validators, x)
		}
		s.needsEntry = s.needsEntry || p.RequiresEntryOnDeletion()
	}
	return s, nil
}

func (s *policySet[K, V]) validate(a policy.Args[K]) error {
	for _, v := range s.validators {
		if err := v.Validate(a); err != nil {
			return fmt.Errorf("set %q: %s: %w", s.name, typeName(v), err)
		}
	}
	return nil
}

func typeName(v any) string { return reflect.TypeOf(v).String() }

const defaultSet = "default"

// cache is the policy-composed key/value store behind New and NewKeyed.
// One mutex serializes foreground calls and collector deliveries.
type cache[K comparable, V any] struct {
	mu     sync.Mutex
	be     backend.Backend[K, V]
	sets   []*policySet[K, V]
	byName map[string]int
	// victimOrder[i] lists the sets asked for a victim when an insert into
	// set i overflows: i first, then the others by name.
	victimOrder [][]int
	hasCascade  bool
	closed      bool

	opt Options[K, V]
	log *zap.Logger

	// events
	emitMu  sync.Mutex
	subs    []subscriber[K, V]
	subSeq  uint64
	pending []Event[K, V]

	hits, misses, writes, updates, deletes, evictions, expirations util.PaddedAtomicUint64
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Backend  -> backend.NewMap
//   - nil Logger   -> zap.NewNop()
//   - nil Metrics  -> NoopMetrics
func New[K comparable, V any](opt Options[K, V]) (Cache[K, V], error) {
	c, err := newCache(opt, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew is like New but panics on configuration errors.
func MustNew[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	c, err := New(opt)
	if err != nil {
		panic(err)
	}
	return c
}

func newCache[K comparable, V any](opt Options[K, V], extra map[string][]policy.Policy[K, V]) (*cache[K, V], error) {
	opt.withDefaults()
	if opt.Capacity < 0 {
		return nil, fmt.Errorf("cache: negative capacity %d", opt.Capacity)
	}

	c := &cache[K, V]{
		be:     opt.Backend,
		byName: make(map[string]int),
		opt:    opt,
		log:    opt.Logger.Named("policycache"),
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		if name == defaultSet {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePolicySet, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	lists := append([][]policy.Policy[K, V]{opt.Policies}, make([][]policy.Policy[K, V], len(names))...)
	for i, name := range names {
		lists[i+1] = extra[name]
	}
	hasEvictor := false
	for i, ps := range lists {
		name := defaultSet
		if i > 0 {
			name = names[i-1]
		}
		s, err := newPolicySet(name, ps)
		if err != nil {
			return nil, err
		}
		if err := s.validate(opt.DefaultArgs); err != nil {
			return nil, fmt.Errorf("cache: default args: %w", err)
		}
		hasEvictor = hasEvictor || len(s.evictors) > 0
		c.hasCascade = c.hasCascade || len(s.cascaders) > 0
		c.byName[name] = i
		c.sets = append(c.sets, s)
	}
	if opt.Capacity > 0 && !hasEvictor {
		return nil, ErrNoEvictor
	}

	for i := range c.sets {
		order := []int{i}
		for j := range c.sets {
			if j != i {
				order = append(order, j)
			}
		}
		c.victimOrder = append(c.victimOrder, order)
	}

	for _, s := range c.sets {
		for _, p := range s.policies {
			if b, ok := p.(policy.Binder[K]); ok {
				b.Bind(c)
			}
		}
	}
	return c, nil
}

// ---- Cache[K,V] implementation ----

// Get returns the value for k and a presence flag.
// On hit, every policy of the entry's set sees the access.
func (c *cache[K, V]) Get(k K) (V, bool) {
	v, ok := c.lookup(k)
	if ok {
		c.hits.Add(1)
		c.opt.Metrics.Hit()
	} else {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
	}
	return v, ok
}

// lookup is Get without hit and miss accounting.
func (c *cache[K, V]) lookup(k K) (V, bool) {
	c.mu.Lock()
	v, ok := c.getLocked(k)
	c.mu.Unlock()
	c.flush()
	return v, ok
}

func (c *cache[K, V]) getLocked(k K) (V, bool) {
	var zero V
	if c.closed {
		return zero, false
	}
	e, ok := c.be.Get(k)
	if !ok {
		return zero, false
	}
	for _, p := range c.sets[e.PolicySet].policies {
		if p.OnGet(k, e) == policy.Expired {
			c.expireLocked(k)
			return zero, false
		}
	}
	return e.Value, true
}

// Has reports presence using side-effect-free checks only.
func (c *cache[K, V]) Has(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	e, ok := c.be.Get(k)
	return ok && c.liveLocked(k, e)
}

func (c *cache[K, V]) liveLocked(k K, e *backend.Entry[K, V]) bool {
	for _, p := range c.sets[e.PolicySet].peekers {
		if p.Peek(k, e) == policy.Expired {
			return false
		}
	}
	return true
}

// Set inserts or replaces k→v with the default arguments.
func (c *cache[K, V]) Set(k K, v V) {
	_ = c.set(-1, k, v, c.opt.DefaultArgs, false)
}

// SetWithTTL inserts or replaces k→v with a per-key TTL.
// A non-positive ttl disables expiration for this entry.
func (c *cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	args := c.opt.DefaultArgs
	args.TTL = max(ttl, 0)
	_ = c.set(-1, k, v, args, false)
}

// SetWithArgs inserts or replaces k→v; zero fields come from DefaultArgs.
func (c *cache[K, V]) SetWithArgs(k K, v V, args policy.Args[K]) error {
	return c.set(-1, k, v, args.WithDefaults(c.opt.DefaultArgs), true)
}

// Add inserts k→v only if absent (an expired entry counts as absent).
func (c *cache[K, V]) Add(k K, v V) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if e, ok := c.be.Get(k); ok {
		if c.liveLocked(k, e) {
			c.mu.Unlock()
			return false
		}
		c.expireLocked(k)
	}
	c.setLocked(0, k, v, c.opt.DefaultArgs)
	c.mu.Unlock()
	c.flush()
	return true
}

// set writes k→v under set idx; a negative idx keeps the key's current set
// (the default set for new keys).
func (c *cache[K, V]) set(idx int, k K, v V, args policy.Args[K], validate bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if idx < 0 {
		idx = c.setIndexLocked(k)
	}
	if validate {
		if err := c.sets[idx].validate(args); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.setLocked(idx, k, v, args)
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *cache[K, V]) setIndexLocked(k K) int {
	if e, ok := c.be.Get(k); ok {
		return e.PolicySet
	}
	return 0
}

// setLocked writes k→v under set idx, notifies the set and restores the
// capacity bound. The new entry itself may be chosen as the victim.
func (c *cache[K, V]) setLocked(idx int, k K, v V, args policy.Args[K]) {
	if e, ok := c.be.Get(k); ok && e.PolicySet != idx {
		// Moving between sets: the old set forgets the key silently. Edges
		// declared by k's dependents stay with their sets, so deleting k later
		// still cascades to them.
		c.removeLocked(k, EventDelete, false)
	}
	e, created := c.be.Set(k, v)
	if created {
		e.PolicySet = idx
	}
	for _, p := range c.sets[idx].policies {
		p.OnSet(k, e, args)
	}
	c.writes.Add(1)
	c.emitLocked(Event[K, V]{Type: EventSet, Key: k, Value: v})
	c.evictLocked(idx)
	c.opt.Metrics.Size(c.be.Len())
}

// Update replaces the value of a live key in place.
func (c *cache[K, V]) Update(k K, v V) bool {
	c.mu.Lock()
	ok := !c.closed && c.updateLocked(k, v, policy.Args[K]{})
	c.mu.Unlock()
	c.flush()
	return ok
}

func (c *cache[K, V]) updateLocked(k K, v V, args policy.Args[K]) bool {
	e, ok := c.be.Get(k)
	if !ok {
		return false
	}
	if !c.liveLocked(k, e) {
		c.expireLocked(k)
		return false
	}
	old := e.Value
	e.Value = v
	for _, p := range c.sets[e.PolicySet].policies {
		p.OnUpdate(k, e, old, args)
	}
	c.updates.Add(1)
	c.emitLocked(Event[K, V]{Type: EventUpdate, Key: k, Value: v, Old: old})
	return true
}

// Upset updates k when live, keeping every metadata field args leaves zero;
// otherwise it sets k with args merged over the defaults.
func (c *cache[K, V]) Upset(k K, v V, args policy.Args[K]) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	idx := c.setIndexLocked(k)
	if err := c.sets[idx].validate(args); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.updateLocked(k, v, args) {
		c.setLocked(idx, k, v, args.WithDefaults(c.opt.DefaultArgs))
	}
	c.mu.Unlock()
	c.flush()
	return nil
}

// Delete removes k (dependents first) and returns true if it was present.
func (c *cache[K, V]) Delete(k K) bool {
	c.mu.Lock()
	ok := !c.closed && c.deleteLocked(k, EventDelete)
	c.mu.Unlock()
	c.flush()
	return ok
}

// Clear removes every entry and resets every policy.
func (c *cache[K, V]) Clear() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.be.Clear()
	for _, s := range c.sets {
		for _, p := range s.policies {
			p.OnClear()
		}
	}
	c.emitLocked(Event[K, V]{Type: EventClear})
	c.opt.Metrics.Size(0)
	c.mu.Unlock()
	c.flush()
}

// Len returns the number of resident entries.
func (c *cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.be.Len()
}

// All iterates over a snapshot of live pairs taken when iteration starts.
func (c *cache[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		type kv struct {
			k K
			v V
		}
		c.mu.Lock()
		snap := make([]kv, 0, c.be.Len())
		if !c.closed {
			for e := range c.be.All() {
				if c.liveLocked(e.Key, e) {
					snap = append(snap, kv{e.Key, e.Value})
				}
			}
		}
		c.mu.Unlock()

		for _, p := range snap {
			if !yield(p.k, p.v) {
				return
			}
		}
	}
}

// Stats returns cumulative counters.
func (c *cache[K, V]) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.writes.Load(),
		Updates:     c.updates.Load(),
		Deletes:     c.deletes.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// Close closes every policy that owns resources and marks the cache closed.
func (c *cache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var closers []policy.Closer
	for _, s := range c.sets {
		for _, p := range s.policies {
			if cl, ok := p.(policy.Closer); ok {
				closers = append(closers, cl)
			}
		}
	}
	c.mu.Unlock()

	for _, cl := range closers {
		cl.Close()
	}
	return nil
}

// Expire implements policy.Expirer for collectors. The entry is removed only
// if it still carries a deadline that is not after deadline, so a key renewed
// or re-set while the collector was firing survives.
func (c *cache[K, V]) Expire(k K, deadline time.Time) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e, ok := c.be.Get(k)
	if !ok || !e.HasDeadline() || e.ExpiresAt.After(deadline) {
		c.mu.Unlock()
		return
	}
	c.expireLocked(k)
	c.mu.Unlock()
	c.flush()
}

// ---- removal paths ----

func (c *cache[K, V]) expireLocked(k K) {
	if c.deleteLocked(k, EventExpired) {
		c.log.Debug("entry expired", zap.Any("key", k))
	}
}

// evictLocked deletes victims until the capacity bound holds.
func (c *cache[K, V]) evictLocked(idx int) {
	if c.opt.Capacity <= 0 {
		return
	}
	for c.be.Len() > c.opt.Capacity {
		k, ok := c.victimLocked(idx)
		if !ok {
			c.log.Warn("no policy proposed a victim over capacity",
				zap.Int("len", c.be.Len()), zap.Int("capacity", c.opt.Capacity))
			return
		}
		if !c.deleteLocked(k, EventEvicted) {
			c.log.Warn("eviction victim is not resident", zap.Any("key", k))
			return
		}
		c.log.Debug("entry evicted", zap.Any("key", k))
	}
}

func (c *cache[K, V]) victimLocked(idx int) (K, bool) {
	for _, si := range c.victimOrder[idx] {
		for _, ev := range c.sets[si].evictors {
			if k, ok := ev.Victim(); ok {
				return k, true
			}
		}
	}
	var zero K
	return zero, false
}

// deleteLocked is the single removal path: dependents first (depth-first),
// then backend removal, then OnDelete on every policy of the entry's set.
// Each key is removed at most once per call, even on cyclic dependencies.
func (c *cache[K, V]) deleteLocked(k K, typ EventType) bool {
	var seen map[K]struct{}
	if c.hasCascade {
		seen = make(map[K]struct{})
	}
	return c.deleteRec(k, typ, seen)
}

func (c *cache[K, V]) deleteRec(k K, typ EventType, seen map[K]struct{}) bool {
	if _, ok := c.be.Get(k); !ok {
		return false
	}
	if seen != nil {
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		// Dependents may live in any set: edges are kept by the dependent's
		// set, whichever set k belongs to.
		for _, s := range c.sets {
			for _, cs := range s.cascaders {
				for _, d := range cs.Dependents(k) {
					if c.deleteRec(d, EventDelete, seen) {
						c.opt.Metrics.Evict(EvictCascade)
					}
				}
			}
		}
	}

	return c.removeLocked(k, typ, true)
}

// removeLocked detaches k from the backend and from its set's policies. With
// emit unset the removal is silent: no event, no counters.
func (c *cache[K, V]) removeLocked(k K, typ EventType, emit bool) bool {
	e, ok := c.be.Remove(k)
	if !ok {
		return false
	}
	s := c.sets[e.PolicySet]
	arg := e
	if !s.needsEntry {
		arg = nil
	}
	for _, p := range s.policies {
		p.OnDelete(k, arg)
	}
	v := e.Value
	c.be.Recycle(e)
	if !emit {
		return true
	}

	c.emitLocked(Event[K, V]{Type: typ, Key: k, Value: v})
	switch typ {
	case EventExpired:
		c.expirations.Add(1)
		c.opt.Metrics.Evict(EvictExpired)
	case EventEvicted:
		c.evictions.Add(1)
		c.opt.Metrics.Evict(EvictCapacity)
	default:
		c.deletes.Add(1)
	}
	c.opt.Metrics.Size(c.be.Len())
	return true
}

var _ policy.Expirer[string] = (*cache[string, int])(nil)
