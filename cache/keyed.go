package cache

import (
	"fmt"

	"github.com/IvanBrykalov/policycache/policy"
)

// keyed exposes the named policy sets of a cache.
type keyed[K comparable, V any] struct {
	*cache[K, V]
}

// NewKeyed constructs a cache whose keys can be managed by different policy
// sets. Options.Policies is the "default" set used by Set, Add and friends;
// sets names the additional ones, selected per key with SetIn.
//
// Capacity is shared: when an insert overflows it, the inserted key's set is
// asked for a victim first, then the other sets in name order.
func NewKeyed[K comparable, V any](opt Options[K, V], sets map[string][]policy.Policy[K, V]) (Keyed[K, V], error) {
	c, err := newCache(opt, sets)
	if err != nil {
		return nil, err
	}
	return keyed[K, V]{c}, nil
}

// SetIn inserts or replaces k→v under the named set.
func (c keyed[K, V]) SetIn(set string, k K, v V, args policy.Args[K]) error {
	idx, ok := c.byName[set]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicySet, set)
	}
	return c.set(idx, k, v, args.WithDefaults(c.opt.DefaultArgs), true)
}

// SetOf returns the name of the set managing k.
func (c keyed[K, V]) SetOf(k K) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.be.Get(k)
	if !ok {
		return "", false
	}
	return c.sets[e.PolicySet].name, true
}
