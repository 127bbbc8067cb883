// Package cache provides an in-process, policy-composable key/value cache.
//
// Design
//
//   - Storage: one backend.Backend owns the key→entry mapping. backend.NewMap
//     is the default; backend.NewPooled recycles entries under heavy churn.
//
//   - Policies: an ordered list fixed at construction. Every operation fans
//     out to every policy of the entry's set in registration order: OnGet on
//     hits, OnSet on writes, OnUpdate on in-place updates, OnDelete on every
//     removal whatever triggered it (Delete, expiration, eviction, cascade),
//     OnClear on Clear. Expiration policies come first so that a stale entry
//     never competes in eviction scoring; New rejects other orders.
//
//   - Expiration: policy/expiration provides None, Reactive (checked on
//     access) and Proactive (driven by a gc.Collector), each optionally
//     sliding.
//
//   - Eviction: when an insert takes the cache over Capacity, the first
//     policy implementing policy.Evictor proposes a victim, which is deleted
//     through the standard path. policy/lru, slru, lfu (LFU and LFUDA), gdsf
//     and priority are provided. policy/dependency deletes dependents before
//     the keys they depend on.
//
//   - Events: Subscribe receives set, update, delete, expired, evicted and
//     clear events, delivered in order after the cache lock is released.
//
//   - Variants: NewKeyed selects a policy set per key; NewRenewable wraps a
//     cache with a single-flight loader.
//
// Basic usage
//
//	c := cache.MustNew(cache.Options[string, []byte]{
//	    Capacity: 10_000,
//	    Policies: []policy.Policy[string, []byte]{lru.New[string, []byte]()},
//	})
//	c.Set("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Delete("a")
//
// Proactive TTL
//
//	exp, _ := expiration.NewProactive[string, string](gc.NewHeap[string]())
//	c := cache.MustNew(cache.Options[string, string]{
//	    Policies: []policy.Policy[string, string]{exp},
//	})
//	defer c.Close()
//	c.SetWithTTL("tmp", "v", 200*time.Millisecond)
//	// "tmp" is removed after 200ms even if nobody reads it again.
//
// Renewable
//
//	r := cache.NewRenewable(c, func(ctx context.Context, k string) (string, policy.Args[string], error) {
//	    v, err := fetch(ctx, k)
//	    return v, policy.Args[string]{TTL: time.Minute}, err
//	})
//	v, err := r.Get(ctx, "key") // one fetch per key across concurrent callers
//
// Thread-safety & complexity
//
// All methods on Cache are safe for concurrent use; one mutex serializes
// foreground calls and collector deliveries. Backend operations are O(1);
// policy hooks are O(1) (lru, slru, dependency) or O(log n) (heap-ordered
// policies).
package cache
