package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/gc"
	"github.com/IvanBrykalov/policycache/policy"
	"github.com/IvanBrykalov/policycache/policy/expiration"
	"github.com/IvanBrykalov/policycache/policy/lfu"
	"github.com/IvanBrykalov/policycache/policy/lru"
)

// benchmarkMix exercises a read/write mix against a warm cache.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
// String keys include strconv/concat costs and often allocate, which is fine
// for an end-to-end benchmark.
func benchmarkMix(b *testing.B, opt Options[string, string], readsPct int, ttl time.Duration) {
	c, err := New(opt)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })

	// Preload half the capacity to get a realistic hit-rate.
	for i := 0; i < 50_000; i++ {
		c.Set("k:"+strconv.Itoa(i), "v")
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1 // hot keyspace

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			switch {
			case r.Intn(100) < readsPct:
				c.Get(k)
			case ttl > 0:
				c.SetWithTTL(k, "v", ttl)
			default:
				c.Set(k, "v")
			}
			i++
		}
	})
}

func lruOptions() Options[string, string] {
	return Options[string, string]{
		Capacity: 100_000,
		Policies: []policy.Policy[string, string]{lru.New[string, string]()},
	}
}

func BenchmarkCache_LRU_90r10w(b *testing.B) { benchmarkMix(b, lruOptions(), 90, 0) }
func BenchmarkCache_LRU_50r50w(b *testing.B) { benchmarkMix(b, lruOptions(), 50, 0) }

func BenchmarkCache_LRU_Pooled_50r50w(b *testing.B) {
	opt := lruOptions()
	opt.Backend = backend.NewPooled[string, string]()
	benchmarkMix(b, opt, 50, 0)
}

func BenchmarkCache_LFU_90r10w(b *testing.B) {
	benchmarkMix(b, Options[string, string]{
		Capacity: 100_000,
		Policies: []policy.Policy[string, string]{lfu.New[string, string]()},
	}, 90, 0)
}

func benchmarkProactive(b *testing.B, col gc.Collector[string]) {
	exp, err := expiration.NewProactive[string, string](col)
	if err != nil {
		b.Fatal(err)
	}
	benchmarkMix(b, Options[string, string]{
		Capacity: 100_000,
		Policies: []policy.Policy[string, string]{exp, lru.New[string, string]()},
	}, 50, time.Minute)
}

func BenchmarkCache_ProactiveHeap_50r50w(b *testing.B) {
	benchmarkProactive(b, gc.NewHeap[string]())
}

func BenchmarkCache_ProactiveBucket_50r50w(b *testing.B) {
	col, err := gc.NewBucket[string](time.Second)
	if err != nil {
		b.Fatal(err)
	}
	benchmarkProactive(b, col)
}

// benchmarkMixInt is the same workload with int keys and no expiration.
// This removes strconv/alloc noise and better exposes the cache hot path.
func benchmarkMixInt(b *testing.B, readsPct int) {
	c, err := New(Options[int, int]{
		Capacity: 100_000,
		Policies: []policy.Policy[int, int]{lru.New[int, int]()},
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })

	for i := 0; i < 50_000; i++ {
		c.Set(i, 1)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := i & keyMask
			if r.Intn(100) < readsPct {
				c.Get(k)
			} else {
				c.Set(k, 1)
			}
			i++
		}
	})
}

func BenchmarkCache_IntKeys_90r10w(b *testing.B) { benchmarkMixInt(b, 90) }
func BenchmarkCache_IntKeys_50r50w(b *testing.B) { benchmarkMixInt(b, 50) }
