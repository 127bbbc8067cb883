package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/gc"
	"github.com/IvanBrykalov/policycache/policy"
	"github.com/IvanBrykalov/policycache/policy/dependency"
	"github.com/IvanBrykalov/policycache/policy/expiration"
	"github.com/IvanBrykalov/policycache/policy/lru"
)

// A mixed workload of concurrent Set/Get/SetWithTTL/Delete on random keys,
// with a real-time collector sweeping in the background.
// Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	exp, err := expiration.NewProactive[string, []byte](gc.NewHeap[string]())
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(Options[string, []byte]{
		Backend:  backend.NewPooled[string, []byte](),
		Capacity: 4_096,
		Policies: []policy.Policy[string, []byte]{exp, lru.New[string, []byte](), dependency.New[string, []byte]()},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	var events atomic.Int64
	c.Subscribe(func(Event[string, []byte]) { events.Add(1) })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 20_000
	deadline := time.Now().Add(time.Second)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% Delete
					c.Delete(k)
				case 5, 6, 7, 8, 9: // ~5% SetWithTTL
					c.SetWithTTL(k, []byte("x"), time.Duration(1+r.Intn(20))*time.Millisecond)
				case 10, 11: // ~2% dependent Set
					parent := "k:" + strconv.Itoa(r.Intn(keyspace))
					if err := c.SetWithArgs(k, []byte("d"), policy.Args[string]{DependsOn: []string{parent}}); err != nil {
						return err
					}
				case 12, 13, 14, 15, 16, 17, 18, 19: // ~8% Set
					c.Set(k, []byte("x"))
				case 20:
					c.Has(k)
				default: // ~80% Get
					c.Get(k)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := c.Len(); n > 4_096 {
		t.Fatalf("Len %d exceeds capacity", n)
	}
	if events.Load() == 0 {
		t.Fatal("no events delivered")
	}
}

// One hundred goroutines call Get on the same absent key concurrently.
// The Loader must run once.
func TestRace_RenewableGet(t *testing.T) {
	var calls atomic.Int64

	c, err := New(Options[string, string]{
		Capacity: 1024,
		Policies: []policy.Policy[string, string]{lru.New[string, string]()},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	r := NewRenewable(c, func(_ context.Context, k string) (string, policy.Args[string], error) {
		calls.Add(1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v:" + k, policy.Args[string]{}, nil
	})
	t.Cleanup(func() { _ = r.Close() })

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var g errgroup.Group
	for range goroutines {
		g.Go(func() error {
			<-start
			v, err := r.Get(context.Background(), key)
			if err != nil {
				return err
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
			return nil
		})
	}

	close(start)
	if err := g.Wait(); err != nil {
		t.Fatalf("Get error: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader should run once, got %d", got)
	}
}
