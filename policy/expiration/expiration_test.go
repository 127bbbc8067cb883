package expiration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/clock"
	"github.com/IvanBrykalov/policycache/gc"
	"github.com/IvanBrykalov/policycache/policy"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ttl(d time.Duration) policy.Args[string] { return policy.Args[string]{TTL: d} }

// Reactive expires on access only, at exactly now >= deadline.
func TestReactive_Expiry(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(epoch)
	p := NewReactive[string, int](WithClock(clk))
	e := &backend.Entry[string, int]{Key: "a"}

	p.OnSet("a", e, ttl(time.Second))
	require.Equal(t, epoch.Add(time.Second), e.ExpiresAt)

	clk.Advance(999 * time.Millisecond)
	require.Equal(t, policy.Valid, p.OnGet("a", e))
	clk.Advance(time.Millisecond)
	require.Equal(t, policy.Expired, p.Peek("a", e))
	require.Equal(t, policy.Expired, p.OnGet("a", e))
}

// Without a TTL nothing is stamped.
func TestReactive_NoTTL(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(epoch)
	p := NewReactive[string, int](WithClock(clk))
	e := &backend.Entry[string, int]{Key: "a"}
	p.OnSet("a", e, policy.Args[string]{})
	require.False(t, e.HasDeadline())

	clk.Advance(24 * time.Hour)
	require.Equal(t, policy.Valid, p.OnGet("a", e))
}

// Update with a zero TTL keeps the deadline; a positive TTL replaces it.
func TestReactive_Update(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(epoch)
	p := NewReactive[string, int](WithClock(clk))
	e := &backend.Entry[string, int]{Key: "a"}
	p.OnSet("a", e, ttl(time.Second))

	clk.Advance(500 * time.Millisecond)
	p.OnUpdate("a", e, 0, policy.Args[string]{})
	require.Equal(t, epoch.Add(time.Second), e.ExpiresAt)

	p.OnUpdate("a", e, 0, ttl(time.Second))
	require.Equal(t, epoch.Add(1500*time.Millisecond), e.ExpiresAt)
}

// Sliding renews on OnGet but not on Peek.
func TestReactive_Sliding(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(epoch)
	p := NewReactive[string, int](WithClock(clk), Sliding())
	e := &backend.Entry[string, int]{Key: "a"}
	p.OnSet("a", e, ttl(time.Second))

	for range 5 {
		clk.Advance(800 * time.Millisecond)
		require.Equal(t, policy.Valid, p.OnGet("a", e))
	}
	require.Equal(t, clk.Now().Add(time.Second), e.ExpiresAt)

	before := e.ExpiresAt
	clk.Advance(500 * time.Millisecond)
	require.Equal(t, policy.Valid, p.Peek("a", e))
	require.Equal(t, before, e.ExpiresAt)

	clk.Advance(500 * time.Millisecond)
	require.Equal(t, policy.Expired, p.OnGet("a", e))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	p := NewReactive[string, int]()
	require.NoError(t, p.Validate(ttl(time.Second)))
	require.ErrorIs(t, p.Validate(ttl(-time.Second)), policy.ErrInvalidArgs)
}

// expirer mimics the cache delete path for a single entry.
type expirer struct {
	p       *Proactive[string, int]
	entries map[string]*backend.Entry[string, int]
	expired []string
}

func (x *expirer) Expire(key string, deadline time.Time) {
	e, ok := x.entries[key]
	if !ok || !e.HasDeadline() || e.ExpiresAt.After(deadline) {
		return
	}
	delete(x.entries, key)
	x.p.OnDelete(key, e)
	x.expired = append(x.expired, key)
}

func newProactive(t *testing.T, opts ...Option) (*Proactive[string, int], *gc.Heap[string], *clock.Fake, *expirer) {
	t.Helper()
	clk := clock.NewFake(epoch)
	col := gc.NewHeap[string](gc.WithClock(clk))
	p, err := NewProactive[string, int](col, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	x := &expirer{p: p, entries: map[string]*backend.Entry[string, int]{}}
	p.Bind(x)
	t.Cleanup(p.Close)
	return p, col, clk, x
}

func (x *expirer) set(key string, d time.Duration) *backend.Entry[string, int] {
	e, ok := x.entries[key]
	if !ok {
		e = &backend.Entry[string, int]{Key: key}
		x.entries[key] = e
	}
	x.p.OnSet(key, e, ttl(d))
	return e
}

func TestNewProactive_NilCollector(t *testing.T) {
	t.Parallel()

	_, err := NewProactive[string, int](nil)
	require.ErrorIs(t, err, ErrNoCollector)
}

// Entries expire when the collector fires, without any read.
func TestProactive_ExpiresWithoutAccess(t *testing.T) {
	t.Parallel()

	_, col, clk, x := newProactive(t)
	x.set("a", time.Second)
	x.set("b", 2*time.Second)
	require.Equal(t, 2, col.Len())

	clk.Advance(1500 * time.Millisecond)
	require.Equal(t, []string{"a"}, x.expired)
	clk.Advance(time.Second)
	require.Equal(t, []string{"a", "b"}, x.expired)
	require.Zero(t, col.Len())
}

// Deleting an entry cancels its registration synchronously.
func TestProactive_DeleteCancels(t *testing.T) {
	t.Parallel()

	p, col, clk, x := newProactive(t)
	e := x.set("a", time.Second)
	delete(x.entries, "a")
	p.OnDelete("a", e)
	require.Zero(t, col.Len())

	clk.Advance(2 * time.Second)
	require.Empty(t, x.expired)
}

// Deleting an entry that should be registered but is not is an invariant
// violation.
func TestProactive_MissingRegistrationPanics(t *testing.T) {
	t.Parallel()

	p, _, _, _ := newProactive(t)
	e := &backend.Entry[string, int]{Key: "ghost", ExpiresAt: epoch.Add(time.Second)}
	require.Panics(t, func() { p.OnDelete("ghost", e) })
}

// Re-setting and updating move the registration.
func TestProactive_Reschedule(t *testing.T) {
	t.Parallel()

	p, col, clk, x := newProactive(t)
	e := x.set("a", time.Second)
	x.set("a", 3*time.Second)
	require.Equal(t, 1, col.Len())
	at, _ := col.NextFire()
	require.Equal(t, epoch.Add(3*time.Second), at)

	p.OnUpdate("a", e, 0, policy.Args[string]{})
	at, _ = col.NextFire()
	require.Equal(t, epoch.Add(3*time.Second), at, "zero TTL keeps the deadline")

	p.OnUpdate("a", e, 0, ttl(5*time.Second))
	at, _ = col.NextFire()
	require.Equal(t, epoch.Add(5*time.Second), at)

	// Dropping the TTL on re-set removes the registration.
	x.set("a", 0)
	require.Zero(t, col.Len())
	clk.Advance(10 * time.Second)
	require.Empty(t, x.expired)
}

// Sliding moves the registration on every read.
func TestProactive_Sliding(t *testing.T) {
	t.Parallel()

	p, col, clk, x := newProactive(t, Sliding())
	e := x.set("a", time.Second)

	for range 3 {
		clk.Advance(900 * time.Millisecond)
		require.Equal(t, policy.Valid, p.OnGet("a", e))
	}
	at, _ := col.NextFire()
	require.Equal(t, clk.Now().Add(time.Second), at)
	require.Empty(t, x.expired)

	clk.Advance(time.Second)
	require.Equal(t, []string{"a"}, x.expired)
}

// OnClear drops every registration.
func TestProactive_Clear(t *testing.T) {
	t.Parallel()

	p, col, clk, x := newProactive(t)
	x.set("a", time.Second)
	x.set("b", time.Second)
	x.entries = map[string]*backend.Entry[string, int]{}
	p.OnClear()
	require.Zero(t, col.Len())

	clk.Advance(2 * time.Second)
	require.Empty(t, x.expired)
}

func TestNone(t *testing.T) {
	t.Parallel()

	p := NewNone[string, int]()
	e := &backend.Entry[string, int]{Key: "a"}
	p.OnSet("a", e, ttl(time.Nanosecond))
	require.False(t, e.HasDeadline())
	require.Equal(t, policy.Valid, p.OnGet("a", e))
	require.Equal(t, policy.Expiration, p.Kind())
}
