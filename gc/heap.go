package gc

import (
	"time"

	"github.com/IvanBrykalov/policycache/clock"
	"github.com/IvanBrykalov/policycache/internal/heap"
)

// deadline orders heap registrations; seq breaks ties FIFO.
type deadline struct {
	at  time.Time
	seq uint64
}

func deadlineLess(a, b deadline) bool {
	if a.at.Equal(b.at) {
		return a.seq < b.seq
	}
	return a.at.Before(b.at)
}

// Heap is an exact collector: a single timer is always armed for the
// earliest registered deadline.
type Heap[K comparable] struct {
	base[K]

	h   *heap.Heap[K, deadline]
	seq uint64

	timer   clock.Timer
	armedAt time.Time
	gen     uint64 // identifies the current timer; stale fires are ignored
}

var _ Collector[string] = (*Heap[string])(nil)

// NewHeap returns a heap-based collector.
func NewHeap[K comparable](opts ...Option) *Heap[K] {
	return &Heap[K]{
		base: newBase[K](buildOptions("heap", opts)),
		h:    heap.New[K, deadline](deadlineLess),
	}
}

// Schedule registers key to expire at at. O(log n).
func (c *Heap[K]) Schedule(key K, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkNewLocked(key, c.h.Contains(key))
	c.seq++
	c.h.Push(key, deadline{at: at, seq: c.seq})
	c.armLocked()
}

// Cancel removes key's registration. O(log n). Cancelling a non-minimum key
// does not touch the armed timer.
func (c *Heap[K]) Cancel(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.h.Remove(key); ok {
		c.armLocked()
		return true
	}
	return c.cancelFiringLocked(key)
}

// Len implements Collector.
func (c *Heap[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h.Len() + len(c.firing)
}

// NextFire returns the deadline the timer is armed for.
func (c *Heap[K]) NextFire() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		return time.Time{}, false
	}
	return c.armedAt, true
}

// Clear implements Collector.
func (c *Heap[K]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Close implements Collector.
func (c *Heap[K]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.clearLocked()
}

func (c *Heap[K]) clearLocked() {
	c.disarmLocked()
	c.h.Clear()
	c.firing = make(map[K]uint64)
}

// armLocked keeps exactly one timer armed for the current minimum.
func (c *Heap[K]) armLocked() {
	if c.closed {
		return
	}
	_, d, ok := c.h.Peek()
	if !ok {
		c.disarmLocked()
		return
	}
	if c.timer != nil && c.armedAt.Equal(d.at) {
		return
	}
	c.disarmLocked()
	c.gen++
	gen := c.gen
	c.armedAt = d.at
	c.timer = c.opt.clock.AfterFunc(d.at.Sub(c.opt.clock.Now()), func() { c.fire(gen) })
}

func (c *Heap[K]) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.armedAt = time.Time{}
	}
}

// fire pops every registration due at the current time, re-arms for the new
// minimum and delivers the popped keys in deadline order.
func (c *Heap[K]) fire(gen uint64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if gen == c.gen {
		c.timer = nil
		c.armedAt = time.Time{}
	}
	now := c.opt.clock.Now()
	var keys []due[K]
	for {
		k, d, ok := c.h.Peek()
		if !ok || d.at.After(now) {
			break
		}
		c.h.Pop()
		keys = append(keys, c.startFiringLocked(k, d.at))
	}
	c.armLocked()
	target := c.target
	c.mu.Unlock()

	c.deliver(target, keys)
}
