package gc

import (
	"fmt"
	"sort"
	"time"

	"github.com/IvanBrykalov/policycache/clock"
)

// Interval is a periodic collector: one timer ticks every period while keys
// are registered, and each tick scans all of them.
type Interval[K comparable] struct {
	base[K]

	period  time.Duration
	pending map[K]time.Time
	timer   clock.Timer
	gen     uint64
}

var _ Collector[string] = (*Interval[string])(nil)

// NewInterval returns a collector sweeping every period.
func NewInterval[K comparable](period time.Duration, opts ...Option) (*Interval[K], error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, period)
	}
	return &Interval[K]{
		base:    newBase[K](buildOptions("interval", opts)),
		period:  period,
		pending: make(map[K]time.Time),
	}, nil
}

// Schedule registers key. The ticker starts with the first registration.
func (c *Interval[K]) Schedule(key K, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, pending := c.pending[key]
	c.checkNewLocked(key, pending)
	c.pending[key] = at
	if c.timer == nil {
		c.armLocked()
	}
}

// Cancel removes key from the scanned set.
func (c *Interval[K]) Cancel(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[key]; ok {
		delete(c.pending, key)
		return true
	}
	return c.cancelFiringLocked(key)
}

// Len implements Collector.
func (c *Interval[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) + len(c.firing)
}

// Clear implements Collector.
func (c *Interval[K]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Close implements Collector.
func (c *Interval[K]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.clearLocked()
}

func (c *Interval[K]) clearLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = make(map[K]time.Time)
	c.firing = make(map[K]uint64)
}

func (c *Interval[K]) armLocked() {
	c.gen++
	gen := c.gen
	c.timer = c.opt.clock.AfterFunc(c.period, func() { c.tick(gen) })
}

func (c *Interval[K]) tick(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	now := c.opt.clock.Now()
	var keys []due[K]
	for k, at := range c.pending {
		if at.After(now) {
			continue
		}
		delete(c.pending, k)
		keys = append(keys, c.startFiringLocked(k, at))
	}
	// Keep ticking only while something is registered.
	if len(c.pending) > 0 {
		c.armLocked()
	} else {
		c.timer = nil
	}
	target := c.target
	c.mu.Unlock()

	sort.SliceStable(keys, func(i, j int) bool { return keys[i].at.Before(keys[j].at) })
	c.deliver(target, keys)
}
