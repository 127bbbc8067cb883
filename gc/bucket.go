package gc

import (
	"fmt"
	"time"

	"github.com/IvanBrykalov/policycache/clock"
)

type bucket[K comparable] struct {
	id      int64
	loc     *time.Location
	members map[K]time.Time
	timer   clock.Timer
}

// Bucket is an approximate collector: deadlines are grouped by
// floor(at / width) and each non-empty bucket owns one timer that fires at
// the bucket's end.
type Bucket[K comparable] struct {
	base[K]

	width   time.Duration
	buckets map[int64]*bucket[K]
	index   map[K]int64 // key → bucket id
}

var _ Collector[string] = (*Bucket[string])(nil)

// NewBucket returns a bucket-based collector with the given bucket width.
func NewBucket[K comparable](width time.Duration, opts ...Option) (*Bucket[K], error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWidth, width)
	}
	return &Bucket[K]{
		base:    newBase[K](buildOptions("bucket", opts)),
		width:   width,
		buckets: make(map[int64]*bucket[K]),
		index:   make(map[K]int64),
	}, nil
}

// bucketID returns floor(at / width), also for instants before the epoch.
func (c *Bucket[K]) bucketID(at time.Time) int64 {
	n, w := at.UnixNano(), int64(c.width)
	id := n / w
	if n%w != 0 && n < 0 {
		id--
	}
	return id
}

// bucketEnd returns the end of bucket id in loc.
func (c *Bucket[K]) bucketEnd(id int64, loc *time.Location) time.Time {
	return time.Unix(0, (id+1)*int64(c.width)).In(loc)
}

// Schedule registers key in the bucket covering at. O(1).
func (c *Bucket[K]) Schedule(key K, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, pending := c.index[key]
	c.checkNewLocked(key, pending)

	id := c.bucketID(at)
	b, ok := c.buckets[id]
	if !ok {
		b = &bucket[K]{id: id, loc: at.Location(), members: make(map[K]time.Time)}
		c.buckets[id] = b
		end := c.bucketEnd(id, b.loc)
		b.timer = c.opt.clock.AfterFunc(end.Sub(c.opt.clock.Now()), func() { c.fire(b) })
	}
	b.members[key] = at
	c.index[key] = id
}

// Cancel removes key from its bucket, disarming the bucket once empty. O(1).
func (c *Bucket[K]) Cancel(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.index[key]
	if !ok {
		return c.cancelFiringLocked(key)
	}
	delete(c.index, key)
	b := c.buckets[id]
	delete(b.members, key)
	if len(b.members) == 0 {
		b.timer.Stop()
		delete(c.buckets, id)
	}
	return true
}

// Len implements Collector.
func (c *Bucket[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index) + len(c.firing)
}

// Buckets returns the number of armed buckets.
func (c *Bucket[K]) Buckets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// Clear implements Collector.
func (c *Bucket[K]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Close implements Collector.
func (c *Bucket[K]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.clearLocked()
}

func (c *Bucket[K]) clearLocked() {
	for _, b := range c.buckets {
		b.timer.Stop()
	}
	c.buckets = make(map[int64]*bucket[K])
	c.index = make(map[K]int64)
	c.firing = make(map[K]uint64)
}

// fire delivers every member of b. Members are expired against the bucket's
// end, which is not before any member's own deadline.
func (c *Bucket[K]) fire(b *bucket[K]) {
	c.mu.Lock()
	if c.closed || c.buckets[b.id] != b {
		c.mu.Unlock()
		return
	}
	delete(c.buckets, b.id)
	end := c.bucketEnd(b.id, b.loc)
	keys := make([]due[K], 0, len(b.members))
	for k := range b.members {
		delete(c.index, k)
		keys = append(keys, c.startFiringLocked(k, end))
	}
	target := c.target
	c.mu.Unlock()

	c.deliver(target, keys)
}
