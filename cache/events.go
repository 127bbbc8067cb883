package cache

// EventType identifies what happened to an entry.
type EventType int

const (
	EventSet EventType = iota
	EventUpdate
	EventDelete
	EventExpired
	EventEvicted
	EventClear
)

func (t EventType) String() string {
	switch t {
	case EventSet:
		return "set"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	case EventExpired:
		return "expired"
	case EventEvicted:
		return "evicted"
	case EventClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Event describes one cache mutation. Key and Value are zero for EventClear.
// For EventUpdate, Old holds the replaced value.
type Event[K comparable, V any] struct {
	Type  EventType
	Key   K
	Value V
	Old   V
}

type subscriber[K comparable, V any] struct {
	id uint64
	fn func(Event[K, V])
}

// Subscribe implements Cache.
func (c *cache[K, V]) Subscribe(fn func(Event[K, V])) func() {
	c.mu.Lock()
	c.subSeq++
	id := c.subSeq
	// Copy on write: flush reads the slice without holding c.mu.
	subs := make([]subscriber[K, V], 0, len(c.subs)+1)
	subs = append(subs, c.subs...)
	c.subs = append(subs, subscriber[K, V]{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := make([]subscriber[K, V], 0, len(c.subs))
		for _, s := range c.subs {
			if s.id != id {
				subs = append(subs, s)
			}
		}
		c.subs = subs
	}
}

// emitLocked queues ev for delivery after the lock is released. Nothing is
// queued while nobody listens.
func (c *cache[K, V]) emitLocked(ev Event[K, V]) {
	if len(c.subs) == 0 {
		return
	}
	c.pending = append(c.pending, ev)
}

// flush delivers queued events in order. Only one goroutine delivers at a
// time; a subscriber that mutates the cache from its callback has its events
// picked up by the loop already running.
func (c *cache[K, V]) flush() {
	for {
		if !c.emitMu.TryLock() {
			return
		}
		for {
			c.mu.Lock()
			batch, subs := c.pending, c.subs
			c.pending = nil
			c.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				for _, s := range subs {
					s.fn(ev)
				}
			}
		}
		c.emitMu.Unlock()

		c.mu.Lock()
		more := len(c.pending) > 0
		c.mu.Unlock()
		if !more {
			return
		}
	}
}
