package backend

import "sync"

// entryPool is a typed wrapper over sync.Pool that resets entries on Put so
// that a recycled entry never leaks a previous key, value or deadline.
type entryPool[K comparable, V any] struct {
	pool sync.Pool
}

func newEntryPool[K comparable, V any]() *entryPool[K, V] {
	return &entryPool[K, V]{
		pool: sync.Pool{
			New: func() any { return &Entry[K, V]{} },
		},
	}
}

func (p *entryPool[K, V]) Get() *Entry[K, V] {
	return p.pool.Get().(*Entry[K, V])
}

func (p *entryPool[K, V]) Put(e *Entry[K, V]) {
	e.reset()
	p.pool.Put(e)
}

// NewPooled returns a map-backed Backend that recycles entry objects removed
// by Delete, Recycle and Clear. It is functionally identical to NewMap.
func NewPooled[K comparable, V any]() Backend[K, V] {
	p := newEntryPool[K, V]()
	return &mapBackend[K, V]{
		m:        make(map[K]*Entry[K, V]),
		newEntry: p.Get,
		recycle:  p.Put,
	}
}
