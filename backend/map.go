package backend

import (
	"iter"
	"maps"
)

type mapBackend[K comparable, V any] struct {
	m map[K]*Entry[K, V]

	// newEntry allocates (or reuses) an entry; recycle takes it back.
	newEntry func() *Entry[K, V]
	recycle  func(*Entry[K, V])
}

// NewMap returns a simple map-backed Backend.
func NewMap[K comparable, V any]() Backend[K, V] {
	return &mapBackend[K, V]{
		m:        make(map[K]*Entry[K, V]),
		newEntry: func() *Entry[K, V] { return &Entry[K, V]{} },
		recycle:  func(*Entry[K, V]) {},
	}
}

func (b *mapBackend[K, V]) Get(key K) (*Entry[K, V], bool) {
	e, ok := b.m[key]
	return e, ok
}

func (b *mapBackend[K, V]) Set(key K, value V) (*Entry[K, V], bool) {
	if e, ok := b.m[key]; ok {
		e.Value = value
		return e, false
	}
	e := b.newEntry()
	e.Key = key
	e.Value = value
	b.m[key] = e
	return e, true
}

func (b *mapBackend[K, V]) Delete(key K) bool {
	e, ok := b.Remove(key)
	if ok {
		b.Recycle(e)
	}
	return ok
}

func (b *mapBackend[K, V]) Remove(key K) (*Entry[K, V], bool) {
	e, ok := b.m[key]
	if !ok {
		return nil, false
	}
	delete(b.m, key)
	return e, true
}

func (b *mapBackend[K, V]) Recycle(e *Entry[K, V]) {
	if e != nil {
		b.recycle(e)
	}
}

func (b *mapBackend[K, V]) Clear() {
	old := b.m
	b.m = make(map[K]*Entry[K, V])
	for _, e := range old {
		b.recycle(e)
	}
}

func (b *mapBackend[K, V]) Len() int { return len(b.m) }

func (b *mapBackend[K, V]) All() iter.Seq[*Entry[K, V]] {
	return maps.Values(b.m)
}
