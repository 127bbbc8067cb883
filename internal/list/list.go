// Package list implements an intrusive doubly linked list of keys with an
// O(1) key index (head=MRU, tail=LRU). Recency-based policies build on it.
// Not safe for concurrent use.
package list

type node[K comparable] struct {
	key  K
	prev *node[K]
	next *node[K]
}

// List is an MRU↔LRU ordered set of keys.
type List[K comparable] struct {
	m    map[K]*node[K]
	head *node[K] // MRU
	tail *node[K] // LRU
}

// New returns an empty list.
func New[K comparable]() *List[K] {
	return &List[K]{m: make(map[K]*node[K])}
}

// Len returns the number of keys.
func (l *List[K]) Len() int { return len(l.m) }

// Contains reports whether key is linked.
func (l *List[K]) Contains(key K) bool {
	_, ok := l.m[key]
	return ok
}

// PushFront links key at MRU, or promotes it if already present.
func (l *List[K]) PushFront(key K) {
	if n, ok := l.m[key]; ok {
		l.moveToFront(n)
		return
	}
	n := &node[K]{key: key}
	l.m[key] = n
	l.insertFront(n)
}

// PushBack links key at LRU, or demotes it if already present.
func (l *List[K]) PushBack(key K) {
	n, ok := l.m[key]
	if ok {
		l.unlink(n)
	} else {
		n = &node[K]{key: key}
		l.m[key] = n
	}
	n.prev = l.tail
	n.next = nil
	if l.tail != nil {
		l.tail.next = n
	}
	l.tail = n
	if l.head == nil {
		l.head = n
	}
}

// MoveToFront promotes key to MRU. Returns false if key is absent.
func (l *List[K]) MoveToFront(key K) bool {
	n, ok := l.m[key]
	if !ok {
		return false
	}
	l.moveToFront(n)
	return true
}

// Remove unlinks key. Returns false if key is absent.
func (l *List[K]) Remove(key K) bool {
	n, ok := l.m[key]
	if !ok {
		return false
	}
	l.unlink(n)
	delete(l.m, key)
	return true
}

// Back returns the LRU key.
func (l *List[K]) Back() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	return l.tail.key, true
}

// PopBack unlinks and returns the LRU key.
func (l *List[K]) PopBack() (K, bool) {
	k, ok := l.Back()
	if ok {
		l.Remove(k)
	}
	return k, ok
}

// Keys returns keys from MRU to LRU.
func (l *List[K]) Keys() []K {
	out := make([]K, 0, len(l.m))
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.key)
	}
	return out
}

// Clear unlinks every key.
func (l *List[K]) Clear() {
	l.m = make(map[K]*node[K])
	l.head, l.tail = nil, nil
}

// -------------------- internals --------------------

// insertFront inserts n at MRU in O(1).
func (l *List[K]) insertFront(n *node[K]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

// moveToFront promotes n to MRU in O(1).
func (l *List[K]) moveToFront(n *node[K]) {
	if n == l.head {
		return
	}
	l.unlink(n)
	l.insertFront(n)
}

// unlink detaches n from its neighbours without touching the index.
func (l *List[K]) unlink(n *node[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if l.head == n {
		l.head = n.next
	}
	if l.tail == n {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
