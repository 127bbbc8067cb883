// Package dependency implements key-dependency cascades: deleting or evicting
// a key first deletes, depth-first, every key that depends on it.
//
// Edges come from Args.DependsOn. A parent does not have to be present when a
// dependent is set. The policy does not detect cycles; the cache visits each
// key at most once per cascade.
package dependency

import (
	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/internal/list"
	"github.com/IvanBrykalov/policycache/policy"
)

// Dependency keeps the parent→dependents and dependent→parents adjacency.
type Dependency[K comparable, V any] struct {
	children map[K]*list.List[K]   // parent → dependents, in registration order
	parents  map[K]map[K]struct{} // dependent → parents
}

// New returns a dependency policy.
func New[K comparable, V any]() *Dependency[K, V] {
	return &Dependency[K, V]{
		children: make(map[K]*list.List[K]),
		parents:  make(map[K]map[K]struct{}),
	}
}

func (p *Dependency[K, V]) Kind() policy.Kind { return policy.Eviction }

func (p *Dependency[K, V]) OnGet(K, *backend.Entry[K, V]) policy.Verdict { return policy.Valid }

// OnSet replaces key's parents with args.DependsOn.
func (p *Dependency[K, V]) OnSet(key K, _ *backend.Entry[K, V], args policy.Args[K]) {
	p.unlinkParents(key)
	for _, parent := range args.DependsOn {
		p.link(parent, key)
	}
}

// OnUpdate replaces key's parents only when DependsOn is given.
func (p *Dependency[K, V]) OnUpdate(key K, e *backend.Entry[K, V], _ V, args policy.Args[K]) {
	if args.DependsOn != nil {
		p.OnSet(key, e, args)
	}
}

// OnDelete drops the edges key declared as a dependent. Edges its own
// dependents declared stay until those keys are deleted: the cache removes
// dependents first, and a key moved to another policy set keeps them.
func (p *Dependency[K, V]) OnDelete(key K, _ *backend.Entry[K, V]) {
	p.unlinkParents(key)
}

func (p *Dependency[K, V]) OnClear() {
	p.children = make(map[K]*list.List[K])
	p.parents = make(map[K]map[K]struct{})
}

func (p *Dependency[K, V]) RequiresEntryOnDeletion() bool { return false }

// Dependents returns the keys that directly depend on key, in registration
// order.
func (p *Dependency[K, V]) Dependents(key K) []K {
	l, ok := p.children[key]
	if !ok {
		return nil
	}
	return l.Keys()
}

// Parents returns the keys key depends on.
func (p *Dependency[K, V]) Parents(key K) []K {
	ps := p.parents[key]
	out := make([]K, 0, len(ps))
	for k := range ps {
		out = append(out, k)
	}
	return out
}

// Edges returns the number of parent→dependent edges.
func (p *Dependency[K, V]) Edges() int {
	n := 0
	for _, ps := range p.parents {
		n += len(ps)
	}
	return n
}

func (p *Dependency[K, V]) link(parent, child K) {
	l, ok := p.children[parent]
	if !ok {
		l = list.New[K]()
		p.children[parent] = l
	}
	l.PushBack(child)
	ps, ok := p.parents[child]
	if !ok {
		ps = make(map[K]struct{})
		p.parents[child] = ps
	}
	ps[parent] = struct{}{}
}

func (p *Dependency[K, V]) unlinkParents(key K) {
	for parent := range p.parents[key] {
		if l, ok := p.children[parent]; ok {
			l.Remove(key)
			if l.Len() == 0 {
				delete(p.children, parent)
			}
		}
	}
	delete(p.parents, key)
}

var (
	_ policy.Policy[string, int] = (*Dependency[string, int])(nil)
	_ policy.Cascader[string]    = (*Dependency[string, int])(nil)
)
