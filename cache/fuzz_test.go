package cache

import (
	"strings"
	"testing"

	"github.com/IvanBrykalov/policycache/policy"
	"github.com/IvanBrykalov/policycache/policy/dependency"
	"github.com/IvanBrykalov/policycache/policy/lru"
)

// Fuzz basic Set/Get/Delete semantics under arbitrary string inputs.
// Guards against panics and ensures core invariants hold.
// NOTE: key/value lengths are capped to keep memory bounded during fuzzing.
func FuzzCache_SetGetDelete(f *testing.F) {
	// Seed corpus: empty, ASCII, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c, err := New(Options[string, string]{
			Capacity: 16,
			Policies: []policy.Policy[string, string]{lru.New[string, string](), dependency.New[string, string]()},
		})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = c.Close() })

		// Set -> Get must return the same value.
		c.Set(k, v)
		got, ok := c.Get(k)
		if !ok || got != v {
			t.Fatalf("after Set/Get: want %q, got %q ok=%v", v, got, ok)
		}

		// Add duplicate must not overwrite and must return false.
		if ok := c.Add(k, "other"); ok {
			t.Fatalf("Add duplicate returned true")
		}
		if got2, ok := c.Get(k); !ok || got2 != v {
			t.Fatalf("after duplicate Add: want %q, got %q ok=%v", v, got2, ok)
		}

		// A dependent key goes with its parent.
		dep := k + "/child"
		if err := c.SetWithArgs(dep, v, policy.Args[string]{DependsOn: []string{k}}); err != nil {
			t.Fatal(err)
		}

		// Delete must delete and return true once.
		if !c.Delete(k) {
			t.Fatalf("Delete must return true")
		}
		if c.Delete(k) {
			t.Fatalf("second Delete must return false")
		}
		if _, ok := c.Get(k); ok {
			t.Fatalf("key must be absent after Delete")
		}
		if c.Has(dep) {
			t.Fatalf("dependent must be deleted with its parent")
		}

		// After removal, Add should succeed again.
		if ok := c.Add(k, v); !ok {
			t.Fatalf("Add after Delete must return true")
		}
		if c.Len() > 16 {
			t.Fatalf("Len %d exceeds capacity", c.Len())
		}
	})
}
