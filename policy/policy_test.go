package policy

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestArgs_WithDefaults(t *testing.T) {
	t.Parallel()

	def := Args[string]{TTL: time.Minute, Priority: 3, Cost: 1, Size: 1, DependsOn: []string{"root"}}

	got := Args[string]{Priority: 7, Size: 4}.WithDefaults(def)
	want := Args[string]{TTL: time.Minute, Priority: 7, Cost: 1, Size: 4, DependsOn: []string{"root"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged args (-want +got):\n%s", diff)
	}

	// The default slice must not be aliased.
	got.DependsOn[0] = "changed"
	if def.DependsOn[0] != "root" {
		t.Fatal("WithDefaults must copy DependsOn")
	}

	explicit := Args[string]{DependsOn: []string{}}.WithDefaults(def)
	if len(explicit.DependsOn) != 0 {
		t.Fatal("an explicit empty DependsOn must win over defaults")
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	if Expiration.String() != "expiration" || Eviction.String() != "eviction" || Kind(9).String() != "unknown" {
		t.Fatal("unexpected Kind names")
	}
}
