package gdsf

import (
	"errors"
	"testing"

	"github.com/IvanBrykalov/policycache/policy"
)

func args(cost, size float64) policy.Args[string] {
	return policy.Args[string]{Cost: cost, Size: size}
}

// With equal access counts, the higher cost/size ratio survives.
func TestGDSF_CostSizeOrdering(t *testing.T) {
	t.Parallel()

	p := New[string, int]()
	p.OnSet("cheap-bulky", nil, args(1, 10))
	p.OnSet("pricey-small", nil, args(10, 1))
	p.OnSet("plain", nil, args(0, 0))

	want := []string{"cheap-bulky", "plain", "pricey-small"}
	for _, w := range want {
		v, ok := p.Victim()
		if !ok || v != w {
			t.Fatalf("victim want %q, got %q ok=%v", w, v, ok)
		}
		p.OnDelete(v, nil)
	}
}

// Each access adds cost/size to the score.
func TestGDSF_FrequencyRaisesScore(t *testing.T) {
	t.Parallel()

	p := New[string, int]()
	p.OnSet("a", nil, args(2, 1))
	p.OnSet("b", nil, args(3, 1))
	if h, _ := p.Score("a"); h != 2 {
		t.Fatalf("H(a) want 2, got %v", h)
	}

	p.OnGet("a", nil) // H(a) = 2*2/1 = 4 > H(b) = 3
	if v, _ := p.Victim(); v != "b" {
		t.Fatalf("victim want b, got %q", v)
	}
}

// Choosing a victim inflates L, so newcomers start above old cold keys.
func TestGDSF_Inflation(t *testing.T) {
	t.Parallel()

	p := New[string, int]()
	p.OnSet("a", nil, args(5, 1))
	p.OnSet("b", nil, args(4, 1))

	v, _ := p.Victim()
	p.OnDelete(v, nil)
	if v != "b" || p.Inflation() != 4 {
		t.Fatalf("victim b and L=4 expected, got %q L=%v", v, p.Inflation())
	}

	p.OnSet("c", nil, args(2, 1)) // H(c) = 4 + 2 = 6 > H(a) = 5
	if v, _ := p.Victim(); v != "a" {
		t.Fatalf("victim want a, got %q", v)
	}
}

func TestGDSF_Update(t *testing.T) {
	t.Parallel()

	p := New[string, int]()
	p.OnSet("a", nil, args(1, 1))
	p.OnUpdate("a", nil, 0, args(0, 4)) // F=2, cost kept at 1, size 4
	if h, _ := p.Score("a"); h != 0.5 {
		t.Fatalf("H(a) want 0.5, got %v", h)
	}
	p.OnUpdate("missing", nil, 0, args(1, 1))
	if _, ok := p.Score("missing"); ok {
		t.Fatal("update must not admit unknown keys")
	}
}

func TestGDSF_Validate(t *testing.T) {
	t.Parallel()

	p := New[string, int]()
	if err := p.Validate(args(1, 1)); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
	if err := p.Validate(args(-1, 1)); !errors.Is(err, policy.ErrInvalidArgs) {
		t.Fatalf("negative cost must be rejected, got %v", err)
	}
	if err := p.Validate(args(1, -1)); !errors.Is(err, policy.ErrInvalidArgs) {
		t.Fatalf("negative size must be rejected, got %v", err)
	}
}
