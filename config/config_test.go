package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/policycache/cache"
	"github.com/IvanBrykalov/policycache/clock"
	"github.com/IvanBrykalov/policycache/policy"
)

const full = `
capacity: 3
backend: pooled
default_args:
  ttl: 5m
  priority: 2
expiration:
  type: proactive
  sliding: true
  gc: {type: bucket, width: 1s}
eviction: [lru, dependency]
sets:
  sessions:
    expiration: {type: reactive}
    eviction:
      - {type: slru, protected: 2}
  scored:
    eviction: [gdsf]
`

func TestParse_Full(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(full))
	require.NoError(t, err)

	want := &Config{
		Capacity:    3,
		Backend:     "pooled",
		DefaultArgs: Args{TTL: Duration(5 * time.Minute), Priority: 2},
		PolicySet: PolicySet{
			Expiration: &Expiration{Type: "proactive", Sliding: true, GC: &GC{Type: "bucket", Width: Duration(time.Second)}},
			Eviction:   []Eviction{{Type: "lru"}, {Type: "dependency"}},
		},
		Sets: map[string]PolicySet{
			"sessions": {
				Expiration: &Expiration{Type: "reactive"},
				Eviction:   []Eviction{{Type: "slru", Protected: 2}},
			},
			"scored": {Eviction: []Eviction{{Type: "gdsf"}}},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"scored", "sessions"}, cfg.SetNames())
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, &Config{}, cfg)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"negative capacity":       "capacity: -1",
		"unknown backend":         "backend: disk",
		"unknown expiration":      "expiration: {type: eager}",
		"unknown eviction":        "eviction: [mru]",
		"gc on reactive":          "expiration: {type: reactive, gc: {type: heap}}",
		"bucket without width":    "expiration: {type: proactive, gc: {type: bucket}}",
		"interval without period": "expiration: {type: proactive, gc: {type: interval}}",
		"unknown gc":              "expiration: {type: proactive, gc: {type: wheel}}",
		"protected on lru":        "eviction: [{type: lru, protected: 3}]",
		"reserved set name":       "sets: {default: {eviction: [lru]}}",
		"negative default ttl":    "default_args: {ttl: -1s}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParse_DecodeErrors(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"unknown field": "capacityy: 3",
		"bad duration":  "default_args: {ttl: soon}",
		"bad type":      "capacity: many",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			require.False(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(full), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Capacity)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = Load("")
	require.Error(t, err)
}

func TestNewCache_WiresPolicies(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(full))
	require.NoError(t, err)

	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c, err := NewCache[string, int](cfg, Env{Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// Default set: proactive bucket GC with the 5m default TTL.
	c.Set("a", 1)
	require.True(t, c.Has("a"))
	clk.Advance(5*time.Minute + time.Second)
	require.False(t, c.Has("a"))
	require.Zero(t, c.Len(), "the bucket collector must have removed a")

	// Dependency cascade in the default set.
	c.Set("parent", 1)
	require.NoError(t, c.SetWithArgs("child", 2, policy.Args[string]{DependsOn: []string{"parent"}}))
	require.True(t, c.Delete("parent"))
	require.False(t, c.Has("child"))

	// Named sets.
	require.NoError(t, c.SetIn("sessions", "s", 1, policy.Args[string]{TTL: time.Second}))
	set, ok := c.SetOf("s")
	require.True(t, ok)
	require.Equal(t, "sessions", set)
	require.NoError(t, c.SetIn("scored", "g", 1, policy.Args[string]{Cost: 3, Size: 1}))

	// Capacity 3 is shared by every set.
	c.Set("x", 1)
	c.Set("y", 1)
	require.LessOrEqual(t, c.Len(), 3)
}

func TestNewCache_BoundedWithoutEvictor(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("capacity: 10\nexpiration: {type: reactive}"))
	require.NoError(t, err)
	_, err = NewCache[string, int](cfg, Env{})
	require.ErrorIs(t, err, cache.ErrNoEvictor)
}

func TestOptions_FreshPoliciesPerCall(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("eviction: [lru]"))
	require.NoError(t, err)

	a, _, err := Options[string, int](cfg, Env{})
	require.NoError(t, err)
	b, _, err := Options[string, int](cfg, Env{})
	require.NoError(t, err)
	require.NotSame(t, a.Policies[0], b.Policies[0])
}

const fullTOML = `
capacity = 3
backend = "pooled"
eviction = ["lru", "dependency"]

[default_args]
ttl = "5m"
priority = 2

[expiration]
type = "proactive"
sliding = true

[expiration.gc]
type = "bucket"
width = "1s"

[sets.sessions.expiration]
type = "reactive"

[[sets.sessions.eviction]]
type = "slru"
protected = 2

[sets.scored]
eviction = ["gdsf"]
`

func TestParseTOML_MatchesYAML(t *testing.T) {
	t.Parallel()

	fromYAML, err := Parse([]byte(full))
	require.NoError(t, err)
	fromTOML, err := ParseTOML([]byte(fullTOML))
	require.NoError(t, err)

	if diff := cmp.Diff(fromYAML, fromTOML); diff != "" {
		t.Fatalf("TOML vs YAML (-yaml +toml):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "cache.toml")
	require.NoError(t, os.WriteFile(path, []byte(fullTOML), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "pooled", cfg.Backend)
}

func TestParseTOML_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseTOML([]byte(`capacityy = 3`))
	require.Error(t, err)

	_, err = ParseTOML([]byte(`eviction = ["mru"]`))
	require.ErrorIs(t, err, ErrInvalid)
}
