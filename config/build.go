package config

import (
	"fmt"
	"time"

	"github.com/goccy/go-reflect"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/policycache/backend"
	"github.com/IvanBrykalov/policycache/cache"
	"github.com/IvanBrykalov/policycache/clock"
	"github.com/IvanBrykalov/policycache/gc"
	"github.com/IvanBrykalov/policycache/policy"
	"github.com/IvanBrykalov/policycache/policy/dependency"
	"github.com/IvanBrykalov/policycache/policy/expiration"
	"github.com/IvanBrykalov/policycache/policy/gdsf"
	"github.com/IvanBrykalov/policycache/policy/lfu"
	"github.com/IvanBrykalov/policycache/policy/lru"
	"github.com/IvanBrykalov/policycache/policy/priority"
	"github.com/IvanBrykalov/policycache/policy/slru"
)

// Env carries the runtime dependencies a configuration cannot express.
type Env struct {
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics cache.Metrics
}

// Options builds cache options for the default set and the policy lists of
// the named sets. Every call builds fresh policy instances.
func Options[K comparable, V any](cfg *Config, env Env) (cache.Options[K, V], map[string][]policy.Policy[K, V], error) {
	clk := clock.OrSystem(env.Clock)
	log := env.Logger
	if log == nil {
		log = zap.NewNop()
	}

	opt := cache.Options[K, V]{
		Capacity: cfg.Capacity,
		DefaultArgs: policy.Args[K]{
			TTL:      time.Duration(cfg.DefaultArgs.TTL),
			Priority: cfg.DefaultArgs.Priority,
			Cost:     cfg.DefaultArgs.Cost,
			Size:     cfg.DefaultArgs.Size,
		},
		Clock:   clk,
		Logger:  log,
		Metrics: env.Metrics,
	}
	if cfg.Backend == "pooled" {
		opt.Backend = backend.NewPooled[K, V]()
	}

	ps, err := buildSet[K, V](cfg.PolicySet, cfg.Capacity, clk, log)
	if err != nil {
		return opt, nil, fmt.Errorf("config: set %q: %w", "default", err)
	}
	opt.Policies = ps
	log.Debug("policy set configured", zap.String("set", "default"), zap.Strings("policies", typeNames(ps)))

	var sets map[string][]policy.Policy[K, V]
	for _, name := range cfg.SetNames() {
		ps, err := buildSet[K, V](cfg.Sets[name], cfg.Capacity, clk, log)
		if err != nil {
			return opt, nil, fmt.Errorf("config: set %q: %w", name, err)
		}
		if sets == nil {
			sets = make(map[string][]policy.Policy[K, V])
		}
		sets[name] = ps
		log.Debug("policy set configured", zap.String("set", name), zap.Strings("policies", typeNames(ps)))
	}
	return opt, sets, nil
}

// NewCache builds a keyed cache from cfg. Without named sets it behaves as a
// plain cache whose keys all live in the default set.
func NewCache[K comparable, V any](cfg *Config, env Env) (cache.Keyed[K, V], error) {
	opt, sets, err := Options[K, V](cfg, env)
	if err != nil {
		return nil, err
	}
	return cache.NewKeyed(opt, sets)
}

func buildSet[K comparable, V any](s PolicySet, capacity int, clk clock.Clock, log *zap.Logger) ([]policy.Policy[K, V], error) {
	var ps []policy.Policy[K, V]
	if s.Expiration != nil {
		p, err := buildExpiration[K, V](*s.Expiration, clk, log)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	for _, ev := range s.Eviction {
		p, err := buildEviction[K, V](ev, capacity)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, nil
}

func buildExpiration[K comparable, V any](e Expiration, clk clock.Clock, log *zap.Logger) (policy.Policy[K, V], error) {
	opts := []expiration.Option{expiration.WithClock(clk)}
	if e.Sliding {
		opts = append(opts, expiration.Sliding())
	}
	switch e.Type {
	case "none":
		return expiration.NewNone[K, V](), nil
	case "reactive":
		return expiration.NewReactive[K, V](opts...), nil
	case "proactive":
		col, err := buildGC[K](e.GC, clk, log)
		if err != nil {
			return nil, err
		}
		return expiration.NewProactive[K, V](col, opts...)
	default:
		return nil, fmt.Errorf("%w: expiration type %q", ErrInvalid, e.Type)
	}
}

func buildGC[K comparable](g *GC, clk clock.Clock, log *zap.Logger) (gc.Collector[K], error) {
	opts := []gc.Option{gc.WithClock(clk), gc.WithLogger(log)}
	if g == nil {
		return gc.NewHeap[K](opts...), nil
	}
	switch g.Type {
	case "", "heap":
		return gc.NewHeap[K](opts...), nil
	case "bucket":
		return gc.NewBucket[K](time.Duration(g.Width), opts...)
	case "interval":
		return gc.NewInterval[K](time.Duration(g.Period), opts...)
	default:
		return nil, fmt.Errorf("%w: gc type %q", ErrInvalid, g.Type)
	}
}

func buildEviction[K comparable, V any](e Eviction, capacity int) (policy.Policy[K, V], error) {
	switch e.Type {
	case "lru":
		return lru.New[K, V](), nil
	case "slru":
		protected := e.Protected
		if protected == 0 {
			protected = capacity * 4 / 5
		}
		return slru.New[K, V](protected), nil
	case "lfu":
		return lfu.New[K, V](), nil
	case "lfuda":
		return lfu.NewDynamicAging[K, V](), nil
	case "gdsf":
		return gdsf.New[K, V](), nil
	case "priority":
		return priority.New[K, V](), nil
	case "dependency":
		return dependency.New[K, V](), nil
	default:
		return nil, fmt.Errorf("%w: eviction type %q", ErrInvalid, e.Type)
	}
}

func typeNames[K comparable, V any](ps []policy.Policy[K, V]) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = reflect.TypeOf(p).String()
	}
	return out
}
