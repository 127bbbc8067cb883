package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/policycache/internal/singleflight"
	"github.com/IvanBrykalov/policycache/policy"
)

const tracerName = "github.com/IvanBrykalov/policycache/cache"

// Loader produces the value for a missing key together with the arguments it
// is stored with.
type Loader[K comparable, V any] func(ctx context.Context, k K) (V, policy.Args[K], error)

// RenewableOption configures NewRenewable.
type RenewableOption[K comparable, V any] func(*Renewable[K, V])

// WithRefreshOnExpire reloads a key in the background when the underlying
// cache reports it expired.
func WithRefreshOnExpire[K comparable, V any]() RenewableOption[K, V] {
	return func(r *Renewable[K, V]) { r.refresh = true }
}

// WithBreaker guards the loader with a circuit breaker. While the breaker is
// open, loads fail with gobreaker.ErrOpenState without calling the loader.
func WithBreaker[K comparable, V any](st gobreaker.Settings) RenewableOption[K, V] {
	return func(r *Renewable[K, V]) { r.breaker = &st }
}

// WithTracer sets the tracer used for load spans.
func WithTracer[K comparable, V any](t trace.Tracer) RenewableOption[K, V] {
	return func(r *Renewable[K, V]) { r.tracer = t }
}

// WithRenewableLogger sets the logger; loader failures are logged at warn.
func WithRenewableLogger[K comparable, V any](l *zap.Logger) RenewableOption[K, V] {
	return func(r *Renewable[K, V]) { r.log = l }
}

// WithLoadMetrics sets the Metrics receiving one Load observation per loader
// call.
func WithLoadMetrics[K comparable, V any](m Metrics) RenewableOption[K, V] {
	return func(r *Renewable[K, V]) { r.metrics = m }
}

// Renewable is a self-loading view over a Cache. Concurrent misses on one key
// share a single loader call; failures are returned to every waiter and are
// not cached.
type Renewable[K comparable, V any] struct {
	c      Cache[K, V]
	loader Loader[K, V]
	group  singleflight.Group[K, V]

	refresh bool
	breaker *gobreaker.Settings
	cb      *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	log     *zap.Logger
	metrics Metrics

	mu          sync.Mutex
	closed      bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          conc.WaitGroup
}

// NewRenewable wraps c with loader.
func NewRenewable[K comparable, V any](c Cache[K, V], loader Loader[K, V], opts ...RenewableOption[K, V]) *Renewable[K, V] {
	r := &Renewable[K, V]{
		c:       c,
		loader:  loader,
		tracer:  otel.Tracer(tracerName),
		log:     zap.NewNop(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("renewable")

	if r.breaker != nil {
		st := *r.breaker
		user := st.OnStateChange
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			r.log.Info("loader breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if user != nil {
				user(name, from, to)
			}
		}
		r.cb = gobreaker.NewCircuitBreaker(st)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	if r.refresh {
		r.unsubscribe = c.Subscribe(r.onEvent)
	}
	return r
}

// Cache returns the underlying cache.
func (r *Renewable[K, V]) Cache() Cache[K, V] { return r.c }

// Get returns the cached value for k, loading it on a miss. ctx bounds the
// wait; when the caller leads the load it is also passed to the loader.
func (r *Renewable[K, V]) Get(ctx context.Context, k K) (V, error) {
	if v, ok := r.c.Get(k); ok {
		return v, nil
	}
	v, err, _ := r.group.Do(ctx, k, func() (V, error) {
		// A load that finished between our miss and the Do call already
		// stored the value.
		if v, ok := r.recheck(k); ok {
			return v, nil
		}
		return r.load(ctx, k, false)
	})
	return v, err
}

// Refresh reloads k unconditionally and stores the result. Concurrent Get
// calls for k wait for it.
func (r *Renewable[K, V]) Refresh(ctx context.Context, k K) (V, error) {
	v, err, _ := r.group.Do(ctx, k, func() (V, error) {
		return r.load(ctx, k, true)
	})
	return v, err
}

// Close stops background refreshes and waits for the running ones. The
// underlying cache is left open.
func (r *Renewable[K, V]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *Renewable[K, V]) onEvent(ev Event[K, V]) {
	if ev.Type != EventExpired {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	k := ev.Key
	r.wg.Go(func() {
		_, _, _ = r.group.Do(r.ctx, k, func() (V, error) {
			if v, ok := r.recheck(k); ok {
				return v, nil
			}
			return r.load(r.ctx, k, true)
		})
	})
}

// recheck looks k up again inside a flight. Caches built by this package are
// read without touching hit and miss counters: the caller's lookup already
// counted the miss.
func (r *Renewable[K, V]) recheck(k K) (V, bool) {
	if l, ok := r.c.(interface{ lookup(K) (V, bool) }); ok {
		return l.lookup(k)
	}
	return r.c.Get(k)
}

// load runs the loader once (through the breaker when configured) and
// stores a successful result.
func (r *Renewable[K, V]) load(ctx context.Context, k K, refresh bool) (V, error) {
	ctx, span := r.tracer.Start(ctx, "policycache.load",
		trace.WithAttributes(
			attribute.String("cache.key", fmt.Sprint(k)),
			attribute.Bool("cache.refresh", refresh),
		))
	defer span.End()

	start := time.Now()
	v, args, err := r.call(ctx, k)
	r.metrics.Load(time.Since(start), err)
	if err == nil {
		err = r.c.SetWithArgs(k, v, args)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Warn("load failed", zap.Any("key", k), zap.Bool("refresh", refresh), zap.Error(err))
		var zero V
		return zero, err
	}
	span.SetStatus(codes.Ok, "")
	return v, nil
}

func (r *Renewable[K, V]) call(ctx context.Context, k K) (V, policy.Args[K], error) {
	if r.cb == nil {
		return r.loader(ctx, k)
	}
	var (
		v    V
		args policy.Args[K]
	)
	_, err := r.cb.Execute(func() (interface{}, error) {
		var err error
		v, args, err = r.loader(ctx, k)
		return nil, err
	})
	return v, args, err
}
