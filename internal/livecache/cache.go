// Package livecache resolves packages the current database lacks by asking
// the configured feeds. Concurrent requests for one key share a single
// resolution, and negative answers are kept until they are forgotten.
package livecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/cachemanager"
	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/packagecache"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/pubsub"
	"github.com/zjrosen/pkgdb/internal/tracing"
)

// Status is the outcome of a resolution.
type Status int

const (
	Resolved Status = iota
	NotFound
	Failed
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a Future completes with. Instance is set only when the
// package was resolved. For a failure that happened after the root package
// was fetched, Descriptor holds it with its feed list cleared, and Offender
// names the dependency whose lookup failed or that closed a cycle.
type Result struct {
	Key        artifact.Instance
	Instance   *packagedb.Instance
	Status     Status
	Err        error
	Descriptor *packagedb.Descriptor
	Offender   artifact.Instance
}

// NegativeKind selects which retained results Forget drops.
type NegativeKind int

const (
	ForgetErrors NegativeKind = 1 << iota
	ForgetNotFound
	ForgetBoth = ForgetErrors | ForgetNotFound
)

// Options configures a Cache.
type Options struct {
	Cache *packagecache.Cache
	// Feeds are consulted in this order when folding answers.
	Feeds []Feed
	// FeedTimeout bounds each feed call. Zero means no deadline.
	FeedTimeout time.Duration
	// MaxParallel bounds concurrent feed calls per lookup. Zero means one
	// call per matching feed.
	MaxParallel int
	// NegativeTTL is how long NotFound and Failed results are kept. Zero
	// keeps them until Forget.
	NegativeTTL time.Duration
	Tracer      trace.Tracer
}

// Cache resolves packages through feeds into a packagecache.Cache.
type Cache struct {
	cache       *packagecache.Cache
	feeds       []Feed
	feedTimeout time.Duration
	maxParallel int
	negativeTTL time.Duration
	tracer      trace.Tracer

	mu       sync.Mutex
	inflight map[artifact.Instance]*Future
	lookups  map[artifact.Instance]*infoCall

	negatives *cachemanager.InMemoryCacheManager[string, Result]
	running   sync.WaitGroup
}

// New validates the feed list and returns a live cache over opts.Cache.
func New(opts Options) (*Cache, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("live cache: no package cache")
	}
	var err error
	seen := make(map[string]bool, len(opts.Feeds))
	for _, f := range opts.Feeds {
		name, perr := packagedb.ParseFeedName(f.Name())
		switch {
		case perr != nil:
			err = multierr.Append(err, perr)
		case name.Type != f.ArtifactType():
			err = multierr.Append(err, fmt.Errorf("feed %s serves %s packages", f.Name(), f.ArtifactType()))
		case seen[f.Name()]:
			err = multierr.Append(err, fmt.Errorf("feed %s configured twice", f.Name()))
		}
		seen[f.Name()] = true
	}
	if err != nil {
		return nil, err
	}

	ttl := opts.NegativeTTL
	if ttl <= 0 {
		ttl = cachemanager.NoExpiration
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Disabled().Tracer()
	}
	return &Cache{
		cache:       opts.Cache,
		feeds:       append([]Feed(nil), opts.Feeds...),
		feedTimeout: opts.FeedTimeout,
		maxParallel: opts.MaxParallel,
		negativeTTL: ttl,
		tracer:      tracer,
		inflight:    make(map[artifact.Instance]*Future),
		lookups:     make(map[artifact.Instance]*infoCall),
		negatives:   cachemanager.NewInMemoryCacheManager[string, Result]("negative-results", ttl, cachemanager.DefaultCleanupInterval),
	}, nil
}

// Feeds returns the configured feeds in fold order.
func (c *Cache) Feeds() []Feed { return c.feeds }

// Ensure resolves key and waits for the result.
func (c *Cache) Ensure(ctx context.Context, key artifact.Instance) Result {
	return c.EnsureAsync(ctx, key).Wait(ctx)
}

// EnsureAsync returns a future for key without blocking. A key already in
// the database as a real package completes at once, as does one with a
// retained negative result. Otherwise callers asking for the same key
// share one resolution.
//
// The resolution is detached from ctx cancellation so that a caller giving
// up does not fail the others; ctx values such as a request id are kept.
func (c *Cache) EnsureAsync(ctx context.Context, key artifact.Instance) *Future {
	if r, ok := c.lookup(key); ok {
		return completed(r)
	}

	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return f
	}
	if r, ok := c.lookup(key); ok {
		c.mu.Unlock()
		return completed(r)
	}
	if r, ok := c.negatives.Get(ctx, key.String()); ok {
		c.mu.Unlock()
		return completed(r)
	}
	f := newFuture(key)
	c.inflight[key] = f
	c.running.Add(1)
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), f)
	return f
}

func (c *Cache) lookup(key artifact.Instance) (Result, bool) {
	if p := c.cache.Current().Find(key); p != nil && !p.IsGhost() {
		return Result{Key: key, Instance: p, Status: Resolved}, true
	}
	return Result{}, false
}

func (c *Cache) run(ctx context.Context, f *Future) {
	defer c.running.Done()

	diag := acquireDiagnostics()
	r := c.resolve(ctx, f.key, diag)
	diag.summarize(f.key, r.Status)
	diag.release()

	c.mu.Lock()
	if r.Status != Resolved {
		c.negatives.Set(ctx, f.key.String(), r, c.negativeTTL)
	}
	delete(c.inflight, f.key)
	c.mu.Unlock()

	f.complete(r)
}

// Forget drops retained negative results of the given kind and returns
// how many were dropped. The next request for those keys asks the feeds
// again.
func (c *Cache) Forget(ctx context.Context, kind NegativeKind) int {
	n := c.negatives.DeleteFunc(ctx, func(_ string, r Result) bool {
		switch r.Status {
		case Failed:
			return kind&ForgetErrors != 0
		case NotFound:
			return kind&ForgetNotFound != 0
		}
		return false
	})
	if n > 0 {
		log.Info(log.CatLive, "Forgot negative results", "count", n)
	}
	return n
}

// Close waits for running resolutions to finish.
func (c *Cache) Close() {
	c.running.Wait()
}

// RawPayloads merges the raw answers of every feed that publishes them.
// The channel closes when ctx is done.
func (c *Cache) RawPayloads(ctx context.Context) <-chan pubsub.Event[RawPayload] {
	out := make(chan pubsub.Event[RawPayload])
	var wg sync.WaitGroup
	for _, f := range c.feeds {
		pub, ok := f.(PayloadPublisher)
		if !ok {
			continue
		}
		ch := pub.Payloads().Subscribe(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				event, ok := pubsub.Next(ctx, ch)
				if !ok {
					return
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Future is the shared handle of one resolution.
type Future struct {
	key    artifact.Instance
	done   chan struct{}
	result Result
}

func newFuture(key artifact.Instance) *Future {
	return &Future{key: key, done: make(chan struct{})}
}

func completed(r Result) *Future {
	f := newFuture(r.Key)
	f.complete(r)
	return f
}

func (f *Future) complete(r Result) {
	f.result = r
	close(f.done)
}

// Key returns the requested package.
func (f *Future) Key() artifact.Instance { return f.key }

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait returns the result, or a Failed result carrying ctx.Err() if ctx
// ends first. Giving up does not cancel the resolution.
func (f *Future) Wait(ctx context.Context) Result {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return Result{Key: f.key, Status: Failed, Err: ctx.Err()}
	}
}
