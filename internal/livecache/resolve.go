package livecache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/tracing"
)

// resolve fetches key and its missing dependencies and registers them in
// one batch.
func (c *Cache) resolve(ctx context.Context, key artifact.Instance, diag *diagnostics) Result {
	ctx = tracing.ContextWithRequestID(ctx, diag.requestID)
	result := Result{Key: key}

	_ = tracing.Run(ctx, c.tracer, tracing.SpanEnsure, func(ctx context.Context, span trace.Span) error {
		defer func() {
			span.SetAttributes(attribute.String(tracing.AttrStatus, result.Status.String()))
		}()

		root, _, err := c.fetchInfo(ctx, key, diag)
		if err != nil {
			result.Status, result.Err = Failed, err
			return err
		}
		if root == nil {
			result.Status, result.Err = NotFound, fmt.Errorf("%w: %s", ErrNotFound, key)
			return nil
		}

		cl := &closure{c: c, diag: diag, db: c.cache.Current(), state: make(map[artifact.Instance]visitState)}
		if err := cl.visit(ctx, span, root); err != nil {
			root.Feeds = nil
			result.Status, result.Err, result.Descriptor = Failed, err, root
			result.Offender = cl.offender
			return err
		}

		db, err := c.cache.Add(ctx, cl.list, packagedb.SkipExisting)
		if p := db.Find(key); p != nil && !p.IsGhost() {
			if err != nil {
				log.Warn(log.CatLive, "Resolved package not persisted", "key", key, "error", err)
			}
			result.Status, result.Instance = Resolved, p
			span.SetAttributes(attribute.Int(tracing.AttrCount, len(cl.list)))
			return nil
		}
		if err == nil {
			err = fmt.Errorf("package %s missing after registration", key)
		}
		root.Feeds = nil
		result.Status, result.Err, result.Descriptor = Failed, err, root
		return err
	}, attribute.String(tracing.AttrPackage, key.String()))

	if result.Err != nil && result.Status == Failed {
		log.ErrorErr(log.CatLive, "Resolution failed", result.Err, "key", key, "request_id", diag.requestID)
	}
	return result
}

type visitState uint8

const (
	visiting visitState = iota + 1
	visited
)

// closure collects the descriptors to register for one root, in
// dependency order.
type closure struct {
	c     *Cache
	diag  *diagnostics
	db    *packagedb.DB
	state map[artifact.Instance]visitState
	stack []artifact.Instance
	list  []packagedb.Descriptor

	// offender is the dependency that made the walk fail.
	offender artifact.Instance
}

// visit appends desc after every dependency it needs. Dependencies that are
// real packages in the database are skipped. Those no feed knows become
// ghosts.
func (cl *closure) visit(ctx context.Context, span trace.Span, desc *packagedb.Descriptor) error {
	cl.state[desc.Key] = visiting
	cl.stack = append(cl.stack, desc.Key)

	for _, dep := range desc.Dependencies {
		switch cl.state[dep.Target] {
		case visiting:
			i := slices.Index(cl.stack, dep.Target)
			path := append(slices.Clone(cl.stack[i:]), dep.Target)
			span.AddEvent(tracing.EventCycle, trace.WithAttributes(attribute.String(tracing.AttrPackage, dep.Target.String())))
			cl.offender = dep.Target
			return &CycleError{Path: path}
		case visited:
			continue
		}
		if p := cl.db.Find(dep.Target); p != nil && !p.IsGhost() {
			cl.state[dep.Target] = visited
			continue
		}

		info, consulted, err := cl.c.fetchInfo(ctx, dep.Target, cl.diag)
		if err != nil {
			cl.offender = dep.Target
			return fmt.Errorf("dependency %s of %s: %w", dep.Target, desc.Key, err)
		}
		if info == nil {
			cl.state[dep.Target] = visited
			cl.list = append(cl.list, packagedb.NewGhost(dep.Target, consulted))
			cl.diag.ghostCreated()
			span.AddEvent(tracing.EventGhostCreated, trace.WithAttributes(attribute.String(tracing.AttrPackage, dep.Target.String())))
			log.Info(log.CatLive, "Dependency not found, registering ghost", "key", dep.Target, "dependent", desc.Key)
			continue
		}
		if err := cl.visit(ctx, span, info); err != nil {
			return err
		}
	}

	cl.stack = cl.stack[:len(cl.stack)-1]
	cl.state[desc.Key] = visited
	cl.list = append(cl.list, *desc)
	return nil
}

// infoCall is one readFullInfo shared by every resolution that needs the
// same key while it runs.
type infoCall struct {
	done      chan struct{}
	desc      *packagedb.Descriptor
	consulted []string
	err       error
}

// fetchInfo is readFullInfo behind a single-flight map, so resolutions that
// share a missing dependency ask the feeds once. A failed lookup is kept
// with the other negative results and answered from there until forgotten.
// Each caller gets its own copy of the descriptor.
func (c *Cache) fetchInfo(ctx context.Context, key artifact.Instance, diag *diagnostics) (*packagedb.Descriptor, []string, error) {
	c.mu.Lock()
	if r, ok := c.negatives.Get(ctx, key.String()); ok && r.Status == Failed {
		c.mu.Unlock()
		return nil, nil, r.Err
	}
	call, shared := c.lookups[key]
	if !shared {
		call = &infoCall{done: make(chan struct{})}
		c.lookups[key] = call
	}
	c.mu.Unlock()

	if shared {
		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	} else {
		call.desc, call.consulted, call.err = c.readFullInfo(ctx, key, diag)

		c.mu.Lock()
		if call.err != nil {
			c.negatives.Set(ctx, key.String(), Result{Key: key, Status: Failed, Err: call.err}, c.negativeTTL)
		}
		delete(c.lookups, key)
		c.mu.Unlock()
		close(call.done)
	}

	if call.desc == nil {
		return nil, call.consulted, call.err
	}
	return cloneDescriptor(call.desc), call.consulted, call.err
}

// feedsFor returns the feeds serving t, in configured order.
func (c *Cache) feedsFor(t artifact.Type) []Feed {
	var feeds []Feed
	for _, f := range c.feeds {
		if f.ArtifactType() == t {
			feeds = append(feeds, f)
		}
	}
	return feeds
}

// readFullInfo asks every feed serving key's type and folds their answers
// in configured order. It returns the canonical descriptor, listing every
// feed that vouched for it, or nil when no feed knows the package. The
// names of the consulted feeds are returned in both cases.
//
// A feed error alone does not fail the lookup: the error is returned only
// when no feed answered and at least one failed. Two differing answers
// are always an error.
func (c *Cache) readFullInfo(ctx context.Context, key artifact.Instance, diag *diagnostics) (*packagedb.Descriptor, []string, error) {
	feeds := c.feedsFor(key.Type)
	consulted := make([]string, len(feeds))
	for i, f := range feeds {
		consulted[i] = f.Name()
	}

	answers := make([]*packagedb.Descriptor, len(feeds))
	failures := make([]error, len(feeds))
	err := tracing.Run(ctx, c.tracer, tracing.SpanReadInfo, func(ctx context.Context, span trace.Span) error {
		var g errgroup.Group
		if c.maxParallel > 0 {
			g.SetLimit(c.maxParallel)
		}
		for i, f := range feeds {
			g.Go(func() error {
				answers[i], failures[i] = c.queryFeed(ctx, f, key, diag)
				return nil
			})
		}
		_ = g.Wait()
		span.SetAttributes(attribute.Int(tracing.AttrCount, len(feeds)))
		return nil
	}, attribute.String(tracing.AttrPackage, key.String()))
	if err != nil {
		return nil, consulted, err
	}

	var (
		canonical     *packagedb.Descriptor
		canonicalFeed string
		errs          error
	)
	for i, f := range feeds {
		if failures[i] != nil {
			errs = multierr.Append(errs, failures[i])
			continue
		}
		answer := answers[i]
		if answer == nil {
			continue
		}
		if canonical == nil {
			canonical = cloneDescriptor(answer)
			canonical.Feeds = []string{f.Name()}
			canonicalFeed = f.Name()
			continue
		}
		if !canonical.Equal(answer) {
			mismatch := newMismatch(key, canonicalFeed, canonical, f.Name(), answer)
			trace.SpanFromContext(ctx).AddEvent(tracing.EventMismatch)
			log.Error(log.CatLive, "Feeds disagree", "key", key, "canonical", canonicalFeed, "other", f.Name())
			return nil, consulted, mismatch
		}
		canonical.Feeds = append(canonical.Feeds, f.Name())
	}

	switch {
	case canonical != nil:
		if errs != nil {
			log.Warn(log.CatLive, "Some feeds failed", "key", key, "error", errs)
		}
		return canonical, consulted, nil
	case errs != nil:
		return nil, consulted, fmt.Errorf("package %s: %w", key, errs)
	default:
		return nil, consulted, nil
	}
}

// queryFeed calls one feed under its deadline and checks the answer.
func (c *Cache) queryFeed(ctx context.Context, f Feed, key artifact.Instance, diag *diagnostics) (*packagedb.Descriptor, error) {
	var answer *packagedb.Descriptor
	err := tracing.Run(ctx, c.tracer, tracing.SpanFeed, func(ctx context.Context, span trace.Span) error {
		if c.feedTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.feedTimeout)
			defer cancel()
		}

		start := time.Now()
		desc, err := f.PackageInfo(ctx, key)
		outcome := outcomeFound
		switch {
		case err != nil && errors.Is(err, context.DeadlineExceeded):
			outcome = outcomeTimeout
		case err != nil:
			outcome = outcomeError
		case desc == nil:
			outcome = outcomeNotFound
		case desc.Key != key:
			outcome, err = outcomeError, fmt.Errorf("answered %s", desc.Key)
		case desc.Ghost:
			outcome, err = outcomeError, errors.New("answered a ghost")
		}
		diag.record(f.Name(), key, outcome, time.Since(start))
		span.SetAttributes(attribute.String(tracing.AttrOutcome, outcome))
		log.Debug(log.CatFeed, "Feed answered", "feed", f.Name(), "key", key, "outcome", outcome, "request_id", diag.requestID)

		if err != nil {
			return fmt.Errorf("feed %s: %w", f.Name(), err)
		}
		answer = desc
		return nil
	}, attribute.String(tracing.AttrFeedName, f.Name()), attribute.String(tracing.AttrFeedType, string(f.ArtifactType())), attribute.String(tracing.AttrPackage, key.String()))
	return answer, err
}

func cloneDescriptor(d *packagedb.Descriptor) *packagedb.Descriptor {
	cp := *d
	cp.Feeds = slices.Clone(d.Feeds)
	cp.Dependencies = slices.Clone(d.Dependencies)
	cp.Consulted = slices.Clone(d.Consulted)
	return &cp
}
