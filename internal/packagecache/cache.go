// Package packagecache holds the current package database snapshot for a
// process. Readers get the snapshot without locking; writers are
// serialized, and each successful change may be persisted before the lock
// is released.
package packagecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/cachemanager"
	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/pubsub"
	"github.com/zjrosen/pkgdb/internal/tracing"
)

// ErrUnknownFeed is returned for queries naming a feed the snapshot lacks.
var ErrUnknownFeed = errors.New("unknown feed")

// Options configures a Cache.
type Options struct {
	// Path is the absolute location of the database file. Its directory
	// must exist.
	Path string
	// AutoSave persists every successful change while the write lock is held.
	AutoSave bool
	// Compress writes the file zstd-compressed.
	Compress bool
	// Tracer records load, save and apply spans. Nil disables tracing.
	Tracer trace.Tracer
}

// ChangeEvent is published after the current snapshot changes.
type ChangeEvent struct {
	Previous *packagedb.DB
	Current  *packagedb.DB
	Diff     packagedb.Diff
}

type versionQuery struct {
	db   *packagedb.DB
	feed packagedb.FeedName
	name string
}

// Cache is a thread-safe holder of one current snapshot.
type Cache struct {
	path     string
	autoSave bool
	compress bool
	tracer   trace.Tracer

	current atomic.Pointer[packagedb.DB]

	mu        sync.Mutex
	lastSaved int
	onDisk    checksum

	events   *pubsub.Broker[ChangeEvent]
	memo     *cachemanager.InMemoryCacheManager[string, artifact.QualityVersions]
	versions *cachemanager.ReadThroughCache[string, artifact.QualityVersions, versionQuery]
}

// New returns a cache holding the empty database. Call Load to read the file.
func New(opts Options) (*Cache, error) {
	if !filepath.IsAbs(opts.Path) {
		return nil, fmt.Errorf("cache path must be absolute: %q", opts.Path)
	}
	dir := filepath.Dir(opts.Path)
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("cache directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("cache directory %s is not a directory", dir)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Disabled().Tracer()
	}

	c := &Cache{
		path:     opts.Path,
		autoSave: opts.AutoSave,
		compress: opts.Compress,
		tracer:   tracer,
		events:   pubsub.NewBroker[ChangeEvent](),
		memo:     cachemanager.NewInMemoryCacheManager[string, artifact.QualityVersions]("available-versions", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
	c.versions = cachemanager.NewReadThroughCache(cachemanager.CacheManager[string, artifact.QualityVersions](c.memo), availableVersions, false)
	c.current.Store(packagedb.Empty())
	return c, nil
}

// Path returns the database file location.
func (c *Cache) Path() string { return c.path }

// Current returns the current snapshot. It never blocks.
func (c *Cache) Current() *packagedb.DB { return c.current.Load() }

// Subscribe delivers change, load and save events until ctx is done.
func (c *Cache) Subscribe(ctx context.Context) <-chan pubsub.Event[ChangeEvent] {
	return c.events.Subscribe(ctx)
}

// Close ends every subscription.
func (c *Cache) Close() {
	c.events.Close()
}

// Load replaces the current snapshot with the file's content. A missing
// file yields the empty database. An unreadable or corrupt file is logged,
// the cache falls back to the empty database and the error is returned for
// information; the file itself is left in place.
func (c *Cache) Load(ctx context.Context) error {
	return tracing.Run(ctx, c.tracer, tracing.SpanLoad, func(ctx context.Context, span trace.Span) error {
		db, sum, err := readFile(c.path)
		switch {
		case err == nil:
		case isNotExist(err):
			log.Info(log.CatCache, "No database file, starting empty", "path", c.path)
			db, err = packagedb.Empty(), nil
		default:
			log.ErrorErr(log.CatCache, "Database file unreadable, starting empty", err, "path", c.path)
			db, sum = packagedb.Empty(), checksum{}
		}
		span.SetAttributes(attribute.Int(tracing.AttrDBVersion, db.Version()), attribute.Int(tracing.AttrCount, db.Len()))

		c.mu.Lock()
		_ = c.memo.Flush(ctx)
		prev := c.current.Swap(db)
		c.lastSaved = db.Version()
		c.onDisk = sum
		c.mu.Unlock()

		c.publish(pubsub.LoadedEvent, prev, db)
		if err != nil {
			return fmt.Errorf("load %s: %w", c.path, err)
		}
		return nil
	}, attribute.String(tracing.AttrCachePath, c.path))
}

// Reload re-reads the file after another process changed it. A file whose
// checksum matches what this cache last read or wrote is ignored. Unlike
// Load, a file that cannot be read keeps the current snapshot: a concurrent
// writer may still be in the middle of overwriting it.
func (c *Cache) Reload(ctx context.Context) error {
	db, sum, err := readFile(c.path)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		log.Warn(log.CatCache, "Reload skipped, file unreadable", "path", c.path, "error", err)
		return fmt.Errorf("reload %s: %w", c.path, err)
	}

	c.mu.Lock()
	if sum == c.onDisk {
		c.mu.Unlock()
		return nil
	}
	// Memo keys hold snapshot addresses, which a new snapshot may reuse.
	_ = c.memo.Flush(ctx)
	prev := c.current.Swap(db)
	c.lastSaved = db.Version()
	c.onDisk = sum
	c.mu.Unlock()

	log.Info(log.CatCache, "Database reloaded", "path", c.path, "version", db.Version())
	c.publish(pubsub.LoadedEvent, prev, db)
	return nil
}

// TrySave writes the current snapshot unless that version is already on
// disk. The in-memory state is unaffected by a failure.
func (c *Cache) TrySave(ctx context.Context) error {
	c.mu.Lock()
	db, err := c.saveLocked(ctx)
	c.mu.Unlock()

	if err == nil && db != nil {
		c.events.Publish(pubsub.SavedEvent, ChangeEvent{Current: db})
	}
	return err
}

// saveLocked returns the saved snapshot, or nil when there was nothing to save.
func (c *Cache) saveLocked(ctx context.Context) (*packagedb.DB, error) {
	db := c.current.Load()
	if db.Version() == c.lastSaved {
		return nil, nil
	}
	var sum checksum
	err := tracing.Run(ctx, c.tracer, tracing.SpanSave, func(context.Context, trace.Span) error {
		var err error
		sum, err = writeFile(c.path, db, c.compress)
		return err
	}, attribute.String(tracing.AttrCachePath, c.path), attribute.Int(tracing.AttrDBVersion, db.Version()))
	if err != nil {
		log.ErrorErr(log.CatCache, "Failed to save database", err, "path", c.path, "version", db.Version())
		return nil, err
	}
	c.lastSaved = db.Version()
	c.onDisk = sum
	log.Debug(log.CatCache, "Database saved", "path", c.path, "version", db.Version())
	return db, nil
}

// ApplyChanges computes the next snapshot with fn while holding the write
// lock. When fn returns nil or its argument, nothing happens. Otherwise the
// result becomes current, is saved if AutoSave is set, and a ChangedEvent
// is published once the lock is released.
//
// The returned snapshot is the current one after the call. A save error is
// returned alongside it: the change itself is kept.
func (c *Cache) ApplyChanges(ctx context.Context, fn func(db *packagedb.DB) (*packagedb.DB, error)) (*packagedb.DB, error) {
	var prev, next *packagedb.DB
	var saved *packagedb.DB
	var saveErr error

	err := tracing.Run(ctx, c.tracer, tracing.SpanApply, func(ctx context.Context, span trace.Span) error {
		c.mu.Lock()
		defer c.mu.Unlock()

		prev = c.current.Load()
		result, err := fn(prev)
		if err != nil {
			return err
		}
		if result == nil || result == prev {
			return nil
		}
		next = result
		c.current.Store(next)
		span.SetAttributes(attribute.Int(tracing.AttrDBVersion, next.Version()))

		if c.autoSave {
			saved, saveErr = c.saveLocked(ctx)
		}
		return nil
	})
	if err != nil {
		return prev, err
	}
	if next == nil {
		return prev, nil
	}

	_ = c.memo.Flush(ctx)
	c.publish(pubsub.ChangedEvent, prev, next)
	if saved != nil {
		c.events.Publish(pubsub.SavedEvent, ChangeEvent{Current: saved})
	}
	return next, saveErr
}

func (c *Cache) publish(kind pubsub.EventType, prev, next *packagedb.DB) {
	diff := packagedb.Compare(prev, next)
	log.Debug(log.CatDB, "Snapshot replaced", "event", kind, "version", next.Version(),
		"added", len(diff.Added), "replaced", len(diff.Replaced), "removed", len(diff.Removed))
	c.events.Publish(kind, ChangeEvent{Previous: prev, Current: next, Diff: diff})
}

// Add registers descriptors through packagedb.DB.Add.
func (c *Cache) Add(ctx context.Context, descs []packagedb.Descriptor, mode packagedb.AddMode) (*packagedb.DB, error) {
	return c.ApplyChanges(ctx, func(db *packagedb.DB) (*packagedb.DB, error) {
		return db.Add(descs, mode)
	})
}

// DropFeed forgets a feed. Its instances stay in the database.
func (c *Cache) DropFeed(ctx context.Context, name packagedb.FeedName) (*packagedb.DB, error) {
	return c.ApplyChanges(ctx, func(db *packagedb.DB) (*packagedb.DB, error) {
		return db.DropFeed(name), nil
	})
}

// Touch records t as the time of the last refresh against feeds.
func (c *Cache) Touch(ctx context.Context, t time.Time) (*packagedb.DB, error) {
	return c.ApplyChanges(ctx, func(db *packagedb.DB) (*packagedb.DB, error) {
		return db.WithLastUpdate(t), nil
	})
}

// AvailableVersions returns the best version per quality tier that feed
// offers for the named package in the current snapshot. Results are
// memoized per snapshot.
func (c *Cache) AvailableVersions(ctx context.Context, feed packagedb.FeedName, name string) (artifact.QualityVersions, error) {
	db := c.current.Load()
	key := fmt.Sprintf("%p|%s|%s", db, feed, name)
	return c.versions.Get(ctx, key, versionQuery{db: db, feed: feed, name: name}, cachemanager.DefaultExpiration)
}

func availableVersions(_ context.Context, q versionQuery) (artifact.QualityVersions, error) {
	f := q.db.Feed(q.feed)
	if f == nil {
		return artifact.QualityVersions{}, fmt.Errorf("%w: %s", ErrUnknownFeed, q.feed)
	}
	return f.AvailableVersions(q.name), nil
}
