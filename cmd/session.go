package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/zjrosen/pkgdb/internal/feeds/sqlitefeed"
	"github.com/zjrosen/pkgdb/internal/livecache"
	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/packagecache"
	"github.com/zjrosen/pkgdb/internal/tracing"
)

// session holds what a command needs: the loaded package cache and,
// when asked for, the live cache over the configured feeds.
type session struct {
	cache *packagecache.Cache
	live  *livecache.Cache
	feeds []*sqlitefeed.Feed
	trace *tracing.Provider
}

func openSession(ctx context.Context, withFeeds bool) (*session, error) {
	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	s := &session{trace: provider}

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o750); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	s.cache, err = packagecache.New(packagecache.Options{
		Path:     cfg.CachePath,
		AutoSave: cfg.AutoSave,
		Compress: cfg.Compress,
		Tracer:   provider.Tracer(),
	})
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	if err := s.cache.Load(ctx); err != nil {
		// The cache starts empty; the file is overwritten on the next save.
		log.Warn(log.CatCache, "Starting with an empty database", "error", err)
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if !withFeeds {
		return s, nil
	}

	var feeds []livecache.Feed
	for _, fc := range cfg.Feeds {
		f, ferr := sqlitefeed.Open(fc.Name, fc.Path)
		if ferr != nil {
			err = multierr.Append(err, ferr)
			continue
		}
		s.feeds = append(s.feeds, f)
		feeds = append(feeds, f)
	}
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	s.live, err = livecache.New(livecache.Options{
		Cache:       s.cache,
		Feeds:       feeds,
		FeedTimeout: cfg.FeedTimeout,
		MaxParallel: cfg.MaxParallelFeeds,
		NegativeTTL: cfg.NegativeTTL,
		Tracer:      provider.Tracer(),
	})
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

// close releases everything and saves changes that auto-save did not
// persist.
func (s *session) close(ctx context.Context) {
	if s.live != nil {
		s.live.Close()
	}
	for _, f := range s.feeds {
		_ = f.Close()
	}
	if s.cache != nil {
		if err := s.cache.TrySave(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: saving %s: %v\n", s.cache.Path(), err)
		}
		s.cache.Close()
	}
	if s.trace != nil {
		_ = s.trace.Shutdown(ctx)
	}
}
