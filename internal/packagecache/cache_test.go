package packagecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/pubsub"
)

func key(s string) artifact.Instance {
	k, err := artifact.ParseInstance(s)
	if err != nil {
		panic(err)
	}
	return k
}

func desc(k string, feeds ...string) packagedb.Descriptor {
	return packagedb.Descriptor{Key: key(k), Feeds: feeds}
}

func newCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "packages.db")
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func nextEvent(t *testing.T, ch <-chan pubsub.Event[ChangeEvent]) pubsub.Event[ChangeEvent] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, ok := pubsub.Next(ctx, ch)
	require.True(t, ok, "expected an event")
	return event
}

func TestNew_ValidatesPath(t *testing.T) {
	_, err := New(Options{Path: "relative/packages.db"})
	require.ErrorContains(t, err, "must be absolute")

	_, err = New(Options{Path: filepath.Join(t.TempDir(), "missing", "packages.db")})
	require.ErrorContains(t, err, "cache directory")

	c := newCache(t, Options{})
	require.Same(t, packagedb.Empty(), c.Current())
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	c := newCache(t, Options{})
	require.NoError(t, c.Load(context.Background()))
	require.Equal(t, 0, c.Current().Len())
}

func TestSaveAndLoad(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "zstd"}[compress], func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "packages.db")
			c := newCache(t, Options{Path: path, Compress: compress})

			_, err := c.Add(ctx, []packagedb.Descriptor{
				desc("npm:q@1.0.0", "npm:public"),
				{Key: key("npm:p@1.0.0"), Feeds: []string{"npm:public"}, Dependencies: []packagedb.DependencyDescriptor{
					{Target: key("npm:q@1.0.0"), Kind: packagedb.KindTransitive},
				}},
			}, packagedb.SkipExisting)
			require.NoError(t, err)
			_, err = os.Stat(path)
			require.True(t, os.IsNotExist(err), "nothing is written without AutoSave")

			require.NoError(t, c.TrySave(ctx))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Equal(t, "PKGDB", string(data[:5]))

			other := newCache(t, Options{Path: path})
			require.NoError(t, other.Load(ctx))
			require.Equal(t, 1, other.Current().Version())
			require.Equal(t, 2, other.Current().Len())
			require.NotNil(t, other.Current().Feed(packagedb.FeedName{Type: "npm", Name: "public"}))
		})
	}
}

func TestTrySave_SkipsSavedVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "packages.db")
	c := newCache(t, Options{Path: path})

	require.NoError(t, c.TrySave(ctx))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "the empty database is never written")

	_, err = c.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0")}, packagedb.SkipExisting)
	require.NoError(t, err)
	require.NoError(t, c.TrySave(ctx))

	// Remove the file: a second save of the same version must not recreate it.
	require.NoError(t, os.Remove(path))
	require.NoError(t, c.TrySave(ctx))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestLoad_CorruptFileDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		is   error
	}{
		{name: "garbage", data: []byte("not a database at all, clearly not"), is: packagedb.ErrCorruptStream},
		{name: "short", data: []byte("PKGDB"), is: packagedb.ErrCorruptStream},
		{name: "unknown flags", data: append([]byte("PKGDB\x80"), make([]byte, 40)...), is: packagedb.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "packages.db")
			require.NoError(t, os.WriteFile(path, tt.data, 0o600))

			c := newCache(t, Options{Path: path})
			err := c.Load(context.Background())
			require.ErrorIs(t, err, tt.is)
			require.Equal(t, 0, c.Current().Len())

			_, statErr := os.Stat(path)
			require.NoError(t, statErr, "the file is left in place")
		})
	}
}

func TestLoad_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "packages.db")
	c := newCache(t, Options{Path: path, AutoSave: true})
	_, err := c.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0")}, packagedb.SkipExisting)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[7] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o600))

	other := newCache(t, Options{Path: path})
	err = other.Load(ctx)
	require.ErrorIs(t, err, packagedb.ErrCorruptStream)
	require.ErrorContains(t, err, "checksum mismatch")
}

func TestApplyChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "packages.db")
	c := newCache(t, Options{Path: path, AutoSave: true})

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := c.Subscribe(subCtx)

	next, err := c.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0", "npm:public")}, packagedb.SkipExisting)
	require.NoError(t, err)
	require.Same(t, next, c.Current())

	changed := nextEvent(t, events)
	require.Equal(t, pubsub.ChangedEvent, changed.Type)
	require.Same(t, packagedb.Empty(), changed.Payload.Previous)
	require.Same(t, next, changed.Payload.Current)
	require.Equal(t, []artifact.Instance{key("npm:a@1.0.0")}, changed.Payload.Diff.Added)

	saved := nextEvent(t, events)
	require.Equal(t, pubsub.SavedEvent, saved.Type)
	_, err = os.Stat(path)
	require.NoError(t, err, "auto-save writes inside the lock")

	// A no-op returns the same snapshot and publishes nothing.
	same, err := c.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0")}, packagedb.SkipExisting)
	require.NoError(t, err)
	require.Same(t, next, same)

	// A failed change leaves the snapshot alone.
	failed, err := c.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0")}, packagedb.FailOnExisting)
	require.ErrorIs(t, err, packagedb.ErrAlreadyRegistered)
	require.Same(t, next, failed)

	_, err = c.ApplyChanges(ctx, func(*packagedb.DB) (*packagedb.DB, error) { return nil, nil })
	require.NoError(t, err)

	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestApplyChanges_SaveFailureKeepsChange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "packages.db")
	c := newCache(t, Options{Path: path, AutoSave: true})

	// A directory in place of the file makes every write fail.
	require.NoError(t, os.Mkdir(path, 0o750))

	next, err := c.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0")}, packagedb.SkipExisting)
	require.Error(t, err)
	require.NotNil(t, next)
	require.Equal(t, 1, c.Current().Len(), "memory stays usable")

	require.NoError(t, os.Remove(path))
	require.NoError(t, c.TrySave(ctx), "the unsaved version can be retried")
}

func TestDropFeedAndTouch(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})
	_, err := c.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0", "npm:public")}, packagedb.SkipExisting)
	require.NoError(t, err)

	db, err := c.DropFeed(ctx, packagedb.FeedName{Type: "npm", Name: "public"})
	require.NoError(t, err)
	require.Empty(t, db.Feeds())
	require.Equal(t, 1, db.Len())

	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	db, err = c.Touch(ctx, at)
	require.NoError(t, err)
	require.True(t, at.Equal(db.LastUpdate()))

	again, err := c.Touch(ctx, at)
	require.NoError(t, err)
	require.Same(t, db, again)
}

func TestAvailableVersions(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})
	public := packagedb.FeedName{Type: "npm", Name: "public"}

	_, err := c.AvailableVersions(ctx, public, "left-pad")
	require.ErrorIs(t, err, ErrUnknownFeed)

	_, err = c.Add(ctx, []packagedb.Descriptor{
		desc("npm:left-pad@1.0.0", "npm:public"),
		desc("npm:left-pad@1.1.0-rc.1", "npm:public"),
	}, packagedb.SkipExisting)
	require.NoError(t, err)

	qv, err := c.AvailableVersions(ctx, public, "left-pad")
	require.NoError(t, err)
	latest, ok := qv.Latest()
	require.True(t, ok)
	require.Equal(t, "1.1.0-rc.1", latest.String())

	// A new snapshot is queried afresh.
	_, err = c.Add(ctx, []packagedb.Descriptor{desc("npm:left-pad@2.0.0", "npm:public")}, packagedb.SkipExisting)
	require.NoError(t, err)
	qv, err = c.AvailableVersions(ctx, public, "left-pad")
	require.NoError(t, err)
	stable, _ := qv.Get(artifact.QualityStable)
	require.Equal(t, "2.0.0", stable.String())
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "packages.db")
	writer := newCache(t, Options{Path: path, AutoSave: true})
	reader := newCache(t, Options{Path: path})
	require.NoError(t, reader.Load(ctx))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := reader.Subscribe(subCtx)

	_, err := writer.Add(ctx, []packagedb.Descriptor{desc("npm:a@1.0.0")}, packagedb.SkipExisting)
	require.NoError(t, err)

	require.NoError(t, reader.Reload(ctx))
	require.Equal(t, 1, reader.Current().Len())
	loaded := nextEvent(t, events)
	require.Equal(t, pubsub.LoadedEvent, loaded.Type)
	require.Len(t, loaded.Payload.Diff.Added, 1)

	before := reader.Current()
	require.NoError(t, reader.Reload(ctx))
	require.Same(t, before, reader.Current(), "unchanged file is not reloaded")

	// A truncated file keeps the current snapshot.
	require.NoError(t, os.WriteFile(path, []byte("PKGDB"), 0o600))
	require.Error(t, reader.Reload(ctx))
	require.Same(t, before, reader.Current())
}

func TestLoadAndReload_ForgetVersionMemo(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "packages.db")
	public := packagedb.FeedName{Type: "npm", Name: "public"}
	writer := newCache(t, Options{Path: path, AutoSave: true})
	reader := newCache(t, Options{Path: path})

	_, err := writer.Add(ctx, []packagedb.Descriptor{desc("npm:left-pad@1.0.0", "npm:public")}, packagedb.SkipExisting)
	require.NoError(t, err)
	require.NoError(t, reader.Load(ctx))

	_, err = reader.AvailableVersions(ctx, public, "left-pad")
	require.NoError(t, err)
	require.Equal(t, 1, reader.memo.Len())

	_, err = writer.Add(ctx, []packagedb.Descriptor{desc("npm:left-pad@2.0.0", "npm:public")}, packagedb.SkipExisting)
	require.NoError(t, err)
	require.NoError(t, reader.Reload(ctx))
	require.Equal(t, 0, reader.memo.Len())

	qv, err := reader.AvailableVersions(ctx, public, "left-pad")
	require.NoError(t, err)
	latest, _ := qv.Latest()
	require.Equal(t, "2.0.0", latest.String())
	require.Equal(t, 1, reader.memo.Len())

	require.NoError(t, reader.Load(ctx))
	require.Equal(t, 0, reader.memo.Len())
}

func TestConcurrentWritersSerialize(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Add(ctx, []packagedb.Descriptor{desc(fmt.Sprintf("npm:p@1.0.%d", i))}, packagedb.SkipExisting)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 20, c.Current().Len())
	require.Equal(t, 20, c.Current().Version())
}
