package sqlitefeed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/livecache"
	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/pubsub"
	"github.com/zjrosen/pkgdb/internal/savor"
)

// Feed answers PackageInfo from a read-only catalog.
type Feed struct {
	name     packagedb.FeedName
	path     string
	db       *sql.DB
	savorCtx savor.Context
	payloads *pubsub.Broker[livecache.RawPayload]
}

var (
	_ livecache.Feed             = (*Feed)(nil)
	_ livecache.PayloadPublisher = (*Feed)(nil)
)

// Open opens the catalog at path read-only and serves it as the feed name.
func Open(name, path string) (*Feed, error) {
	feedName, err := packagedb.ParseFeedName(name)
	if err != nil {
		return nil, err
	}

	log.Debug(log.CatFeed, "Opening catalog", "feed", name, "path", path)
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		log.ErrorErr(log.CatFeed, "Failed to open catalog", err, "path", path)
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		log.ErrorErr(log.CatFeed, "Failed to ping catalog", err, "path", path)
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}

	f := &Feed{
		name:     feedName,
		path:     path,
		db:       db,
		payloads: pubsub.NewBroker[livecache.RawPayload](),
	}
	if f.savorCtx, err = readSavorContext(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}

	log.Info(log.CatFeed, "Catalog opened", "feed", name, "path", path)
	return f, nil
}

func readSavorContext(ctx context.Context, db *sql.DB) (savor.Context, error) {
	var name string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, savorContextKey).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return savor.Context{}, nil
	}
	if err != nil {
		return savor.Context{}, fmt.Errorf("read savor context: %w", err)
	}
	return savor.NewContext(name)
}

// Name returns the feed's typed name.
func (f *Feed) Name() string { return f.name.String() }

// ArtifactType returns the type of packages this feed serves.
func (f *Feed) ArtifactType() artifact.Type { return f.name.Type }

// Payloads exposes the raw rows behind every answered query as JSON.
func (f *Feed) Payloads() pubsub.Subscriber[livecache.RawPayload] { return f.payloads }

// Close releases the catalog and ends payload subscriptions.
func (f *Feed) Close() error {
	f.payloads.Close()
	return f.db.Close()
}

type packageRow struct {
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Savors       string          `json:"savors,omitempty"`
	Dependencies []dependencyRow `json:"dependencies,omitempty"`
}

type dependencyRow struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Kind    string `json:"kind"`
	Savors  string `json:"savors,omitempty"`
}

// PackageInfo looks key up in the catalog. Unknown packages and packages of
// another artifact type yield (nil, nil).
func (f *Feed) PackageInfo(ctx context.Context, key artifact.Instance) (*packagedb.Descriptor, error) {
	if key.Type != f.name.Type {
		return nil, nil
	}

	row, found, err := f.queryPackage(ctx, key)
	if err != nil {
		log.ErrorErr(log.CatFeed, "Catalog query failed", err, "feed", f.name, "package", key)
		return nil, fmt.Errorf("feed %s: %s: %w", f.name, key, err)
	}
	if !found {
		log.Debug(log.CatFeed, "Package not in catalog", "feed", f.name, "package", key)
		return nil, nil
	}

	desc, err := f.toDescriptor(key, row)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %s: %w", f.name, key, err)
	}

	if data, err := json.Marshal(row); err == nil {
		f.payloads.Publish(pubsub.LoadedEvent, livecache.RawPayload{Feed: f.Name(), Key: key, Data: data})
	}
	return desc, nil
}

func (f *Feed) queryPackage(ctx context.Context, key artifact.Instance) (packageRow, bool, error) {
	row := packageRow{Type: string(key.Type), Name: key.Name, Version: key.Version.String()}

	var id int64
	err := f.db.QueryRowContext(ctx,
		`SELECT id, savors FROM packages WHERE type = ? AND name = ? AND version = ?`,
		row.Type, row.Name, row.Version,
	).Scan(&id, &row.Savors)
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}

	rows, err := f.db.QueryContext(ctx,
		`SELECT target_type, target_name, target_version, kind, savors
		 FROM dependencies WHERE pkg_id = ? ORDER BY seq`, id)
	if err != nil {
		return row, false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var dep dependencyRow
		if err := rows.Scan(&dep.Type, &dep.Name, &dep.Version, &dep.Kind, &dep.Savors); err != nil {
			return row, false, err
		}
		row.Dependencies = append(row.Dependencies, dep)
	}
	return row, true, rows.Err()
}

func (f *Feed) toDescriptor(key artifact.Instance, row packageRow) (*packagedb.Descriptor, error) {
	savors, err := f.parseSavors(row.Savors)
	if err != nil {
		return nil, err
	}
	desc := &packagedb.Descriptor{
		Key:    key,
		Feeds:  []string{f.Name()},
		Savors: savors,
	}
	for _, dep := range row.Dependencies {
		kind, ok := packagedb.ParseDependencyKind(dep.Kind)
		if !ok || !kind.Valid() {
			return nil, fmt.Errorf("dependency %s:%s@%s: unknown kind %q", dep.Type, dep.Name, dep.Version, dep.Kind)
		}
		depSavors, err := f.parseSavors(dep.Savors)
		if err != nil {
			return nil, err
		}
		desc.Dependencies = append(desc.Dependencies, packagedb.DependencyDescriptor{
			Target: artifact.NewInstance(artifact.Type(dep.Type), dep.Name, dep.Version),
			Kind:   kind,
			Savors: depSavors,
		})
	}
	return desc, nil
}

func (f *Feed) parseSavors(s string) (savor.Set, error) {
	if s == "" {
		return savor.Set{}, nil
	}
	if f.savorCtx.IsZero() {
		return savor.Set{}, fmt.Errorf("savors %q without a savor context in the catalog", s)
	}
	return savor.Parse(f.savorCtx, s)
}
