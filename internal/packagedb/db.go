// Package packagedb holds the immutable package database: a sorted store of
// package instances linked by dependency edges, the feeds that vouch for
// them, and the binary format used to persist it.
//
// A *DB is a snapshot. Every change (Add, DropFeed, WithLastUpdate) returns
// a new *DB and leaves the receiver untouched, so readers may keep using an
// old snapshot while writers publish new ones. Unchanged instances and feeds
// are shared between snapshots. An operation that changes nothing returns
// its receiver, which lets callers detect no-ops with ==.
package packagedb

import (
	"maps"
	"slices"
	"time"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

// DB is an immutable snapshot of the package database.
type DB struct {
	store      Store
	feeds      map[FeedName]*Feed
	version    int
	lastUpdate time.Time
}

var empty = &DB{feeds: map[FeedName]*Feed{}}

// Empty returns the empty database, at version 0.
func Empty() *DB { return empty }

// Version increases with every structural change.
func (db *DB) Version() int { return db.version }

// LastUpdate returns the time recorded by the last WithLastUpdate.
func (db *DB) LastUpdate() time.Time { return db.lastUpdate }

// Store returns every instance, sorted by key.
func (db *DB) Store() Store { return db.store }

// Len returns the number of instances, ghosts included.
func (db *DB) Len() int { return db.store.Len() }

// Find returns the instance with the given key, or nil.
func (db *DB) Find(key artifact.Instance) *Instance { return db.store.Find(key) }

// ByType returns every instance of type t.
func (db *DB) ByType(t artifact.Type) []*Instance { return db.store.ByType(t) }

// ByArtifact returns every known version of a, newest first.
func (db *DB) ByArtifact(a artifact.Artifact) []*Instance { return db.store.ByArtifact(a) }

// Feed returns the named feed, or nil.
func (db *DB) Feed(name FeedName) *Feed { return db.feeds[name] }

// Feeds returns every feed ordered by name.
func (db *DB) Feeds() []*Feed {
	feeds := slices.Collect(maps.Values(db.feeds))
	slices.SortFunc(feeds, func(a, b *Feed) int { return a.name.Compare(b.name) })
	return feeds
}

// FeedsOf returns the names of the feeds that contain key, in order.
func (db *DB) FeedsOf(key artifact.Instance) []FeedName {
	var names []FeedName
	for _, f := range db.Feeds() {
		if f.Contains(key) {
			names = append(names, f.name)
		}
	}
	return names
}

// Ghosts returns the placeholder instances, in key order.
func (db *DB) Ghosts() []*Instance {
	var ghosts []*Instance
	for _, p := range db.store.items {
		if p.ghost {
			ghosts = append(ghosts, p)
		}
	}
	return ghosts
}

// DropFeed returns a database without the named feed. The feed's
// instances stay in the store: other packages may still depend on them.
func (db *DB) DropFeed(name FeedName) *DB {
	if _, ok := db.feeds[name]; !ok {
		return db
	}
	feeds := maps.Clone(db.feeds)
	delete(feeds, name)
	return &DB{store: db.store, feeds: feeds, version: db.version + 1, lastUpdate: db.lastUpdate}
}

// WithLastUpdate returns a database whose LastUpdate is t.
func (db *DB) WithLastUpdate(t time.Time) *DB {
	if db.lastUpdate.Equal(t) {
		return db
	}
	return &DB{store: db.store, feeds: db.feeds, version: db.version + 1, lastUpdate: t}
}
