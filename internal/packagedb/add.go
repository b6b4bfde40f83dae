package packagedb

import (
	"fmt"
	"maps"
	"slices"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

// AddMode tells Add what to do with descriptors whose key is already
// registered.
type AddMode int

const (
	// SkipExisting silently ignores already registered keys.
	SkipExisting AddMode = iota
	// FailOnExisting rejects the batch when a key is already registered.
	FailOnExisting
)

// Add registers a batch of descriptors and returns the resulting database.
//
// The batch is all or nothing: if any descriptor is invalid or depends on a
// package that is neither registered nor described earlier in the batch,
// Add returns a nil database and an error, and db is left as it was.
// Dependencies must therefore come before their dependents.
//
// A real descriptor whose key is registered as a ghost replaces the ghost
// in both modes, and every instance that reaches the ghost is rebuilt to
// point at the replacement. Ghost descriptors never replace anything.
//
// When nothing changes, Add returns db itself.
func (db *DB) Add(descs []Descriptor, mode AddMode) (*DB, error) {
	if err := validateBatch(descs); err != nil {
		return nil, err
	}

	var (
		built    = make(map[artifact.Instance]*Instance, len(descs))
		added    []*Instance
		replaced map[artifact.Instance]*Instance
		members  = make(map[*Instance][]string)
	)
	for i := range descs {
		d := &descs[i]
		existing := db.store.Find(d.Key)
		if existing != nil {
			switch {
			case d.Ghost:
				continue
			case existing.ghost:
			case mode == SkipExisting:
				continue
			default:
				return nil, fmt.Errorf("package %s: %w", d.Key, ErrAlreadyRegistered)
			}
		}

		p := &Instance{key: d.Key, savors: d.Savors, ghost: d.Ghost}
		if d.Ghost {
			p.consulted = slices.Clone(d.Consulted)
		}
		if len(d.Dependencies) > 0 {
			p.deps = make([]Reference, len(d.Dependencies))
		}
		for j, dep := range d.Dependencies {
			// A package built earlier in this batch wins over the store so
			// that a replaced ghost is never linked again.
			target := built[dep.Target]
			if target == nil {
				target = db.store.Find(dep.Target)
			}
			if target == nil {
				return nil, &UnresolvedDependencyError{Package: d.Key, Dependency: dep.Target}
			}
			p.deps[j] = Reference{Target: target, Kind: dep.Kind, Savors: dep.Savors}
		}
		built[d.Key] = p
		if len(d.Feeds) > 0 {
			members[p] = d.Feeds
		}
		if existing != nil {
			if replaced == nil {
				replaced = make(map[artifact.Instance]*Instance)
			}
			replaced[d.Key] = p
		} else {
			added = append(added, p)
		}
	}
	if len(added) == 0 && len(replaced) == 0 {
		return db, nil
	}

	slices.SortFunc(added, (*Instance).Compare)
	store := db.store.InsertBatch(db.store.insertionsFor(added))

	var rebuilt map[artifact.Instance]*Instance
	if len(replaced) > 0 {
		store, rebuilt = rewire(store, replaced)
	}

	feeds := db.feeds
	pending := make(map[FeedName][]*Instance)
	for _, p := range slices.Concat(added, slices.Collect(maps.Values(replaced))) {
		for _, f := range members[p] {
			name, _ := ParseFeedName(f)
			pending[name] = append(pending[name], resolveRebuilt(rebuilt, p))
		}
	}
	if len(pending) > 0 || len(rebuilt) > 0 {
		// The feed map is copied once for the whole batch.
		feeds = maps.Clone(db.feeds)
	}
	for name, ps := range pending {
		slices.SortFunc(ps, (*Instance).Compare)
		ps = slices.CompactFunc(ps, func(a, b *Instance) bool { return a.key == b.key })
		f := feeds[name]
		if f == nil {
			feeds[name] = &Feed{name: name, store: newStore(ps)}
			continue
		}
		var fresh []*Instance
		for _, p := range ps {
			if !f.Contains(p.key) {
				fresh = append(fresh, p)
			}
		}
		feeds[name] = &Feed{name: name, store: f.store.InsertBatch(f.store.insertionsFor(fresh))}
	}
	if len(rebuilt) > 0 {
		for name, f := range feeds {
			feeds[name] = refreshFeed(f, rebuilt)
		}
	}

	return &DB{store: store, feeds: feeds, version: db.version + 1, lastUpdate: db.lastUpdate}, nil
}

func validateBatch(descs []Descriptor) error {
	seen := make(map[artifact.Instance]struct{}, len(descs))
	for i := range descs {
		d := &descs[i]
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := seen[d.Key]; dup {
			return &ValidationError{Key: d.Key, Reason: "described twice in the same batch"}
		}
		seen[d.Key] = struct{}{}
	}
	return nil
}

func resolveRebuilt(rebuilt map[artifact.Instance]*Instance, p *Instance) *Instance {
	if r, ok := rebuilt[p.key]; ok {
		return r
	}
	return p
}

// rewire swaps replaced ghosts in store and rebuilds, by path copying,
// every instance whose edges reach one of them. It returns the new store and
// every instance that changed identity, keyed by key.
func rewire(store Store, replaced map[artifact.Instance]*Instance) (Store, map[artifact.Instance]*Instance) {
	items := slices.Clone(store.items)
	for key, p := range replaced {
		i, _ := store.Position(key)
		items[i] = p
	}

	memo := make(map[*Instance]*Instance, len(items))
	var visit func(p *Instance) *Instance
	visit = func(p *Instance) *Instance {
		if r, ok := memo[p]; ok {
			return r
		}
		// A replacement may itself reach ghosts replaced in the same batch,
		// so its edges are walked like any other node's.
		src := p
		if r, ok := replaced[p.key]; ok && p.ghost && r != p {
			src = r
		}
		out := src
		var deps []Reference
		for i, ref := range src.deps {
			target := visit(ref.Target)
			if target == ref.Target {
				continue
			}
			if deps == nil {
				deps = slices.Clone(src.deps)
			}
			deps[i].Target = target
		}
		if deps != nil {
			out = &Instance{key: src.key, savors: src.savors, deps: deps}
		}
		memo[p] = out
		memo[src] = out
		return out
	}

	rebuilt := make(map[artifact.Instance]*Instance)
	for i, p := range items {
		if r := visit(p); r != p {
			items[i] = r
			rebuilt[r.key] = r
		}
	}
	return newStore(items), rebuilt
}

// refreshFeed points a feed at the rebuilt versions of its members.
func refreshFeed(f *Feed, rebuilt map[artifact.Instance]*Instance) *Feed {
	var items []*Instance
	for i, p := range f.store.items {
		r, ok := rebuilt[p.key]
		if !ok || r == p {
			continue
		}
		if items == nil {
			items = slices.Clone(f.store.items)
		}
		items[i] = r
	}
	if items == nil {
		return f
	}
	return &Feed{name: f.name, store: newStore(items)}
}
