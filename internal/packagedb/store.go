package packagedb

import (
	"slices"
	"sort"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

// Store is an immutable array of instances sorted by key, without
// duplicates. Every operation that changes content returns a new Store
// backed by a new array, so a Store held by a reader never changes.
//
// The zero Store is empty and ready to use.
type Store struct {
	items []*Instance
}

// Insertion places Item at Index of the store it is applied to.
type Insertion struct {
	Index int
	Item  *Instance
}

func newStore(items []*Instance) Store {
	return Store{items: items}
}

// Len returns the number of instances.
func (s Store) Len() int { return len(s.items) }

// At returns the i-th instance in key order.
func (s Store) At(i int) *Instance { return s.items[i] }

// All returns the instances in key order. The slice is shared and must not
// be modified.
func (s Store) All() []*Instance { return s.items }

// Position returns where key is, or where it would be inserted, and whether
// it is present.
func (s Store) Position(key artifact.Instance) (int, bool) {
	return slices.BinarySearchFunc(s.items, key, func(p *Instance, k artifact.Instance) int {
		return p.key.Compare(k)
	})
}

// Find returns the instance with the given key, or nil.
func (s Store) Find(key artifact.Instance) *Instance {
	if i, found := s.Position(key); found {
		return s.items[i]
	}
	return nil
}

// ByType returns the contiguous range of instances of type t.
func (s Store) ByType(t artifact.Type) []*Instance {
	return s.rangeOf(func(p *Instance) int {
		switch {
		case p.key.Type < t:
			return -1
		case p.key.Type > t:
			return 1
		}
		return 0
	})
}

// ByArtifact returns the contiguous range of instances of a, newest first.
func (s Store) ByArtifact(a artifact.Artifact) []*Instance {
	return s.rangeOf(func(p *Instance) int {
		return p.key.Artifact.Compare(a)
	})
}

// rangeOf finds the equal range of a prefix of the total order. cmp returns
// the sign of the element relative to the searched prefix.
func (s Store) rangeOf(cmp func(*Instance) int) []*Instance {
	lo, hi := 0, len(s.items)
	hit := -1
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		c := cmp(s.items[mid])
		if c == 0 {
			hit = mid
			break
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if hit < 0 {
		return nil
	}
	start := hit
	for start > 0 && cmp(s.items[start-1]) == 0 {
		start--
	}
	// First element after the range, searched from the hit.
	tail := s.items[hit+1 : hi]
	end := hit + 1 + sort.Search(len(tail), func(i int) bool { return cmp(tail[i]) > 0 })
	return s.items[start:end:end]
}

// Insert returns a store that also holds p. It returns s unchanged and
// false when the key is already present.
func (s Store) Insert(p *Instance) (Store, bool) {
	i, found := s.Position(p.key)
	if found {
		return s, false
	}
	items := make([]*Instance, len(s.items)+1)
	copy(items, s.items[:i])
	items[i] = p
	copy(items[i+1:], s.items[i:])
	return newStore(items), true
}

// InsertBatch inserts many instances in one copy. Indices refer to
// positions in s before any insertion; insertions must be sorted by index,
// and items sharing an index must already be in key order.
func (s Store) InsertBatch(ins []Insertion) Store {
	if len(ins) == 0 {
		return s
	}
	items := make([]*Instance, 0, len(s.items)+len(ins))
	prev := 0
	for _, in := range ins {
		items = append(items, s.items[prev:in.Index]...)
		items = append(items, in.Item)
		prev = in.Index
	}
	items = append(items, s.items[prev:]...)
	return newStore(items)
}

// Replace returns a store where the i-th instance is p. p must have the
// same key as the instance it replaces.
func (s Store) Replace(i int, p *Instance) Store {
	items := slices.Clone(s.items)
	items[i] = p
	return newStore(items)
}

// Remove returns a store without the i-th instance.
func (s Store) Remove(i int) Store {
	items := make([]*Instance, 0, len(s.items)-1)
	items = append(items, s.items[:i]...)
	items = append(items, s.items[i+1:]...)
	return newStore(items)
}

// insertionsFor computes the batch insertions of sorted, absent items.
func (s Store) insertionsFor(sorted []*Instance) []Insertion {
	ins := make([]Insertion, len(sorted))
	for i, p := range sorted {
		idx, _ := s.Position(p.key)
		ins[i] = Insertion{Index: idx, Item: p}
	}
	return ins
}
