package packagedb

import (
	"github.com/zjrosen/pkgdb/internal/artifact"
)

// Diff describes what changed between two snapshots.
type Diff struct {
	Added    []artifact.Instance
	Replaced []artifact.Instance
	Removed  []artifact.Instance

	AddedFeeds   []FeedName
	DroppedFeeds []FeedName
	ChangedFeeds []FeedName
}

// IsEmpty reports whether the two snapshots hold the same content.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Replaced) == 0 && len(d.Removed) == 0 &&
		len(d.AddedFeeds) == 0 && len(d.DroppedFeeds) == 0 && len(d.ChangedFeeds) == 0
}

// Compare walks both sorted stores once. An instance present in both with a
// different identity is reported as replaced. Either side may be nil.
func Compare(prev, next *DB) Diff {
	if prev == nil {
		prev = Empty()
	}
	if next == nil {
		next = Empty()
	}
	var d Diff
	if prev == next {
		return d
	}

	a, b := prev.store.items, next.store.items
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b):
			d.Removed = append(d.Removed, a[i].key)
			i++
		case i == len(a):
			d.Added = append(d.Added, b[j].key)
			j++
		default:
			switch c := a[i].key.Compare(b[j].key); {
			case c < 0:
				d.Removed = append(d.Removed, a[i].key)
				i++
			case c > 0:
				d.Added = append(d.Added, b[j].key)
				j++
			default:
				if a[i] != b[j] {
					d.Replaced = append(d.Replaced, b[j].key)
				}
				i++
				j++
			}
		}
	}

	for _, f := range next.Feeds() {
		old, ok := prev.feeds[f.name]
		switch {
		case !ok:
			d.AddedFeeds = append(d.AddedFeeds, f.name)
		case old != f:
			d.ChangedFeeds = append(d.ChangedFeeds, f.name)
		}
	}
	for _, f := range prev.Feeds() {
		if _, ok := next.feeds[f.name]; !ok {
			d.DroppedFeeds = append(d.DroppedFeeds, f.name)
		}
	}
	return d
}
