package packagedb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

func key(s string) artifact.Instance {
	k, err := artifact.ParseInstance(s)
	if err != nil {
		panic(err)
	}
	return k
}

// desc builds a descriptor for key with transitive dependencies on deps.
func desc(k string, deps ...string) Descriptor {
	d := Descriptor{Key: key(k)}
	for _, dep := range deps {
		d.Dependencies = append(d.Dependencies, DependencyDescriptor{Target: key(dep), Kind: KindTransitive})
	}
	return d
}

func inFeeds(d Descriptor, feeds ...string) Descriptor {
	d.Feeds = feeds
	return d
}

func mustAdd(t *testing.T, db *DB, descs ...Descriptor) *DB {
	t.Helper()
	next, err := db.Add(descs, SkipExisting)
	require.NoError(t, err)
	require.NotNil(t, next)
	return next
}

func keys(ps []*Instance) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Key().String()
	}
	return out
}
