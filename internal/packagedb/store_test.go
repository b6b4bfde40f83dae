package packagedb

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

func storeOf(ks ...string) Store {
	var s Store
	for _, k := range ks {
		s, _ = s.Insert(&Instance{key: key(k)})
	}
	return s
}

func TestStore_InsertKeepsOrderAndCopies(t *testing.T) {
	s := storeOf("npm:b@1.0.0", "npm:a@1.0.0")
	before := s

	next, ok := s.Insert(&Instance{key: key("npm:a@2.0.0")})
	require.True(t, ok)
	require.Equal(t, []string{"npm:a@2.0.0", "npm:a@1.0.0", "npm:b@1.0.0"}, keys(next.All()))
	require.Equal(t, []string{"npm:a@1.0.0", "npm:b@1.0.0"}, keys(before.All()), "original store is untouched")

	same, ok := next.Insert(&Instance{key: key("npm:a@2.0.0")})
	require.False(t, ok)
	require.Equal(t, next.Len(), same.Len())
}

func TestStore_Find(t *testing.T) {
	s := storeOf("npm:a@1.0.0", "nuget:a@1.0.0")
	require.NotNil(t, s.Find(key("nuget:a@1.0.0")))
	require.Nil(t, s.Find(key("nuget:a@2.0.0")))
	require.Nil(t, Store{}.Find(key("npm:a@1.0.0")))
}

func TestStore_RangeQueries(t *testing.T) {
	s := storeOf(
		"npm:a@1.0.0", "npm:b@1.0.0", "npm:a@3.0.0", "npm:b@2.0.0",
		"npm:a@2.0.0", "nuget:a@1.0.0", "maven:z@1.0.0",
	)

	require.Equal(t, []string{"npm:a@3.0.0", "npm:a@2.0.0", "npm:a@1.0.0"},
		keys(s.ByArtifact(artifact.New("npm", "a"))))
	require.Equal(t, []string{"npm:b@2.0.0", "npm:b@1.0.0"},
		keys(s.ByArtifact(artifact.New("npm", "b"))))
	require.Len(t, s.ByType("npm"), 5)
	require.Equal(t, []string{"maven:z@1.0.0"}, keys(s.ByType("maven")))
	require.Empty(t, s.ByType("pypi"))
	require.Empty(t, s.ByArtifact(artifact.New("npm", "c")))
}

func TestStore_RangeIsNotAppendable(t *testing.T) {
	s := storeOf("npm:a@1.0.0", "npm:b@1.0.0")
	r := s.ByArtifact(artifact.New("npm", "a"))
	_ = append(r, &Instance{key: key("npm:z@1.0.0")})
	require.Equal(t, "npm:b@1.0.0", s.At(1).Key().String(), "appending to a range must not clobber the store")
}

func TestStore_InsertBatch(t *testing.T) {
	s := storeOf("npm:b@1.0.0", "npm:d@1.0.0")
	added := []*Instance{
		{key: key("npm:a@1.0.0")},
		{key: key("npm:c@2.0.0")},
		{key: key("npm:c@1.0.0")},
		{key: key("npm:e@1.0.0")},
	}
	next := s.InsertBatch(s.insertionsFor(added))
	require.Equal(t, []string{
		"npm:a@1.0.0", "npm:b@1.0.0", "npm:c@2.0.0", "npm:c@1.0.0", "npm:d@1.0.0", "npm:e@1.0.0",
	}, keys(next.All()))
	require.Equal(t, 2, s.Len())
}

func TestStore_ReplaceRemove(t *testing.T) {
	s := storeOf("npm:a@1.0.0", "npm:b@1.0.0")
	repl := &Instance{key: key("npm:b@1.0.0")}

	r := s.Replace(1, repl)
	require.Same(t, repl, r.At(1))
	require.NotSame(t, repl, s.At(1))

	d := s.Remove(0)
	require.Equal(t, []string{"npm:b@1.0.0"}, keys(d.All()))
	require.Equal(t, 2, s.Len())
}

func TestProperty_StoreStaysSorted(t *testing.T) {
	keyGen := rapid.Custom(func(t *rapid.T) string {
		typ := rapid.SampledFrom([]string{"npm", "nuget"}).Draw(t, "type")
		name := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "name")
		major := rapid.IntRange(0, 5).Draw(t, "major")
		pre := rapid.SampledFrom([]string{"", "-rc.1", "-alpha"}).Draw(t, "pre")
		return typ + ":" + name + "@" + string(rune('0'+major)) + ".0.0" + pre
	})
	rapid.Check(t, func(t *rapid.T) {
		db := Empty()
		batches := rapid.IntRange(1, 6).Draw(t, "batches")
		for b := 0; b < batches; b++ {
			ks := rapid.SliceOfNDistinct(keyGen, 1, 8, func(s string) string { return s }).Draw(t, "keys")
			descs := make([]Descriptor, len(ks))
			for i, k := range ks {
				descs[i] = desc(k)
			}
			next, err := db.Add(descs, SkipExisting)
			require.NoError(t, err)
			db = next
		}
		items := db.Store().All()
		require.True(t, slices.IsSortedFunc(items, (*Instance).Compare))
		for i := 1; i < len(items); i++ {
			require.NotEqual(t, items[i-1].Key(), items[i].Key(), "no duplicate keys")
		}
	})
}
