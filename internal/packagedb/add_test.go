package packagedb

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/savor"
)

var frameworks = savor.MustContext("frameworks")

func TestAdd_DependencyMustBeRegisteredFirst(t *testing.T) {
	db := Empty()

	failed, err := db.Add([]Descriptor{desc("nuget:P@1.0.0", "nuget:Q@1.0.0")}, SkipExisting)
	require.Nil(t, failed)
	var unresolved *UnresolvedDependencyError
	require.ErrorAs(t, err, &unresolved)
	require.ErrorIs(t, err, ErrDependencyNotRegistered)
	require.Equal(t, key("nuget:Q@1.0.0"), unresolved.Dependency)
	require.Contains(t, err.Error(), "dependency nuget:Q@1.0.0 not registered")

	db = mustAdd(t, db, desc("nuget:Q@1.0.0"))
	db = mustAdd(t, db, desc("nuget:P@1.0.0", "nuget:Q@1.0.0"))
	require.Equal(t, 2, db.Version())
	require.Equal(t, 2, db.Len())

	p := db.Find(key("nuget:P@1.0.0"))
	require.NotNil(t, p)
	require.Len(t, p.Dependencies(), 1)
	require.Same(t, db.Find(key("nuget:Q@1.0.0")), p.Dependencies()[0].Target)
}

func TestAdd_BatchResolvesEarlierDescriptors(t *testing.T) {
	db := mustAdd(t, Empty(),
		desc("npm:q@1.0.0"),
		desc("npm:p@1.0.0", "npm:q@1.0.0"),
	)
	require.Equal(t, 1, db.Version())
	require.Equal(t, 2, db.Len())

	// A dependency placed after its dependent is not resolved.
	_, err := Empty().Add([]Descriptor{
		desc("npm:p@1.0.0", "npm:q@1.0.0"),
		desc("npm:q@1.0.0"),
	}, SkipExisting)
	require.ErrorIs(t, err, ErrDependencyNotRegistered)
}

func TestAdd_IsAtomic(t *testing.T) {
	db := mustAdd(t, Empty(), desc("npm:base@1.0.0"))

	tests := []struct {
		name  string
		descs []Descriptor
		is    error
	}{
		{
			name:  "unresolved dependency",
			descs: []Descriptor{desc("npm:ok@1.0.0", "npm:base@1.0.0"), desc("npm:bad@1.0.0", "npm:missing@1.0.0")},
			is:    ErrDependencyNotRegistered,
		},
		{
			name:  "invalid feed name",
			descs: []Descriptor{desc("npm:ok@1.0.0"), inFeeds(desc("npm:bad@1.0.0"), "no-type")},
			is:    ErrInvalidDescriptor,
		},
		{
			name:  "feed of another type",
			descs: []Descriptor{inFeeds(desc("npm:bad@1.0.0"), "nuget:org")},
			is:    ErrInvalidDescriptor,
		},
		{
			name: "kind none",
			descs: []Descriptor{{
				Key:          key("npm:bad@1.0.0"),
				Dependencies: []DependencyDescriptor{{Target: key("npm:base@1.0.0")}},
			}},
			is: ErrInvalidDescriptor,
		},
		{
			name: "edge savors outside package savors",
			descs: []Descriptor{{
				Key:    key("npm:bad@1.0.0"),
				Savors: savor.MustSet(frameworks, "net8.0"),
				Dependencies: []DependencyDescriptor{{
					Target: key("npm:base@1.0.0"),
					Kind:   KindTransitive,
					Savors: savor.MustSet(frameworks, "net6.0"),
				}},
			}},
			is: ErrInvalidDescriptor,
		},
		{
			name: "edge savors without package savors",
			descs: []Descriptor{{
				Key: key("npm:bad@1.0.0"),
				Dependencies: []DependencyDescriptor{{
					Target: key("npm:base@1.0.0"),
					Kind:   KindTransitive,
					Savors: savor.MustSet(frameworks, "net6.0"),
				}},
			}},
			is: ErrInvalidDescriptor,
		},
		{
			name:  "invalid key",
			descs: []Descriptor{{Key: artifact.Instance{Artifact: artifact.New("npm", "x")}}},
			is:    ErrInvalidDescriptor,
		},
		{
			name:  "same key twice",
			descs: []Descriptor{desc("npm:twice@1.0.0"), desc("npm:twice@1.0.0")},
			is:    ErrInvalidDescriptor,
		},
		{
			name:  "ghost with feeds",
			descs: []Descriptor{inFeeds(NewGhost(key("npm:g@1.0.0"), nil), "npm:org")},
			is:    ErrInvalidDescriptor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := db.Add(tt.descs, SkipExisting)
			require.Nil(t, next)
			require.ErrorIs(t, err, tt.is)
			require.Equal(t, 1, db.Version())
			require.Equal(t, 1, db.Len())
			require.Nil(t, db.Find(key("npm:ok@1.0.0")))
		})
	}
}

func TestAdd_ExistingKeys(t *testing.T) {
	db := mustAdd(t, Empty(), desc("npm:a@1.0.0"), desc("npm:b@1.0.0"))

	same, err := db.Add([]Descriptor{desc("npm:a@1.0.0"), desc("npm:b@1.0.0")}, SkipExisting)
	require.NoError(t, err)
	require.Same(t, db, same, "skip mode with known keys is a no-op")

	same, err = db.Add(nil, FailOnExisting)
	require.NoError(t, err)
	require.Same(t, db, same)

	failed, err := db.Add([]Descriptor{desc("npm:c@1.0.0"), desc("npm:a@1.0.0")}, FailOnExisting)
	require.Nil(t, failed)
	require.True(t, errors.Is(err, ErrAlreadyRegistered))
	require.Nil(t, db.Find(key("npm:c@1.0.0")))
}

func TestAdd_Feeds(t *testing.T) {
	db := mustAdd(t, Empty(),
		inFeeds(desc("npm:a@1.0.0"), "npm:public"),
		inFeeds(desc("nuget:x@1.0.0"), "nuget:org"),
	)
	nugetFeed := db.Feed(FeedName{Type: "nuget", Name: "org"})
	require.NotNil(t, nugetFeed)

	next := mustAdd(t, db,
		inFeeds(desc("npm:b@1.0.0"), "npm:public", "npm:private"),
		inFeeds(desc("npm:a@2.0.0"), "npm:public"),
	)

	public := next.Feed(FeedName{Type: "npm", Name: "public"})
	require.Equal(t, []string{"npm:a@2.0.0", "npm:a@1.0.0", "npm:b@1.0.0"}, keys(public.Store().All()))
	require.Equal(t, []string{"npm:b@1.0.0"}, keys(next.Feed(FeedName{Type: "npm", Name: "private"}).Store().All()))
	require.Same(t, nugetFeed, next.Feed(FeedName{Type: "nuget", Name: "org"}), "unrelated feeds are shared")
	require.Equal(t, 1, db.Feed(FeedName{Type: "npm", Name: "public"}).Len(), "previous snapshot keeps its feed")
	require.Equal(t, []FeedName{{Type: "npm", Name: "private"}, {Type: "npm", Name: "public"}}, next.FeedsOf(key("npm:b@1.0.0")))
}

func TestAdd_SharesExistingNodes(t *testing.T) {
	db := mustAdd(t, Empty(), desc("npm:q@1.0.0"))
	q := db.Find(key("npm:q@1.0.0"))

	next := mustAdd(t, db, desc("npm:p@1.0.0", "npm:q@1.0.0"))
	require.Same(t, q, next.Find(key("npm:q@1.0.0")))
	require.Same(t, q, next.Find(key("npm:p@1.0.0")).Dependencies()[0].Target)
}

func TestAdd_GhostReplacement(t *testing.T) {
	db := mustAdd(t, Empty(),
		NewGhost(key("npm:leaf@1.0.0"), []string{"npm:public"}),
		inFeeds(desc("npm:mid@1.0.0", "npm:leaf@1.0.0"), "npm:public"),
		desc("npm:top@1.0.0", "npm:mid@1.0.0"),
		desc("npm:other@1.0.0"),
	)
	ghost := db.Find(key("npm:leaf@1.0.0"))
	require.True(t, ghost.IsGhost())
	require.Equal(t, []string{"npm:public"}, ghost.GhostFeeds())
	require.Len(t, db.Ghosts(), 1)
	other := db.Find(key("npm:other@1.0.0"))

	// Another ghost for the same key changes nothing.
	same, err := db.Add([]Descriptor{NewGhost(key("npm:leaf@1.0.0"), nil)}, FailOnExisting)
	require.NoError(t, err)
	require.Same(t, db, same)

	next, err := db.Add([]Descriptor{inFeeds(desc("npm:leaf@1.0.0"), "npm:public")}, FailOnExisting)
	require.NoError(t, err)
	require.Equal(t, db.Version()+1, next.Version())
	require.Empty(t, next.Ghosts())

	leaf := next.Find(key("npm:leaf@1.0.0"))
	require.False(t, leaf.IsGhost())
	mid := next.Find(key("npm:mid@1.0.0"))
	require.Same(t, leaf, mid.Dependencies()[0].Target, "dependents are rewired to the replacement")
	top := next.Find(key("npm:top@1.0.0"))
	require.Same(t, mid, top.Dependencies()[0].Target, "rewiring is transitive")
	require.Same(t, other, next.Find(key("npm:other@1.0.0")), "unrelated nodes are shared")

	public := next.Feed(FeedName{Type: "npm", Name: "public"})
	require.Same(t, mid, public.Store().Find(key("npm:mid@1.0.0")), "feeds see rebuilt nodes")
	require.True(t, public.Contains(key("npm:leaf@1.0.0")))

	// The old snapshot still sees the ghost.
	require.True(t, db.Find(key("npm:leaf@1.0.0")).IsGhost())
	require.Same(t, ghost, db.Find(key("npm:mid@1.0.0")).Dependencies()[0].Target)

	diff := Compare(db, next)
	require.ElementsMatch(t, []artifact.Instance{key("npm:leaf@1.0.0"), key("npm:mid@1.0.0"), key("npm:top@1.0.0")}, diff.Replaced)
	require.Empty(t, diff.Added)
}

func TestAdd_GhostReplacementChain(t *testing.T) {
	db := mustAdd(t, Empty(),
		NewGhost(key("npm:g@1.0.0"), nil),
		NewGhost(key("npm:h@1.0.0"), nil),
		desc("npm:x@1.0.0", "npm:g@1.0.0"),
	)

	// g is described first and links to the registered ghost h, which the
	// same batch replaces afterwards.
	next := mustAdd(t, db, desc("npm:g@1.0.0", "npm:h@1.0.0"), desc("npm:h@1.0.0"))
	require.Empty(t, next.Ghosts())

	h := next.Find(key("npm:h@1.0.0"))
	g := next.Find(key("npm:g@1.0.0"))
	x := next.Find(key("npm:x@1.0.0"))
	require.False(t, h.IsGhost())
	require.Same(t, h, g.Dependencies()[0].Target)
	require.Same(t, g, x.Dependencies()[0].Target)
	require.False(t, x.Dependencies()[0].Target.Dependencies()[0].Target.IsGhost())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, next))
	back, err := Read(&buf)
	require.NoError(t, err)
	require.Empty(t, back.Ghosts())
	require.Equal(t, keys(next.Store().All()), keys(back.Store().All()))
}

func TestDropFeed(t *testing.T) {
	db := mustAdd(t, Empty(), inFeeds(desc("npm:a@1.0.0"), "npm:public"))
	name := FeedName{Type: "npm", Name: "public"}

	next := db.DropFeed(name)
	require.Nil(t, next.Feed(name))
	require.NotNil(t, next.Find(key("npm:a@1.0.0")), "instances outlive their feeds")
	require.Equal(t, db.Version()+1, next.Version())
	require.NotNil(t, db.Feed(name))

	require.Same(t, next, next.DropFeed(name))
}

func TestWithLastUpdate(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	db := Empty().WithLastUpdate(now)
	require.Equal(t, 1, db.Version())
	require.Equal(t, now, db.LastUpdate())
	require.Same(t, db, db.WithLastUpdate(now))

	next := mustAdd(t, db, desc("npm:a@1.0.0"))
	require.Equal(t, now, next.LastUpdate(), "Add carries LastUpdate over")
}
