package packagedb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

func TestCompare(t *testing.T) {
	prev := mustAdd(t, Empty(),
		inFeeds(desc("npm:a@1.0.0"), "npm:public"),
		inFeeds(desc("npm:b@1.0.0"), "npm:old"),
	)
	next := mustAdd(t, prev, inFeeds(desc("npm:c@1.0.0"), "npm:public", "npm:new"))
	next = next.DropFeed(FeedName{Type: "npm", Name: "old"})

	d := Compare(prev, next)
	require.Equal(t, []artifact.Instance{key("npm:c@1.0.0")}, d.Added)
	require.Empty(t, d.Removed)
	require.Empty(t, d.Replaced)
	require.Equal(t, []FeedName{{Type: "npm", Name: "new"}}, d.AddedFeeds)
	require.Equal(t, []FeedName{{Type: "npm", Name: "old"}}, d.DroppedFeeds)
	require.Equal(t, []FeedName{{Type: "npm", Name: "public"}}, d.ChangedFeeds)

	require.True(t, Compare(next, next).IsEmpty())

	back := Compare(next, nil)
	require.Len(t, back.Removed, 3)
}
