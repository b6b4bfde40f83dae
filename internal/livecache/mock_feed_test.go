package livecache_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/packagedb"
)

type mockFeed struct {
	mock.Mock
	name string
	typ  artifact.Type
}

func newMockFeed(name string) *mockFeed {
	name2, err := packagedb.ParseFeedName(name)
	if err != nil {
		panic(err)
	}
	return &mockFeed{name: name, typ: name2.Type}
}

func (m *mockFeed) Name() string                { return m.name }
func (m *mockFeed) ArtifactType() artifact.Type { return m.typ }

func (m *mockFeed) PackageInfo(ctx context.Context, key artifact.Instance) (*packagedb.Descriptor, error) {
	args := m.Called(ctx, key)
	desc, _ := args.Get(0).(*packagedb.Descriptor)
	return desc, args.Error(1)
}

// serves makes the feed answer key with desc, listing itself as the feed.
func (m *mockFeed) serves(desc packagedb.Descriptor) *mock.Call {
	desc.Feeds = []string{m.name}
	return m.On("PackageInfo", mock.Anything, desc.Key).Return(&desc, nil)
}

func (m *mockFeed) lacks(key artifact.Instance) *mock.Call {
	return m.On("PackageInfo", mock.Anything, key).Return(nil, nil)
}
