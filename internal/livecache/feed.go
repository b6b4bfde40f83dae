package livecache

import (
	"context"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/pubsub"
)

// Feed is a remote source of package descriptors for one artifact type.
//
// PackageInfo returns (nil, nil) when the feed does not know the package.
// A returned descriptor lists the feed's own name in Feeds. Implementations
// must be safe for concurrent use and should honor ctx cancellation.
type Feed interface {
	// Name is the feed's typed name, "type:name".
	Name() string
	ArtifactType() artifact.Type
	PackageInfo(ctx context.Context, key artifact.Instance) (*packagedb.Descriptor, error)
}

// RawPayload is the undecoded answer a feed received for one package.
// Data is shared between subscribers and must not be modified.
type RawPayload struct {
	Feed string
	Key  artifact.Instance
	Data []byte
}

// PayloadPublisher is implemented by feeds that expose their raw answers.
type PayloadPublisher interface {
	Payloads() pubsub.Subscriber[RawPayload]
}
