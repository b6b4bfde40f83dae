package packagedb

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/zjrosen/pkgdb/internal/artifact"
)

// FeedName is the typed name of a feed: the artifact type it serves and a
// name unique among feeds of that type. Its text form is "type:name".
type FeedName struct {
	Type artifact.Type
	Name string
}

// ParseFeedName parses the "type:name" form.
func ParseFeedName(s string) (FeedName, error) {
	typ, name, ok := strings.Cut(s, ":")
	f := FeedName{Type: artifact.Type(typ), Name: name}
	if !ok || !f.Valid() {
		return FeedName{}, fmt.Errorf("invalid feed name %q: expected <type>:<name>", s)
	}
	return f, nil
}

// Valid reports whether f is well formed.
func (f FeedName) Valid() bool {
	return f.Type.Valid() && f.Name != "" && !strings.ContainsFunc(f.Name, func(r rune) bool {
		return r == ':' || unicode.IsSpace(r)
	})
}

func (f FeedName) String() string {
	return string(f.Type) + ":" + f.Name
}

// Compare orders feed names by type, then name.
func (f FeedName) Compare(o FeedName) int {
	return artifact.New(f.Type, f.Name).Compare(artifact.New(o.Type, o.Name))
}

// Feed is the subset of a database's instances that one source vouches
// for. Like DB, a Feed never changes once built.
type Feed struct {
	name  FeedName
	store Store
}

// Name returns the typed feed name.
func (f *Feed) Name() FeedName { return f.name }

// Store returns the feed's instances.
func (f *Feed) Store() Store { return f.store }

// Len returns the number of instances in the feed.
func (f *Feed) Len() int { return f.store.Len() }

// Contains reports whether the feed holds key.
func (f *Feed) Contains(key artifact.Instance) bool {
	return f.store.Find(key) != nil
}

// AvailableVersions returns the best known version of the named artifact
// for every quality tier.
func (f *Feed) AvailableVersions(name string) artifact.QualityVersions {
	var qv artifact.QualityVersions
	for _, p := range f.store.ByArtifact(artifact.New(f.name.Type, name)) {
		qv = qv.Merge(artifact.QualityVersions{}.With(p.key.Version))
	}
	return qv
}
