package packagedb

import (
	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/savor"
)

// DependencyKind describes how a package uses one of its dependencies.
type DependencyKind uint8

const (
	// KindNone is the zero kind; it is never valid on an edge.
	KindNone DependencyKind = iota
	KindTransitive
	KindPrivate
	KindDevelopment
	KindBuild
)

func (k DependencyKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransitive:
		return "transitive"
	case KindPrivate:
		return "private"
	case KindDevelopment:
		return "development"
	case KindBuild:
		return "build"
	default:
		return "unknown"
	}
}

// Valid reports whether k can label a dependency edge.
func (k DependencyKind) Valid() bool {
	return k > KindNone && k <= KindBuild
}

// ParseDependencyKind is the inverse of DependencyKind.String.
func ParseDependencyKind(s string) (DependencyKind, bool) {
	for k := KindNone; k <= KindBuild; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindNone, false
}

// Reference is a dependency edge. Target is always an instance that existed
// before the owner was built, which keeps the graph acyclic.
type Reference struct {
	Target *Instance
	Kind   DependencyKind
	// Savors restricts the edge to some variants of the owner. The zero Set
	// means the edge applies to all of them.
	Savors savor.Set
}

// Instance is an immutable node of the dependency graph. Instances are only
// built by DB.Add; everything reachable from one is frozen.
type Instance struct {
	key    artifact.Instance
	savors savor.Set
	deps   []Reference

	ghost     bool
	consulted []string
}

// Key returns the identity of the instance.
func (p *Instance) Key() artifact.Instance { return p.key }

// Savors returns the variant tags of the instance, possibly empty.
func (p *Instance) Savors() savor.Set { return p.savors }

// Dependencies returns the edges in declaration order. The slice is shared
// and must not be modified.
func (p *Instance) Dependencies() []Reference { return p.deps }

// IsGhost reports whether the instance is a placeholder for a package that
// no feed could provide.
func (p *Instance) IsGhost() bool { return p.ghost }

// GhostFeeds returns the feeds that were consulted before the ghost was
// created. It is empty for real instances.
func (p *Instance) GhostFeeds() []string { return p.consulted }

// Compare orders instances by key.
func (p *Instance) Compare(o *Instance) int { return p.key.Compare(o.key) }

func (p *Instance) String() string {
	if p.ghost {
		return p.key.String() + " (ghost)"
	}
	return p.key.String()
}

// Descriptor returns the descriptor that would rebuild p, with feeds set to
// the given names.
func (p *Instance) Descriptor(feeds ...string) Descriptor {
	d := Descriptor{
		Key:    p.key,
		Savors: p.savors,
		Feeds:  feeds,
		Ghost:  p.ghost,
	}
	if p.ghost {
		d.Consulted = append([]string(nil), p.consulted...)
	}
	for _, ref := range p.deps {
		d.Dependencies = append(d.Dependencies, DependencyDescriptor{
			Target: ref.Target.key,
			Kind:   ref.Kind,
			Savors: ref.Savors,
		})
	}
	return d
}
