package packagedb

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/savor"
)

// Descriptor is the plain-data description of a package, as produced by a
// feed and consumed by DB.Add.
type Descriptor struct {
	Key artifact.Instance
	// Feeds lists the typed names of the feeds that vouch for the package.
	Feeds        []string
	Savors       savor.Set
	Dependencies []DependencyDescriptor

	// Ghost marks a placeholder for a package no feed could provide.
	// Consulted lists the feeds that were asked.
	Ghost     bool
	Consulted []string
}

// DependencyDescriptor describes one dependency edge by key.
type DependencyDescriptor struct {
	Target artifact.Instance
	Kind   DependencyKind
	Savors savor.Set
}

// NewGhost returns the placeholder descriptor for key.
func NewGhost(key artifact.Instance, consulted []string) Descriptor {
	return Descriptor{Key: key, Ghost: true, Consulted: slices.Clone(consulted)}
}

// Validate checks the descriptor on its own, without looking at any
// database. All problems are reported.
func (d *Descriptor) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, &ValidationError{Key: d.Key, Reason: fmt.Sprintf(format, args...)})
	}
	if !d.Key.Valid() {
		invalid("invalid key")
	}
	if d.Ghost {
		if len(d.Feeds) > 0 {
			invalid("a ghost cannot belong to feeds")
		}
		if len(d.Dependencies) > 0 {
			invalid("a ghost cannot have dependencies")
		}
		if !d.Savors.IsEmpty() {
			invalid("a ghost cannot have savors")
		}
	}
	for _, f := range d.Feeds {
		name, perr := ParseFeedName(f)
		if perr != nil {
			invalid("%v", perr)
			continue
		}
		if name.Type != d.Key.Type {
			invalid("feed %s serves %s packages", f, name.Type)
		}
	}
	for _, dep := range d.Dependencies {
		if !dep.Kind.Valid() {
			invalid("dependency %s has kind %s", dep.Target, dep.Kind)
		}
		if !dep.Target.Valid() {
			invalid("dependency %q is invalid", dep.Target)
		}
		if dep.Target == d.Key {
			invalid("package depends on itself")
		}
		if !dep.Savors.IsEmpty() && !dep.Savors.IsSubsetOf(d.Savors) {
			invalid("dependency %s savors %q are not a subset of package savors %q", dep.Target, dep.Savors, d.Savors)
		}
	}
	return err
}

// Equal reports whether two descriptors describe the same content: key,
// savors, ghost flag and dependencies, in order. Feeds are not compared
// since every feed only vouches for itself.
func (d *Descriptor) Equal(o *Descriptor) bool {
	return d.Key == o.Key &&
		d.Savors == o.Savors &&
		d.Ghost == o.Ghost &&
		slices.Equal(d.Dependencies, o.Dependencies)
}

// String renders the content compared by Equal, one fact per line.
func (d *Descriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n", d.Key)
	if d.Ghost {
		b.WriteString("ghost\n")
	}
	if !d.Savors.IsEmpty() {
		fmt.Fprintf(&b, "savors %s:%s\n", d.Savors.Context(), d.Savors)
	}
	for _, dep := range d.Dependencies {
		fmt.Fprintf(&b, "depends %s %s", dep.Target, dep.Kind)
		if !dep.Savors.IsEmpty() {
			fmt.Fprintf(&b, " [%s]", dep.Savors)
		}
		b.WriteString("\n")
	}
	return b.String()
}
