// Package artifact defines the identity of versioned packages: an artifact
// type ("npm", "nuget"), a named artifact of that type, and a specific
// version of it. It also provides the total order used by every sorted
// structure in pkgdb: type, then name, then version from newest to oldest.
package artifact

import (
	"cmp"
	"fmt"
	"strings"
	"unicode"
)

// Type identifies a family of packages served by the same kind of feed.
type Type string

// Valid reports whether t can be used as an artifact type.
func (t Type) Valid() bool {
	return t != "" && !strings.ContainsFunc(string(t), func(r rune) bool {
		return r == ':' || r == '@' || unicode.IsSpace(r)
	})
}

func (t Type) String() string { return string(t) }

// Artifact is a typed package name, independent of any version.
type Artifact struct {
	Type Type
	Name string
}

// New returns the artifact of the given type and name.
func New(t Type, name string) Artifact {
	return Artifact{Type: t, Name: name}
}

// Valid reports whether both the type and the name are usable.
func (a Artifact) Valid() bool {
	return a.Type.Valid() && a.Name != "" && !strings.ContainsFunc(a.Name, unicode.IsSpace)
}

// WithVersion returns the instance of a at version v.
func (a Artifact) WithVersion(v Version) Instance {
	return Instance{Artifact: a, Version: v}
}

// Compare orders artifacts by type, then by name. Both are compared
// ordinally.
func (a Artifact) Compare(b Artifact) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func (a Artifact) String() string {
	return string(a.Type) + ":" + a.Name
}

// Instance is an artifact at a specific version.
type Instance struct {
	Artifact
	Version Version
}

// NewInstance is a shorthand for New(t, name).WithVersion(ParseVersion(version)).
func NewInstance(t Type, name, version string) Instance {
	return Instance{Artifact: New(t, name), Version: ParseVersion(version)}
}

// Valid reports whether the artifact is valid and the version is set.
func (i Instance) Valid() bool {
	return i.Artifact.Valid() && !i.Version.IsZero()
}

// Compare implements the total order: type, name, then version descending
// so that the newest version of an artifact comes first.
func (i Instance) Compare(o Instance) int {
	if c := i.Artifact.Compare(o.Artifact); c != 0 {
		return c
	}
	return o.Version.Compare(i.Version)
}

func (i Instance) String() string {
	return i.Artifact.String() + "@" + i.Version.String()
}

// ParseInstance parses the "type:name@version" form produced by
// Instance.String. The name may itself contain '@' (scoped npm packages),
// so the version starts after the last one.
func ParseInstance(s string) (Instance, error) {
	typ, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Instance{}, fmt.Errorf("invalid artifact instance %q: missing type", s)
	}
	at := strings.LastIndexByte(rest, '@')
	if at <= 0 {
		return Instance{}, fmt.Errorf("invalid artifact instance %q: missing version", s)
	}
	inst := NewInstance(Type(typ), rest[:at], rest[at+1:])
	if !inst.Valid() {
		return Instance{}, fmt.Errorf("invalid artifact instance %q", s)
	}
	return inst, nil
}

// ParseArtifact parses the "type:name" form produced by Artifact.String.
func ParseArtifact(s string) (Artifact, error) {
	typ, name, ok := strings.Cut(s, ":")
	a := New(Type(typ), name)
	if !ok || !a.Valid() {
		return Artifact{}, fmt.Errorf("invalid artifact %q", s)
	}
	return a, nil
}
