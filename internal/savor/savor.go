// Package savor models build variants as tag sets. A Set is a non-empty
// combination of tags drawn from one Context, the vocabulary that all the
// sets attached to a package and to its dependency edges must share.
//
// Both types are small comparable values: two sets with the same context
// and the same tags are equal with ==, which is what the serializer relies
// on to intern them.
package savor

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Separator joins the tags of a set in its canonical string form.
const Separator = "+"

// Context is a named tag vocabulary.
type Context struct {
	name string
}

// NewContext returns the context with the given name.
func NewContext(name string) (Context, error) {
	if name == "" || strings.ContainsFunc(name, unicode.IsSpace) {
		return Context{}, fmt.Errorf("invalid savor context name %q", name)
	}
	return Context{name: name}, nil
}

// MustContext is like NewContext but panics on an invalid name.
func MustContext(name string) Context {
	c, err := NewContext(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the context name.
func (c Context) Name() string { return c.name }

// IsZero reports whether c is the zero context.
func (c Context) IsZero() bool { return c.name == "" }

func (c Context) String() string { return c.name }

// Set is a non-empty set of tags of one context. The zero Set stands for
// "no savors" and is what optional fields hold when absent.
type Set struct {
	ctx  Context
	tags string
}

// NewSet builds the set of the given tags. Duplicates are ignored and the
// order of tags does not matter. An empty tag list yields the zero Set.
func NewSet(ctx Context, tags ...string) (Set, error) {
	if ctx.IsZero() {
		return Set{}, fmt.Errorf("savor set requires a context")
	}
	if len(tags) == 0 {
		return Set{}, nil
	}
	sorted := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !validTag(tag) {
			return Set{}, fmt.Errorf("invalid savor %q in context %s", tag, ctx.name)
		}
		sorted = append(sorted, tag)
	}
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return Set{ctx: ctx, tags: strings.Join(sorted, Separator)}, nil
}

// MustSet is like NewSet but panics on error.
func MustSet(ctx Context, tags ...string) Set {
	s, err := NewSet(ctx, tags...)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse reads the canonical "a+b+c" form.
func Parse(ctx Context, s string) (Set, error) {
	if s == "" {
		return NewSet(ctx)
	}
	return NewSet(ctx, strings.Split(s, Separator)...)
}

func validTag(tag string) bool {
	return tag != "" && !strings.Contains(tag, Separator) && !strings.ContainsFunc(tag, unicode.IsSpace)
}

// IsEmpty reports whether s is the zero Set.
func (s Set) IsEmpty() bool { return s.tags == "" }

// Context returns the vocabulary s belongs to.
func (s Set) Context() Context { return s.ctx }

// Tags returns the sorted tags of s.
func (s Set) Tags() []string {
	if s.tags == "" {
		return nil
	}
	return strings.Split(s.tags, Separator)
}

// Len returns the number of tags.
func (s Set) Len() int {
	if s.tags == "" {
		return 0
	}
	return strings.Count(s.tags, Separator) + 1
}

// Contains reports whether tag is part of s.
func (s Set) Contains(tag string) bool {
	_, found := slices.BinarySearch(s.Tags(), tag)
	return found
}

// IsSubsetOf reports whether every tag of s belongs to o and both share
// the same context. The zero Set is a subset of nothing.
func (s Set) IsSubsetOf(o Set) bool {
	if s.IsEmpty() || o.IsEmpty() || s.ctx != o.ctx {
		return false
	}
	if s.tags == o.tags {
		return true
	}
	other := o.Tags()
	for _, tag := range s.Tags() {
		if _, found := slices.BinarySearch(other, tag); !found {
			return false
		}
	}
	return true
}

// Union returns the tags of both sets. They must share a context.
func (s Set) Union(o Set) (Set, error) {
	switch {
	case s.IsEmpty():
		return o, nil
	case o.IsEmpty():
		return s, nil
	case s.ctx != o.ctx:
		return Set{}, fmt.Errorf("cannot combine savors of contexts %s and %s", s.ctx, o.ctx)
	}
	return NewSet(s.ctx, append(s.Tags(), o.Tags()...)...)
}

// Intersect returns the tags common to both sets, possibly the zero Set.
func (s Set) Intersect(o Set) Set {
	if s.IsEmpty() || o.IsEmpty() || s.ctx != o.ctx {
		return Set{}
	}
	other := o.Tags()
	var common []string
	for _, tag := range s.Tags() {
		if _, found := slices.BinarySearch(other, tag); found {
			common = append(common, tag)
		}
	}
	out, _ := NewSet(s.ctx, common...)
	return out
}

// String returns the canonical form, without the context name.
func (s Set) String() string { return s.tags }
