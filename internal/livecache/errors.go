package livecache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/packagedb"
)

var (
	// ErrNotFound is the error of a NotFound result.
	ErrNotFound = errors.New("package not found in any feed")
	// ErrDependencyCycle is wrapped by CycleError.
	ErrDependencyCycle = errors.New("dependency cycle")
	// ErrFeedMismatch is wrapped by FeedMismatchError.
	ErrFeedMismatch = errors.New("feeds disagree")
)

// FeedMismatchError reports two feeds describing the same package
// differently. It is never reconciled.
type FeedMismatchError struct {
	Key       artifact.Instance
	Canonical string
	Other     string
	// Diff is a line diff from the canonical description to the other one.
	Diff string
}

func newMismatch(key artifact.Instance, canonicalFeed string, canonical *packagedb.Descriptor, otherFeed string, other *packagedb.Descriptor) *FeedMismatchError {
	return &FeedMismatchError{
		Key:       key,
		Canonical: canonicalFeed,
		Other:     otherFeed,
		Diff:      lineDiff(canonical.String(), other.String()),
	}
}

func (e *FeedMismatchError) Error() string {
	return fmt.Sprintf("package %s: feeds %s and %s disagree:\n%s", e.Key, e.Canonical, e.Other, e.Diff)
}

func (e *FeedMismatchError) Unwrap() error { return ErrFeedMismatch }

// lineDiff renders a unified-style diff of two short texts, one changed
// line per row.
func lineDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	ra, rb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ra, rb, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			prefix = "  "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(strings.TrimSuffix(line, "\n"))
			out.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

// CycleError reports a dependency path that leads back to itself. Path
// starts and ends with the same key.
type CycleError struct {
	Path []artifact.Instance
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}
	return fmt.Sprintf("%v: %s", ErrDependencyCycle, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrDependencyCycle }
