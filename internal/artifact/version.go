package artifact

import (
	"cmp"
	"strings"

	"github.com/coreos/go-semver/semver"
)

// Version is a parsed package version. It is comparable so that Instance
// can be used as a map key. Versions that are not semantic versions keep
// their raw text and sort below every semantic version.
type Version struct {
	raw    string
	semver bool
	major  int64
	minor  int64
	patch  int64
	pre    string
}

// ParseVersion parses s. It never fails: a version that is not a semantic
// version is kept as an opaque, ordinally-compared string. One- and
// two-part numeric cores ("1", "4.2") are padded to three parts.
func ParseVersion(s string) Version {
	v := Version{raw: s}
	if s == "" {
		return v
	}
	sv, err := semver.NewVersion(padVersion(s))
	if err != nil {
		return v
	}
	v.semver = true
	v.major, v.minor, v.patch = sv.Major, sv.Minor, sv.Patch
	v.pre = string(sv.PreRelease)
	return v
}

func padVersion(s string) string {
	core, suffix := s, ""
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		core, suffix = s[:i], s[i:]
	}
	switch strings.Count(core, ".") {
	case 0:
		core += ".0.0"
	case 1:
		core += ".0"
	}
	return core + suffix
}

// IsZero reports whether v is the empty version.
func (v Version) IsZero() bool { return v.raw == "" }

// IsSemVer reports whether v parsed as a semantic version.
func (v Version) IsSemVer() bool { return v.semver }

// PreRelease returns the pre-release label, empty for releases and for
// non-semantic versions.
func (v Version) PreRelease() string { return v.pre }

func (v Version) String() string { return v.raw }

func (v Version) sem() semver.Version {
	return semver.Version{Major: v.major, Minor: v.minor, Patch: v.patch, PreRelease: semver.PreRelease(v.pre)}
}

// Compare orders versions by ascending precedence. Build metadata does not
// change precedence, so equal-precedence versions fall back to comparing
// their raw text to keep the order total.
func (v Version) Compare(o Version) int {
	switch {
	case v.semver && o.semver:
		if c := v.sem().Compare(o.sem()); c != 0 {
			return c
		}
	case v.semver:
		return 1
	case o.semver:
		return -1
	}
	return cmp.Compare(v.raw, o.raw)
}
