package artifact

import "strings"

// Quality ranks a version by how stable its publisher claims it to be.
type Quality int

const (
	QualityCI Quality = iota
	QualityExploratory
	QualityPreview
	QualityReleaseCandidate
	QualityStable

	qualityCount = int(QualityStable) + 1
)

func (q Quality) String() string {
	switch q {
	case QualityCI:
		return "ci"
	case QualityExploratory:
		return "exploratory"
	case QualityPreview:
		return "preview"
	case QualityReleaseCandidate:
		return "rc"
	case QualityStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Qualities lists every quality from the least to the most stable.
func Qualities() []Quality {
	return []Quality{QualityCI, QualityExploratory, QualityPreview, QualityReleaseCandidate, QualityStable}
}

// QualityOf classifies v from its pre-release label.
func QualityOf(v Version) Quality {
	if !v.semver {
		return QualityCI
	}
	pre := strings.ToLower(v.pre)
	switch {
	case pre == "":
		return QualityStable
	case strings.HasPrefix(pre, "rc"):
		return QualityReleaseCandidate
	case strings.HasPrefix(pre, "preview"), strings.HasPrefix(pre, "pre"), strings.HasPrefix(pre, "beta"):
		return QualityPreview
	case strings.HasPrefix(pre, "alpha"), strings.HasPrefix(pre, "a"):
		return QualityExploratory
	default:
		return QualityCI
	}
}

// QualityVersions holds, for every quality q, the best known version whose
// quality is at least q. The buckets overlap: a stable release is also the
// best candidate for every lower quality until something newer shows up.
// The zero value is empty and ready to use.
type QualityVersions struct {
	best [qualityCount]Version
}

// With returns a copy of qv that also accounts for v. A bucket only changes
// when v is better than its current value.
func (qv QualityVersions) With(v Version) QualityVersions {
	if v.IsZero() {
		return qv
	}
	q := QualityOf(v)
	for i := 0; i <= int(q); i++ {
		if qv.best[i].IsZero() || v.Compare(qv.best[i]) > 0 {
			qv.best[i] = v
		}
	}
	return qv
}

// Merge folds other into qv bucket by bucket.
func (qv QualityVersions) Merge(other QualityVersions) QualityVersions {
	for i, v := range other.best {
		if v.IsZero() {
			continue
		}
		if qv.best[i].IsZero() || v.Compare(qv.best[i]) > 0 {
			qv.best[i] = v
		}
	}
	return qv
}

// Get returns the best version of at least quality q.
func (qv QualityVersions) Get(q Quality) (Version, bool) {
	if q < 0 || int(q) >= qualityCount {
		return Version{}, false
	}
	v := qv.best[q]
	return v, !v.IsZero()
}

// Latest returns the newest version regardless of quality.
func (qv QualityVersions) Latest() (Version, bool) {
	return qv.Get(QualityCI)
}

// IsEmpty reports whether no version was ever accounted for.
func (qv QualityVersions) IsEmpty() bool {
	return qv.best[QualityCI].IsZero()
}
