// Package presentation converts package database values into the shapes
// the CLI prints.
package presentation

import (
	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/livecache"
	"github.com/zjrosen/pkgdb/internal/packagedb"
)

// PackageDTO represents one package instance for presentation
type PackageDTO struct {
	Key          string          `json:"key"`
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Savors       []string        `json:"savors,omitempty"`
	Feeds        []string        `json:"feeds"` // always present, empty for ghosts
	Ghost        bool            `json:"ghost,omitempty"`
	Consulted    []string        `json:"consulted,omitempty"`
	Dependencies []DependencyDTO `json:"dependencies"`
}

// DependencyDTO represents one dependency edge
type DependencyDTO struct {
	Key    string   `json:"key"`
	Kind   string   `json:"kind"`
	Savors []string `json:"savors,omitempty"`
	Ghost  bool     `json:"ghost,omitempty"`
}

// FeedDTO summarizes a feed
type FeedDTO struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Packages int    `json:"packages"`
}

// VersionsDTO lists the best version per quality tier
type VersionsDTO struct {
	Feed   string            `json:"feed"`
	Name   string            `json:"name"`
	Latest string            `json:"latest,omitempty"`
	Tiers  map[string]string `json:"tiers"`
}

// ResultDTO is the outcome of resolving one key
type ResultDTO struct {
	Key      string       `json:"key"`
	Status   string       `json:"status"`
	Error    string       `json:"error,omitempty"`
	Offender string       `json:"offender,omitempty"`
	Closure  []PackageDTO `json:"closure,omitempty"`
}

// DiffDTO describes a snapshot change
type DiffDTO struct {
	Event        string   `json:"event"`
	Version      int      `json:"version"`
	Added        []string `json:"added,omitempty"`
	Replaced     []string `json:"replaced,omitempty"`
	Removed      []string `json:"removed,omitempty"`
	AddedFeeds   []string `json:"added_feeds,omitempty"`
	DroppedFeeds []string `json:"dropped_feeds,omitempty"`
	ChangedFeeds []string `json:"changed_feeds,omitempty"`
}

// FromInstance converts an instance; feed membership is looked up in db.
func FromInstance(p *packagedb.Instance, db *packagedb.DB) PackageDTO {
	key := p.Key()
	dto := PackageDTO{
		Key:          key.String(),
		Type:         string(key.Type),
		Name:         key.Name,
		Version:      key.Version.String(),
		Savors:       p.Savors().Tags(),
		Feeds:        feedStrings(db.FeedsOf(key)),
		Ghost:        p.IsGhost(),
		Consulted:    p.GhostFeeds(),
		Dependencies: make([]DependencyDTO, 0, len(p.Dependencies())),
	}
	for _, ref := range p.Dependencies() {
		dto.Dependencies = append(dto.Dependencies, DependencyDTO{
			Key:    ref.Target.Key().String(),
			Kind:   ref.Kind.String(),
			Savors: ref.Savors.Tags(),
			Ghost:  ref.Target.IsGhost(),
		})
	}
	return dto
}

// FromInstances converts a list of instances.
func FromInstances(ps []*packagedb.Instance, db *packagedb.DB) []PackageDTO {
	dtos := make([]PackageDTO, len(ps))
	for i, p := range ps {
		dtos[i] = FromInstance(p, db)
	}
	return dtos
}

// Closure returns p followed by everything it reaches, each once, in
// depth-first order.
func Closure(p *packagedb.Instance, db *packagedb.DB) []PackageDTO {
	seen := make(map[artifact.Instance]bool)
	var out []PackageDTO
	var walk func(*packagedb.Instance)
	walk = func(p *packagedb.Instance) {
		if seen[p.Key()] {
			return
		}
		seen[p.Key()] = true
		out = append(out, FromInstance(p, db))
		for _, ref := range p.Dependencies() {
			walk(ref.Target)
		}
	}
	walk(p)
	return out
}

// FromResult converts a live cache result, including the resolved closure.
func FromResult(r livecache.Result, db *packagedb.DB) ResultDTO {
	dto := ResultDTO{Key: r.Key.String(), Status: r.Status.String()}
	if r.Err != nil {
		dto.Error = r.Err.Error()
	}
	if r.Offender.Valid() {
		dto.Offender = r.Offender.String()
	}
	if r.Instance != nil {
		dto.Closure = Closure(r.Instance, db)
	}
	return dto
}

// FromFeeds converts every feed of db.
func FromFeeds(db *packagedb.DB) []FeedDTO {
	feeds := db.Feeds()
	dtos := make([]FeedDTO, len(feeds))
	for i, f := range feeds {
		dtos[i] = FeedDTO{Name: f.Name().String(), Type: string(f.Name().Type), Packages: f.Len()}
	}
	return dtos
}

// FromVersions converts the quality tiers of one package.
func FromVersions(feed packagedb.FeedName, name string, qv artifact.QualityVersions) VersionsDTO {
	dto := VersionsDTO{Feed: feed.String(), Name: name, Tiers: make(map[string]string)}
	if v, ok := qv.Latest(); ok {
		dto.Latest = v.String()
	}
	for _, q := range artifact.Qualities() {
		if v, ok := qv.Get(q); ok {
			dto.Tiers[q.String()] = v.String()
		}
	}
	return dto
}

// FromDiff converts a snapshot change.
func FromDiff(event string, version int, d packagedb.Diff) DiffDTO {
	return DiffDTO{
		Event:        event,
		Version:      version,
		Added:        keyStrings(d.Added),
		Replaced:     keyStrings(d.Replaced),
		Removed:      keyStrings(d.Removed),
		AddedFeeds:   feedStrings(d.AddedFeeds),
		DroppedFeeds: feedStrings(d.DroppedFeeds),
		ChangedFeeds: feedStrings(d.ChangedFeeds),
	}
}

func keyStrings(keys []artifact.Instance) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func feedStrings(names []packagedb.FeedName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}
