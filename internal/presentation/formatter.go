package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	text   bool

	key   lipgloss.Style
	ghost lipgloss.Style
	muted lipgloss.Style
	fail  lipgloss.Style
}

// NewFormatter creates a JSON formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{writer: writer}
}

// NewTextFormatter creates a human-readable formatter. Without color the
// output is plain ASCII whatever the terminal supports.
func NewTextFormatter(writer io.Writer, color bool) *Formatter {
	r := lipgloss.NewRenderer(writer)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Formatter{
		writer: writer,
		text:   true,
		key:    r.NewStyle().Bold(true),
		ghost:  r.NewStyle().Foreground(lipgloss.Color("#D08770")).Italic(true),
		muted:  r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("#BF616A")).Bold(true),
	}
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatPackages prints packages with their dependencies
func (f *Formatter) FormatPackages(pkgs []PackageDTO) error {
	if !f.text {
		return f.encode(pkgs)
	}
	var b strings.Builder
	for _, p := range pkgs {
		f.writePackage(&b, p)
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

func (f *Formatter) writePackage(b *strings.Builder, p PackageDTO) {
	b.WriteString(f.key.Render(p.Key))
	if len(p.Savors) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(p.Savors, ", "))
	}
	switch {
	case p.Ghost:
		b.WriteString(" " + f.ghost.Render("ghost"))
		if len(p.Consulted) > 0 {
			b.WriteString(" " + f.muted.Render("asked "+strings.Join(p.Consulted, ", ")))
		}
	case len(p.Feeds) > 0:
		b.WriteString(" " + f.muted.Render(strings.Join(p.Feeds, ", ")))
	}
	b.WriteByte('\n')

	for i, d := range p.Dependencies {
		branch := "├─"
		if i == len(p.Dependencies)-1 {
			branch = "└─"
		}
		target := d.Key
		if d.Ghost {
			target = f.ghost.Render(target)
		}
		fmt.Fprintf(b, "  %s %s %s", branch, target, f.muted.Render(d.Kind))
		if len(d.Savors) > 0 {
			fmt.Fprintf(b, " [%s]", strings.Join(d.Savors, ", "))
		}
		b.WriteByte('\n')
	}
}

// FormatResults prints resolution outcomes
func (f *Formatter) FormatResults(results []ResultDTO) error {
	if !f.text {
		return f.encode(results)
	}
	var b strings.Builder
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(&b, "%s %s: %s\n", f.fail.Render(r.Status), r.Key, r.Error)
			continue
		}
		for _, p := range r.Closure {
			f.writePackage(&b, p)
		}
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatFeeds prints feed summaries
func (f *Formatter) FormatFeeds(feeds []FeedDTO) error {
	if !f.text {
		return f.encode(feeds)
	}
	width := 0
	for _, feed := range feeds {
		width = max(width, len(feed.Name))
	}
	var b strings.Builder
	for _, feed := range feeds {
		fmt.Fprintf(&b, "%s %s\n", f.key.Render(fmt.Sprintf("%-*s", width, feed.Name)), f.muted.Render(fmt.Sprintf("%d packages", feed.Packages)))
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatVersions prints quality tiers from the most stable down
func (f *Formatter) FormatVersions(v VersionsDTO) error {
	if !f.text {
		return f.encode(v)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", f.key.Render(v.Name), f.muted.Render(v.Feed))
	for _, tier := range []string{"stable", "rc", "preview", "exploratory", "ci"} {
		if version, ok := v.Tiers[tier]; ok {
			fmt.Fprintf(&b, "  %-12s %s\n", tier, version)
		}
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatDiff prints one snapshot change
func (f *Formatter) FormatDiff(d DiffDTO) error {
	if !f.text {
		encoder := json.NewEncoder(f.writer)
		return encoder.Encode(d)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %d\n", f.key.Render(d.Event), d.Version)
	for _, line := range []struct {
		sign string
		keys []string
	}{
		{"+", d.Added}, {"~", d.Replaced}, {"-", d.Removed},
		{"+feed", d.AddedFeeds}, {"-feed", d.DroppedFeeds}, {"~feed", d.ChangedFeeds},
	} {
		for _, k := range line.keys {
			fmt.Fprintf(&b, "  %s %s\n", line.sign, k)
		}
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}
