package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// SaveFeeds replaces the feeds section of the config file. Comments and
// formatting in other sections are preserved by editing the yaml.Node tree.
func SaveFeeds(configPath string, feeds []FeedConfig) error {
	if err := ValidateFeeds(feeds); err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	feedsNode := buildFeedsNode(feeds)
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{{
				Kind: yaml.MappingNode,
				Content: []*yaml.Node{
					{Kind: yaml.ScalarNode, Value: "feeds"},
					feedsNode,
				},
			}},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return fmt.Errorf("parsing config: top level is not a mapping")
		}
		found := false
		for i := 0; i < len(root.Content)-1; i += 2 {
			if root.Content[i].Value == "feeds" {
				root.Content[i+1] = feedsNode
				found = true
				break
			}
		}
		if !found {
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: "feeds"},
				feedsNode,
			)
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// AddFeed appends a feed to the configured list and saves it. The new feed
// is consulted last.
func AddFeed(configPath string, feed FeedConfig, existing []FeedConfig) error {
	if slices.ContainsFunc(existing, func(f FeedConfig) bool { return f.Name == feed.Name }) {
		return fmt.Errorf("feed %q is already configured", feed.Name)
	}
	return SaveFeeds(configPath, append(slices.Clone(existing), feed))
}

// RemoveFeed deletes the named feed from the configured list and saves it.
func RemoveFeed(configPath string, name string, existing []FeedConfig) error {
	i := slices.IndexFunc(existing, func(f FeedConfig) bool { return f.Name == name })
	if i < 0 {
		return fmt.Errorf("feed %q is not configured", name)
	}
	return SaveFeeds(configPath, slices.Delete(slices.Clone(existing), i, i+1))
}

func buildFeedsNode(feeds []FeedConfig) *yaml.Node {
	node := &yaml.Node{
		Kind:    yaml.SequenceNode,
		Content: make([]*yaml.Node, 0, len(feeds)),
	}
	for _, f := range feeds {
		node.Content = append(node.Content, &yaml.Node{
			Kind: yaml.MappingNode,
			Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Value: "name"},
				{Kind: yaml.ScalarNode, Value: f.Name},
				{Kind: yaml.ScalarNode, Value: "path"},
				{Kind: yaml.ScalarNode, Value: f.Path},
			},
		})
	}
	return node
}

// writeAtomic writes to a temp file in the same directory, then renames.
func writeAtomic(configPath string, data []byte) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".pkgdb.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
