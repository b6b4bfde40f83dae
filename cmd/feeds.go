package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pkgdb/internal/config"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/presentation"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "List the feeds recorded in the catalog",
	Long: `List every feed that vouches for at least one cataloged package,
with the number of packages it provides.

Use the add and remove subcommands to edit the configured feeds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)
		return formatter(cmd).FormatFeeds(presentation.FromFeeds(s.cache.Current()))
	},
}

var feedsAddCmd = &cobra.Command{
	Use:   "add <type:name> <catalog-path>",
	Short: "Append a local catalog feed to the configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		feed := config.FeedConfig{Name: args[0], Path: args[1]}
		if err := config.ValidateFeeds(append(slices.Clone(cfg.Feeds), feed)); err != nil {
			return err
		}
		if err := config.AddFeed(configPath(), feed, cfg.Feeds); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added feed %s\n", feed.Name)
		return nil
	},
}

var feedsRemoveCmd = &cobra.Command{
	Use:   "remove <type:name>",
	Short: "Remove a feed from the configuration",
	Long: `Remove a feed from the configuration. The catalog still lists the
feed until drop-feed is run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := packagedb.ParseFeedName(args[0]); err != nil {
			return err
		}
		if err := config.RemoveFeed(configPath(), args[0], cfg.Feeds); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed feed %s\n", args[0])
		return nil
	},
}

func init() {
	feedsCmd.AddCommand(feedsAddCmd, feedsRemoveCmd)
	rootCmd.AddCommand(feedsCmd)
}
