package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pkgdb/internal/packagecache"
	"github.com/zjrosen/pkgdb/internal/packagedb"
)

var dropFeedCmd = &cobra.Command{
	Use:   "drop-feed <type:name>",
	Short: "Forget a feed in the catalog",
	Long: `Remove a feed from the catalog. Its packages stay cataloged, since
other packages may depend on them; they are simply no longer attributed to
the feed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := packagedb.ParseFeedName(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		if s.cache.Current().Feed(name) == nil {
			return fmt.Errorf("%w: %s", packagecache.ErrUnknownFeed, name)
		}
		db, err := s.cache.DropFeed(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dropped feed %s (catalog version %d)\n", name, db.Version())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dropFeedCmd)
}
