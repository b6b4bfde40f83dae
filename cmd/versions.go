package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/presentation"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <type:feed> <name>",
	Short: "Show the best cataloged version per quality tier",
	Long: `Show, for one package name in one feed, the newest cataloged version
of each quality tier: stable, rc, preview, exploratory and ci. A tier falls
back to a more stable version when nothing newer exists.

Examples:
  pkgdb versions npm:public left-pad
  pkgdb versions nuget:local Core --text`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := packagedb.ParseFeedName(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		qv, err := s.cache.AvailableVersions(ctx, feed, args[1])
		if err != nil {
			return err
		}
		return formatter(cmd).FormatVersions(presentation.FromVersions(feed, args[1], qv))
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}
