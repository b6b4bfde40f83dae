package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/presentation"
)

var listGhosts bool

var listCmd = &cobra.Command{
	Use:   "list [type[:name]]",
	Short: "List cataloged packages",
	Long: `List packages in the catalog, optionally restricted to one artifact
type or one named artifact. Versions of an artifact are listed newest first.

Examples:
  pkgdb list
  pkgdb list npm
  pkgdb list nuget:Newtonsoft.Json
  pkgdb list --ghosts
  pkgdb list npm | jq '.[].key'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listGhosts, "ghosts", false, "only list ghost placeholders")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	db := s.cache.Current()
	pkgs, err := selectPackages(db, args)
	if err != nil {
		return err
	}
	if listGhosts {
		ghosts := pkgs[:0:0]
		for _, p := range pkgs {
			if p.IsGhost() {
				ghosts = append(ghosts, p)
			}
		}
		pkgs = ghosts
	}
	return formatter(cmd).FormatPackages(presentation.FromInstances(pkgs, db))
}

func selectPackages(db *packagedb.DB, args []string) ([]*packagedb.Instance, error) {
	if len(args) == 0 {
		return db.Store().All(), nil
	}
	if !strings.Contains(args[0], ":") {
		t := artifact.Type(args[0])
		if !t.Valid() {
			return nil, fmt.Errorf("invalid artifact type %q", args[0])
		}
		return db.ByType(t), nil
	}
	a, err := artifact.ParseArtifact(args[0])
	if err != nil {
		return nil, err
	}
	return db.ByArtifact(a), nil
}
