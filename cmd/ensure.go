package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/livecache"
	"github.com/zjrosen/pkgdb/internal/presentation"
	"github.com/zjrosen/pkgdb/internal/pubsub"
)

var ensureRaw bool

var ensureCmd = &cobra.Command{
	Use:   "ensure <type:name@version>...",
	Short: "Resolve packages through the configured feeds",
	Long: `Resolve packages and their dependencies, registering whatever the
catalog is missing. Each key is printed with its dependency closure.

Dependencies no feed knows are registered as ghosts; resolving them later
replaces the ghost.

Examples:
  pkgdb ensure npm:left-pad@1.3.0
  pkgdb ensure nuget:Newtonsoft.Json@13.0.3 nuget:Serilog@3.1.1

  # Print the raw feed answers to stderr
  pkgdb ensure --raw npm:left-pad@1.3.0`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnsure,
}

func init() {
	ensureCmd.Flags().BoolVar(&ensureRaw, "raw", false, "print raw feed payloads to stderr")
	rootCmd.AddCommand(ensureCmd)
}

func runEnsure(cmd *cobra.Command, args []string) error {
	keys := make([]artifact.Instance, len(args))
	for i, arg := range args {
		k, err := artifact.ParseInstance(arg)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if ensureRaw {
		rawCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go printRaw(s.live.RawPayloads(rawCtx))
	}

	futures := make([]*livecache.Future, len(keys))
	for i, k := range keys {
		futures[i] = s.live.EnsureAsync(ctx, k)
	}
	results := make([]presentation.ResultDTO, len(keys))
	failed := 0
	for i, f := range futures {
		r := f.Wait(ctx)
		if r.Status != livecache.Resolved {
			failed++
		}
		results[i] = presentation.FromResult(r, s.cache.Current())
	}

	if err := formatter(cmd).FormatResults(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d packages not resolved", failed, len(keys))
	}
	return nil
}

func printRaw(ch <-chan pubsub.Event[livecache.RawPayload]) {
	for event := range ch {
		fmt.Fprintf(os.Stderr, "%s %s %s\n", event.Payload.Feed, event.Payload.Key, event.Payload.Data)
	}
}
