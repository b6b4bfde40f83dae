package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/pkgdb/internal/presentation"
	"github.com/zjrosen/pkgdb/internal/pubsub"
	"github.com/zjrosen/pkgdb/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the catalog file and print every change",
	Long: `Follow the package database file and print what changed each time
another pkgdb process saves it. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	w, err := watcher.New(watcher.DefaultConfig(s.cache.Path()))
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	events := s.cache.Subscribe(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Drive(ctx, s.cache) }()

	out := formatter(cmd)
	for {
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Type == pubsub.SavedEvent {
				continue
			}
			d := presentation.FromDiff(string(event.Type), event.Payload.Current.Version(), event.Payload.Diff)
			if err := out.FormatDiff(d); err != nil {
				return err
			}
		}
	}
}
