// Package watch implements the watch command, a live subscriber to one
// symbol's notification channel.
package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
	"github.com/jonesrussell/north-cloud/rssnews/internal/queue"
)

// Command returns the watch command.
func Command(deps *common.CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <symbol>",
		Short: "Print new articles for a symbol as pollers find them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := common.NewRedis(ctx, deps.Config.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			bus := queue.NewBus(client, deps.Config.Queue)
			sub, err := bus.Subscribe(ctx, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = sub.Close() }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %s\n", bus.Channel(args[0]))

			for {
				job, nextErr := sub.Next(ctx)
				if nextErr != nil {
					if errors.Is(nextErr, context.Canceled) || ctx.Err() != nil {
						return nil
					}
					if errors.Is(nextErr, queue.ErrMalformedJob) {
						fmt.Fprintf(cmd.ErrOrStderr(), "skipping malformed notification: %v\n", nextErr)
						continue
					}
					return nextErr
				}

				published := "-"
				if job.PublishedAt != nil {
					published = job.PublishedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%s  %s  %s\n  %s\n", job.URLHash, published, job.Title, job.CanonicalURL)
			}
		},
	}
}
