// Package control implements the control command, which flips the polling
// and fetching switches.
package control

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
	ctl "github.com/jonesrussell/north-cloud/rssnews/internal/control"
)

const actionStatus = "status"

// Command returns the control command.
func Command(deps *common.CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "control <feed|article> <start|stop|status>",
		Short: "Start, stop or inspect the poller and fetcher loops",
		Long: `Writes the shared switch read by every running poller (feed) or fetcher
(article). Loops keep waiting while the switch holds anything other than
start or stop.

Example:
  rssnews control feed start
  rssnews control article status`,
		Args:      cobra.ExactArgs(2), //nolint:mnd // channel and action
		ValidArgs: []string{"feed", "article"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}

			key, err := ctl.KeyForChannel(args[0])
			if err != nil {
				return err
			}

			client, err := common.NewRedis(cmd.Context(), deps.Config.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			sw := ctl.NewSwitch(client, key)

			if args[1] != actionStatus {
				if setErr := sw.Set(cmd.Context(), args[1]); setErr != nil {
					return setErr
				}
			}

			value, err := sw.Value(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%q)\n", key, ctl.ParseState(value), value)
			return nil
		},
	}
}
