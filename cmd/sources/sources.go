// Package sources implements the sources command for managing the feed registry.
package sources

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
)

// Command returns the sources command and its subcommands.
func Command(deps *common.CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage registered feed sources",
	}

	cmd.AddCommand(loadCommand(deps))
	cmd.AddCommand(listCommand(deps))

	return cmd
}
