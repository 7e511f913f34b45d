package sources

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

func listCommand(deps *common.CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered feed sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}

			stores, err := common.OpenStores(cmd.Context(), deps.Config, deps.Logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			sources, err := stores.Registry.List(cmd.Context())
			if err != nil {
				return err
			}

			renderTable(cmd.OutOrStdout(), sources)
			return nil
		},
	}
}

// renderTable writes one row per source with its last update time.
func renderTable(out io.Writer, sources []*domain.FeedSource) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Symbol", "Company", "Updated", "URL"})
	for _, src := range sources {
		updated := "-"
		if src.LastUpdated != nil {
			updated = src.LastUpdated.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{src.Symbol, src.Company, updated, src.FeedURL})
	}
	t.AppendFooter(table.Row{"Total", len(sources), "", ""})

	t.Render()
}
