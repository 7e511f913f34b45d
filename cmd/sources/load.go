package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
	"github.com/jonesrussell/north-cloud/rssnews/internal/feed"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

func loadCommand(deps *common.CommandDeps) *cobra.Command {
	var (
		files        []string
		dropExisting bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Register headline feeds from symbol lists",
		Long: `Reads tab separated symbol<TAB>company files and registers one headline
feed per symbol. Registering a symbol again replaces its source.

Example:
  rssnews sources load -f sp500.tsv -f nasdaq100.tsv --drop-existing`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			return runLoad(cmd.Context(), deps, files, dropExisting)
		},
	}

	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "symbol list file (repeatable)")
	cmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "remove every registered source first")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runLoad(ctx context.Context, deps *common.CommandDeps, files []string, dropExisting bool) error {
	log := deps.Logger.With(logger.String("command", "sources load"))

	stores, err := common.OpenStores(ctx, deps.Config, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	if dropExisting {
		log.Info("Dropping existing feed sources")
		if dropErr := stores.Registry.DropAll(ctx); dropErr != nil {
			return dropErr
		}
	}

	total := 0
	for _, name := range files {
		n, loadErr := loadFile(ctx, stores, name, log)
		if loadErr != nil {
			return loadErr
		}
		total += n
	}

	log.Info("Feed sources loaded", logger.Int("count", total))
	return nil
}

func loadFile(ctx context.Context, stores *common.Stores, name string, log logger.Logger) (int, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, fmt.Errorf("open source list: %w", err)
	}
	defer f.Close()

	sources, err := feed.ParseSourceList(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	for _, src := range sources {
		if regErr := stores.Registry.Register(ctx, src); regErr != nil {
			return 0, regErr
		}
		log.Debug("Registered feed source",
			logger.String("symbol", src.Symbol),
			logger.String("company", src.Company),
		)
	}

	log.Info("Processed source list", logger.String("file", name), logger.Int("count", len(sources)))
	return len(sources), nil
}
