// Package poll implements the poll command, which runs the feed pollers.
package poll

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
	"github.com/jonesrussell/north-cloud/rssnews/internal/control"
	"github.com/jonesrussell/north-cloud/rssnews/internal/dedup"
	"github.com/jonesrussell/north-cloud/rssnews/internal/engine"
	"github.com/jonesrussell/north-cloud/rssnews/internal/feed"
	"github.com/jonesrussell/north-cloud/rssnews/internal/frontier"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/queue"
	"github.com/jonesrussell/north-cloud/rssnews/internal/worker"
)

// Command returns the poll command.
func Command(deps *common.CommandDeps) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll registered feeds and enqueue new articles",
		Long: `Polls every registered feed source while the feed_updater switch reads
"start", deduplicates entries across feeds and pushes first-seen articles onto
the pending queue.

Example:
  rssnews control feed start
  rssnews poll --mode each`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			if mode != "" {
				deps.Config.Poller.Mode = mode
			}
			return run(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "worker strategy: each or all (overrides poller.mode)")

	return cmd
}

func run(parent context.Context, deps *common.CommandDeps) error {
	cfg := deps.Config
	log := deps.Logger.With(logger.String("command", "poll"))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	client, err := common.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	locks, closeLocks, err := common.NewLockFactory(cfg.Redis, client)
	if err != nil {
		return err
	}
	defer closeLocks()

	stores, err := common.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg, m := common.NewMetrics()

	filter := dedup.NewFilter(client, cfg.Redis.DedupPrefix)
	if _, warmErr := dedup.Warm(ctx, filter, stores.Articles, log); warmErr != nil {
		return warmErr
	}

	sources, err := stores.Registry.List(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return common.ErrNoSources
	}

	fetch := engine.NewCollector(cfg.Engine)
	canon := frontier.NewCanonicalizer(cfg.Poller.GatewayPrefixes, cfg.Poller.TailKeys)

	poller := feed.NewPoller(feed.Deps{
		Fetcher:       fetch,
		Canonicalizer: canon,
		Resolver:      frontier.NewGatewayResolver(fetch, canon),
		Observer:      dedup.NewGuard(filter, locks, stores.Articles, cfg.Redis.LockWait, log),
		Queue:         queue.NewProducer(client, cfg.Queue),
		Bus:           queue.NewBus(client, cfg.Queue),
		Registry:      stores.Registry,
		Metrics:       m,
		Logger:        log,
	})

	gate := control.NewGate(
		control.NewSwitch(client, control.FeedKey),
		cfg.Poller.Interval,
		cfg.Poller.PauseInterval,
		log,
	)

	strategy, err := worker.New(cfg.Poller.Mode, cfg.Poller.PoolSize, gate, log)
	if err != nil {
		return err
	}

	serverDone := common.StartServer(ctx, deps, client, reg, "poll")

	log.Info("Polling feeds",
		logger.Int("sources", len(sources)),
		logger.String("mode", cfg.Poller.Mode),
		logger.Duration("interval", cfg.Poller.Interval),
	)

	runErr := common.IgnoreCanceled(strategy.Run(ctx, sources, poller.RunTask))

	cancel()
	<-serverDone

	if runErr != nil {
		return fmt.Errorf("poll: %w", runErr)
	}
	return nil
}
