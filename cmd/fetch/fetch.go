// Package fetch implements the fetch command, which downloads queued articles.
package fetch

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
	"github.com/jonesrussell/north-cloud/rssnews/internal/articles"
	"github.com/jonesrussell/north-cloud/rssnews/internal/control"
	"github.com/jonesrussell/north-cloud/rssnews/internal/dedup"
	"github.com/jonesrussell/north-cloud/rssnews/internal/engine"
	"github.com/jonesrussell/north-cloud/rssnews/internal/extract"
	"github.com/jonesrussell/north-cloud/rssnews/internal/fetcher"
	"github.com/jonesrussell/north-cloud/rssnews/internal/frontier"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/queue"
)

// Command returns the fetch command.
func Command(deps *common.CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch queued articles, extract their text and store them",
		Long: `Pops pending jobs while the article_spider switch reads "start", follows
redirect documents to the article, extracts the main text and stores the
article. Extracted articles are handed to the NLP queue.

The command exits non-zero if an article is stored twice.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), deps)
		},
	}
}

func run(parent context.Context, deps *common.CommandDeps) error {
	cfg := deps.Config
	log := deps.Logger.With(logger.String("command", "fetch"))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	client, err := common.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	stores, err := common.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg, m := common.NewMetrics()

	opts := []articles.Option{articles.WithMetrics(m)}
	archiver, err := common.NewArchiver(cfg.Minio)
	if err != nil {
		return err
	}
	if archiver != nil {
		opts = append(opts, articles.WithArchiver(archiver))
	}

	persister := articles.NewPersister(
		stores.Articles,
		dedup.NewFilter(client, cfg.Redis.DedupPrefix),
		queue.NewHandoff(client, cfg.Queue),
		log,
		opts...,
	)

	engineCfg := cfg.Engine
	engineCfg.UserAgent = cfg.Fetcher.UserAgent

	w := fetcher.NewWorker(fetcher.Deps{
		Source:        queue.NewConsumer(client, cfg.Queue),
		Requeue:       queue.NewProducer(client, cfg.Queue),
		Fetcher:       engine.NewCollector(engineCfg),
		Canonicalizer: frontier.NewCanonicalizer(cfg.Poller.GatewayPrefixes, cfg.Poller.TailKeys),
		Extractor:     extract.New(),
		Persister:     persister,
		Metrics:       m,
		Logger:        log,
	}, cfg.Fetcher.Config)

	gate := control.NewGate(control.NewSwitch(client, control.ArticleKey), 0, cfg.Fetcher.PauseInterval, log)

	serverDone := common.StartServer(ctx, deps, client, reg, "fetch")

	runErr := common.IgnoreCanceled(w.Run(ctx, gate))

	cancel()
	<-serverDone

	return runErr
}
