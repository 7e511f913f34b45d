// Package cmd implements the rssnews command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/rssnews/cmd/common"
	"github.com/jonesrussell/north-cloud/rssnews/cmd/control"
	"github.com/jonesrussell/north-cloud/rssnews/cmd/fetch"
	"github.com/jonesrussell/north-cloud/rssnews/cmd/poll"
	"github.com/jonesrussell/north-cloud/rssnews/cmd/sources"
	"github.com/jonesrussell/north-cloud/rssnews/cmd/watch"
	"github.com/jonesrussell/north-cloud/rssnews/internal/config"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	var (
		cfgFile string
		debug   bool
	)

	deps := &common.CommandDeps{Version: Version}

	root := &cobra.Command{
		Use:           "rssnews",
		Short:         "Ticker news feed poller and article fetcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(viper.New(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if debug {
				cfg.Logger.Level = "debug"
				cfg.Logger.Development = true
			}

			log, err := logger.New(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			deps.Config = cfg
			deps.Logger = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if deps.Logger != nil {
				_ = deps.Logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or ./config/config.yaml)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rssnews version %s\n", Version)
		},
	})

	root.AddCommand(poll.Command(deps))
	root.AddCommand(fetch.Command(deps))
	root.AddCommand(control.Command(deps))
	root.AddCommand(sources.Command(deps))
	root.AddCommand(watch.Command(deps))

	return root
}
