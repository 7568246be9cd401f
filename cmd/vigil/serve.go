package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/vigil/internal/app"
	"github.com/tphakala/vigil/internal/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine, snapshot sources and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, log, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(settings, log)
			if err != nil {
				return err
			}
			if _, err := a.LoadRules(); err != nil {
				a.Close()
				return err
			}

			log.Info("vigil starting",
				logger.String("version", app.Version),
				logger.Bool("api", settings.Server.Enabled),
				logger.String("listen", settings.Server.Listen),
				logger.String("storage", settings.Storage.Driver))
			return a.Run(ctx)
		},
	}
}
