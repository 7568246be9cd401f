package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/vigil/internal/app"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/logger"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "vigil",
		Short:         "Rule-based alert engine",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to vigil.yaml (default: ./vigil.yaml or /etc/vigil/vigil.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}

// load reads settings and builds the process logger from them.
func (o *rootOptions) load() (*conf.Settings, logger.Logger, error) {
	settings, err := conf.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	tz, err := settings.Location()
	if err != nil {
		return nil, nil, err
	}
	return settings, logger.NewSlogLogger(os.Stderr, settings.LogLevel(), tz), nil
}
