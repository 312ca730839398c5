package main

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"degenmint/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "degenmint",
		Short: "Pay-to-inscribe mint service and client.",
		Long: `degenmint quotes, tracks and finalizes Bitcoin inscription requests.

A request is created for a wallet address, paid to the returned payment
address and then verified; once the payment is accepted the inscription is
finalized in the background by the in-process scheduler or an asynq worker.

Configuration is read from degenmint.yaml (or --config) and DEGENMINT_*
environment variables, e.g. DEGENMINT_MINT_FEE_RATE=2.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newQuoteCmd(opts),
		newMintCmd(opts),
		newStatusCmd(opts),
		newDLQCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.AppConfig, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Level).Warn("unknown log level, using info")
	}
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
