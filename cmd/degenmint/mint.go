package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"degenmint/internal/bitcoind"
	"degenmint/internal/client"
	"degenmint/internal/config"
	"degenmint/internal/hmacauth"
	"degenmint/internal/mintapi"
)

func newAPIClient(cfg *config.AppConfig) *client.APIClient {
	return client.NewAPIClient(
		cfg.Poller.BaseURL,
		&http.Client{Timeout: cfg.Poller.RequestTimeout},
		&hmacauth.Signer{Secret: cfg.Auth.HMACSecret},
	)
}

func newMintCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mint",
		Short: "Create, pay and follow one inscription using the bitcoind wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			params, err := cfg.NetworkParams()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rpc, err := dialBitcoind(cfg, params)
			if err != nil {
				return err
			}
			defer rpc.Shutdown()

			api := newAPIClient(cfg)
			poller := client.NewPoller(api, client.PollerConfig{
				MaxErrors:      cfg.Poller.MaxErrors,
				InitialBackoff: cfg.Poller.InitialBackoff,
				MaxBackoff:     cfg.Poller.MaxBackoff,
				Multiplier:     2,
				OnError: func(err error) {
					logger.WithError(err).Error("verification polling stopped")
				},
			}, logger)
			wallet := bitcoind.NewWallet(rpc, cfg.Bitcoind.Label, params)
			flow := client.NewFlow(wallet, api, poller, cfg.Poller.Interval, logger).
				WithWalletWatch(cfg.Poller.Interval)

			out := cmd.OutOrStdout()
			res, err := flow.Run(ctx, func(resp mintapi.VerifyResponse) {
				fmt.Fprintf(out, "%s: %s\n", resp.Status, resp.Message)
			})
			if err != nil {
				if res.PaymentTxID != "" {
					logger.WithFields(logrus.Fields{
						"request_id":    res.Request.RequestID,
						"payment_tx_id": res.PaymentTxID,
					}).Warn("payment was sent; resume with degenmint status")
				}
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Show the state of an inscription request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			status, err := newAPIClient(cfg).Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}
