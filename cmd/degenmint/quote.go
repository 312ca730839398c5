package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"degenmint/internal/config"
	"degenmint/internal/quote"
)

func newQuoteCmd(root *rootOptions) *cobra.Command {
	var (
		feeRate float64
		amount  int64
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Print the amount a mint payment must carry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("fee-rate") {
				feeRate = cfg.Mint.FeeRate
			}
			if !cmd.Flags().Changed("amount") {
				amount = cfg.Mint.SendAmountSats
			}
			q, err := quote.Compute(feeRate, amount)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(q)
		},
	}
	cmd.Flags().Float64Var(&feeRate, "fee-rate", 0, "fee rate in sat/vB (default from config)")
	cmd.Flags().Int64Var(&amount, "amount", 0, "send amount in sats (default from config)")
	return cmd
}
