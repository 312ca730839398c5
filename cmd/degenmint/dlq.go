package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"degenmint/internal/config"
	"degenmint/internal/lifecycle"
)

func newDLQCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect finalizations that exhausted their retries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print dead letter entries, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			entries, err := lifecycle.NewDeadLetter(cfg.Service.DLQPath).List()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	})
	return cmd
}
