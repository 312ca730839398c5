package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process asynq finalize tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Mint.Scheduler != "asynq" {
				return errors.New("worker requires mint.scheduler=asynq")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			srv := newAsynqServer(cfg, logger)
			logger.WithField("queue", cfg.Redis.Queue).Info("starting asynq listener")
			if err := srv.Start(a.workerMux()); err != nil {
				return err
			}
			<-ctx.Done()
			srv.Shutdown()
			return nil
		},
	}
}
