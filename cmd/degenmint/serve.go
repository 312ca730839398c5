package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"degenmint/internal/idempotency"
	"degenmint/internal/server"
)

const idempotencyPurgeInterval = 15 * time.Minute

func newServeCmd(root *rootOptions) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mint HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			store, err := buildIdempotencyStore(ctx, cfg, a)
			if err != nil {
				return err
			}

			if n, err := a.svc.Recover(ctx); err != nil {
				logger.WithError(err).Error("recover paid requests")
			} else if n > 0 {
				logger.WithField("count", n).Info("re-scheduled paid requests")
			}

			api := server.NewServer(cfg, a.svc, store, server.Options{
				Metrics: a.metrics,
				Logger:  logger,
				Checks:  a.checks,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
				defer cancel()
				return api.Shutdown(shutdownCtx)
			})

			g.Go(func() error {
				idempotency.RunPurger(gctx, store, idempotencyPurgeInterval, logger)
				return nil
			})

			if withWorker && cfg.Mint.Scheduler == "asynq" {
				srv := newAsynqServer(cfg, logger)
				if err := srv.Start(a.workerMux()); err != nil {
					return err
				}
				g.Go(func() error {
					<-gctx.Done()
					srv.Shutdown()
					return nil
				})
			}

			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", false, "also process asynq finalize tasks in this process")
	return cmd
}
