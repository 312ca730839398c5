package main

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"degenmint/internal/bitcoind"
	"degenmint/internal/config"
	"degenmint/internal/idempotency"
	"degenmint/internal/lifecycle"
	"degenmint/internal/metrics"
	"degenmint/internal/minter"
	"degenmint/internal/registry"
	"degenmint/internal/server"
)

// app holds the wired service graph shared by serve and worker.
type app struct {
	metrics *metrics.Registry
	svc     *lifecycle.Service
	timer   *lifecycle.TimerScheduler
	checks  []server.Check
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Username: cfg.User,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func retryPolicy(cfg config.RetryConfig) lifecycle.RetryPolicy {
	return lifecycle.RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Multiplier:     cfg.BackoffMultiplier,
	}
}

func dialBitcoind(cfg *config.AppConfig, params *chaincfg.Params) (*rpcclient.Client, error) {
	return bitcoind.Dial(bitcoind.Config{
		Host:   cfg.Bitcoind.Host,
		User:   cfg.Bitcoind.User,
		Pass:   cfg.Bitcoind.Pass,
		TLS:    cfg.Bitcoind.TLS,
		Wallet: cfg.Bitcoind.Wallet,
		Params: params,
	})
}

func buildApp(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (_ *app, err error) {
	params, err := cfg.NetworkParams()
	if err != nil {
		return nil, err
	}
	a := &app{metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var rpc *rpcclient.Client
	if cfg.Mint.AddressSource == "bitcoind" || cfg.Mint.Verifier == "bitcoind" {
		if rpc, err = dialBitcoind(cfg, params); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rpc.Shutdown)
		a.checks = append(a.checks, server.Check{Name: "bitcoind", Ping: bitcoind.Pinger{RPC: rpc}.Ping})
	}

	var store registry.Store
	switch cfg.Mint.Store {
	case "postgres":
		pg, err := registry.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("registry store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.checks = append(a.checks, server.Check{Name: "database", Ping: pg.Ping})
		store = pg
	default:
		store = registry.NewMemoryStore()
	}

	var issuer registry.AddressIssuer
	switch cfg.Mint.AddressSource {
	case "bitcoind":
		issuer = bitcoind.NewAddressIssuer(rpc, cfg.Bitcoind.Label, params)
	default:
		static, err := registry.NewStaticAddressIssuer(cfg.Mint.PaymentAddress, params)
		if err != nil {
			return nil, err
		}
		logger.WithField("payment_address", cfg.Mint.PaymentAddress).
			Warn("every request shares one static payment address; use mint.address_source=bitcoind in production")
		issuer = static
	}

	reg, err := registry.New(store, issuer, params, registry.Policy{
		SendAmountSats: cfg.Mint.SendAmountSats,
		FeeRate:        cfg.Mint.FeeRate,
	}, logger)
	if err != nil {
		return nil, err
	}

	var verifier lifecycle.PaymentVerifier
	if cfg.Mint.Verifier == "bitcoind" {
		verifier = bitcoind.NewVerifier(rpc, cfg.Mint.MinConfirmations, logger)
	} else {
		logger.Warn("payment verification disabled; any transaction id is accepted")
	}

	mint, err := buildMinter(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	var scheduler lifecycle.Scheduler
	switch cfg.Mint.Scheduler {
	case "asynq":
		client := asynq.NewClient(redisOpt(cfg.Redis))
		a.closers = append(a.closers, func() { _ = client.Close() })
		scheduler = lifecycle.NewAsynqScheduler(client, cfg.Redis.Queue, retryPolicy(cfg.Retry), logger)
	default:
		a.timer = lifecycle.NewTimerScheduler(retryPolicy(cfg.Retry), logger)
		a.closers = append(a.closers, a.timer.Stop)
		scheduler = a.timer
	}

	a.svc, err = lifecycle.NewService(reg, verifier, mint, scheduler, lifecycle.Options{
		FinalizeDelay: cfg.Mint.FinalizeDelay,
		DeadLetter:    lifecycle.NewDeadLetter(cfg.Service.DLQPath),
		Metrics:       a.metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	if a.timer != nil {
		a.timer.SetHandler(a.svc.ProcessFinalize)
	}
	return a, nil
}

func buildMinter(ctx context.Context, cfg *config.AppConfig, a *app) (minter.Client, error) {
	if cfg.Minter.Kind != "eth" {
		return minter.FakeClient{}, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	eth, err := minter.NewEthClient(dialCtx, minter.EthClientConfig{
		RPCURL:          cfg.Minter.RPCURL,
		PrivateKeyHex:   cfg.Minter.PrivateKey,
		ContractAddress: cfg.Minter.ContractAddress,
		ReceiptTimeout:  cfg.Minter.ReceiptTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("minter: %w", err)
	}
	a.closers = append(a.closers, eth.Close)
	a.checks = append(a.checks, server.Check{Name: "minter", Ping: eth.Ping})
	return eth, nil
}

func buildIdempotencyStore(ctx context.Context, cfg *config.AppConfig, a *app) (idempotency.Store, error) {
	switch cfg.Service.IdempotencyStore {
	case "postgres":
		pg, err := idempotency.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("idempotency store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	case "file":
		return idempotency.NewFileStore(cfg.Service.IdempotencyStorePath)
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

func newAsynqServer(cfg *config.AppConfig, logger *logrus.Logger) *asynq.Server {
	concurrency := cfg.Redis.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	queue := cfg.Redis.Queue
	if queue == "" {
		queue = "default"
	}
	return asynq.NewServer(redisOpt(cfg.Redis), asynq.Config{
		Logger:      logger,
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 10,
		},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return retryPolicy(cfg.Retry).Backoff(n + 1)
		},
	})
}

func (a *app) workerMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(lifecycle.TypeFinalizeInscription, a.svc.HandleFinalizeTask)
	return mux
}
