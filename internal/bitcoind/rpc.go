// Package bitcoind backs payment verification, payment addresses and the
// CLI wallet with a Bitcoin Core node over JSON-RPC.
package bitcoind

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

type Config struct {
	Host string
	User string
	Pass string
	TLS  bool
	// Wallet selects a loaded wallet, e.g. "mint" for /wallet/mint.
	Wallet string
	// Params decodes addresses returned by the node; nil means mainnet.
	Params *chaincfg.Params
}

// RPC is the part of *rpcclient.Client used by this package.
type RPC interface {
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
	GetNewAddress(account string) (btcutil.Address, error)
	GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
	GetBlockCount() (int64, error)
	SetTxFee(fee btcutil.Amount) error
	SendToAddress(address btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error)
}

func Dial(cfg Config) (*rpcclient.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("bitcoind host is required")
	}
	host := strings.TrimSuffix(cfg.Host, "/")
	if cfg.Wallet != "" {
		host += "/wallet/" + cfg.Wallet
	}
	connCfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true, // Bitcoin Core only speaks HTTP POST
		DisableTLS:   !cfg.TLS,
	}
	if cfg.Params != nil {
		connCfg.Params = cfg.Params.Name
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("bitcoind rpc: %w", err)
	}
	return client, nil
}

// Pinger reports node reachability for health checks.
type Pinger struct {
	RPC RPC
}

func (p Pinger) Ping(ctx context.Context) error {
	_, err := call(ctx, p.RPC.GetBlockCount)
	return err
}

// call runs a blocking RPC and gives up when ctx is done. The RPC itself
// keeps running in the background until the HTTP client times out.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

func isNotFound(err error) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCNoTxInfo
}
