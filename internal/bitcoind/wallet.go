package bitcoind

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"degenmint/internal/client"
)

// Wallet exposes a Bitcoin Core wallet through client.Wallet so the CLI can
// run a mint end to end. The first RequestAccounts allocates the address
// that is reported from then on.
type Wallet struct {
	rpc    RPC
	label  string
	params *chaincfg.Params

	mu      sync.Mutex
	account string
}

var _ client.Wallet = (*Wallet)(nil)

func NewWallet(rpc RPC, label string, params *chaincfg.Params) *Wallet {
	return &Wallet{rpc: rpc, label: label, params: params}
}

func (w *Wallet) RequestAccounts(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.account != "" {
		return []string{w.account}, nil
	}
	addr, err := call(ctx, func() (btcutil.Address, error) {
		return w.rpc.GetNewAddress(w.label)
	})
	if err != nil {
		return nil, client.WalletError("requestAccounts", err)
	}
	w.account = addr.EncodeAddress()
	return []string{w.account}, nil
}

func (w *Wallet) GetAccounts(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.account == "" {
		return []string{}, nil
	}
	return []string{w.account}, nil
}

// GetNetwork reports the node chain with browser wallet naming: livenet,
// testnet, signet or regtest.
func (w *Wallet) GetNetwork(ctx context.Context) (string, error) {
	info, err := call(ctx, w.rpc.GetBlockChainInfo)
	if err != nil {
		return "", client.WalletError("getNetwork", err)
	}
	return networkName(info), nil
}

func networkName(info *btcjson.GetBlockChainInfoResult) string {
	switch info.Chain {
	case "main":
		return "livenet"
	case "test", "testnet4":
		return "testnet"
	default:
		return info.Chain
	}
}

func (w *Wallet) SendBitcoin(ctx context.Context, toAddress string, amountSats int64, opts client.SendOptions) (string, error) {
	if amountSats <= 0 {
		return "", client.WalletError("sendBitcoin", fmt.Errorf("amount must be positive, got %d", amountSats))
	}
	addr, err := btcutil.DecodeAddress(toAddress, w.params)
	if err != nil {
		return "", client.WalletError("sendBitcoin", fmt.Errorf("decode %q: %w", toAddress, err))
	}
	if !addr.IsForNet(w.params) {
		return "", client.WalletError("sendBitcoin", fmt.Errorf("%s is not a %s address", toAddress, w.params.Name))
	}

	if opts.FeeRate > 0 {
		if math.IsInf(opts.FeeRate, 0) || math.IsNaN(opts.FeeRate) {
			return "", client.WalletError("sendBitcoin", errors.New("invalid fee rate"))
		}
		// sat/vB to sat/kvB; rpcclient sends it as BTC/kvB
		perKVB := btcutil.Amount(math.Ceil(opts.FeeRate * 1000))
		if _, err := call(ctx, func() (struct{}, error) { return struct{}{}, w.rpc.SetTxFee(perKVB) }); err != nil {
			return "", client.WalletError("settxfee", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", client.WalletError("sendBitcoin", err)
	}
	// Once issued, sendtoaddress may broadcast, so it is waited on even if ctx
	// ends meanwhile and the caller always learns the txid.
	hash, err := w.rpc.SendToAddress(addr, btcutil.Amount(amountSats))
	if err != nil {
		return "", client.WalletError("sendBitcoin", err)
	}
	return hash.String(), nil
}
