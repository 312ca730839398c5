package bitcoind

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// AddressIssuer hands out a fresh node wallet address per request, so each
// payment can be matched to its request by address alone.
type AddressIssuer struct {
	rpc    RPC
	label  string
	params *chaincfg.Params
}

func NewAddressIssuer(rpc RPC, label string, params *chaincfg.Params) *AddressIssuer {
	return &AddressIssuer{rpc: rpc, label: label, params: params}
}

func (a *AddressIssuer) IssueAddress(ctx context.Context) (string, error) {
	addr, err := call(ctx, func() (btcutil.Address, error) {
		return a.rpc.GetNewAddress(a.label)
	})
	if err != nil {
		return "", fmt.Errorf("getnewaddress: %w", err)
	}
	if a.params != nil && !addr.IsForNet(a.params) {
		return "", fmt.Errorf("getnewaddress: %s is not a %s address", addr.EncodeAddress(), a.params.Name)
	}
	return addr.EncodeAddress(), nil
}
