package bitcoind

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"

	"degenmint/internal/lifecycle"
	"degenmint/internal/registry"
)

// Verifier checks a payment against the node's view of the transaction.
// The node needs txindex or the transaction in its wallet/mempool.
type Verifier struct {
	rpc              RPC
	minConfirmations uint64
	logger           logrus.FieldLogger
}

func NewVerifier(rpc RPC, minConfirmations int64, logger logrus.FieldLogger) *Verifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if minConfirmations < 0 {
		minConfirmations = 0
	}
	return &Verifier{
		rpc:              rpc,
		minConfirmations: uint64(minConfirmations),
		logger:           logger.WithField("component", "bitcoind_verifier"),
	}
}

func (v *Verifier) VerifyPayment(ctx context.Context, txid, address string, amountSats int64) error {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil || len(txid) != chainhash.MaxHashStringSize {
		return fmt.Errorf("%w: malformed payment tx id %q", registry.ErrInvalidInput, txid)
	}

	tx, err := call(ctx, func() (*btcjson.TxRawResult, error) {
		return v.rpc.GetRawTransactionVerbose(hash)
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s not seen by node", lifecycle.ErrPaymentPending, txid)
		}
		return fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}

	paid, err := paidTo(tx, address)
	if err != nil {
		return err
	}
	if int64(paid) < amountSats {
		return fmt.Errorf("%w: %s pays %d sats to %s, want %d", lifecycle.ErrPaymentRejected, txid, int64(paid), address, amountSats)
	}
	if tx.Confirmations < v.minConfirmations {
		v.logger.WithFields(logrus.Fields{
			"txid":          txid,
			"confirmations": tx.Confirmations,
			"required":      v.minConfirmations,
		}).Debug("payment awaiting confirmations")
		return fmt.Errorf("%w: %s has %d of %d confirmations", lifecycle.ErrPaymentPending, txid, tx.Confirmations, v.minConfirmations)
	}
	return nil
}

// paidTo sums the outputs of tx locked to address.
func paidTo(tx *btcjson.TxRawResult, address string) (btcutil.Amount, error) {
	var total btcutil.Amount
	for _, out := range tx.Vout {
		if !outputPays(out.ScriptPubKey, address) {
			continue
		}
		amt, err := btcutil.NewAmount(out.Value)
		if err != nil {
			return 0, fmt.Errorf("output %d value: %w", out.N, err)
		}
		total += amt
	}
	return total, nil
}

func outputPays(script btcjson.ScriptPubKeyResult, address string) bool {
	if strings.EqualFold(script.Address, address) {
		return true
	}
	for _, a := range script.Addresses {
		if strings.EqualFold(a, address) {
			return true
		}
	}
	return false
}
