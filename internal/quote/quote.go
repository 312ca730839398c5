// Package quote computes the amount a payer must transfer for a mint, including
// the network fee of the payment transaction.
package quote

import (
	"errors"
	"fmt"
	"math"
)

// Virtual sizes of a P2WPKH spend.
const (
	InputVBytes  = 68
	OutputVBytes = 31
	BaseVBytes   = 10
)

// PaymentInputs and PaymentOutputs describe the payment transaction shape:
// one funding input, the payment output and a change output.
const (
	PaymentInputs  = 1
	PaymentOutputs = 2
)

var ErrInvalidQuoteInput = errors.New("invalid quote input")

// Quote is the fee and amount breakdown for a single payment.
type Quote struct {
	SendAmountSats  int64   `json:"sendAmountSats"`
	FeeSats         int64   `json:"feeSats"`
	TotalAmountSats int64   `json:"totalAmountSats"`
	FeeRate         float64 `json:"feeRate"`
	EstimatedVBytes int     `json:"estimatedVBytes"`
}

// EstimateVBytes returns the estimated virtual size of a transaction with the
// given number of inputs and outputs.
func EstimateVBytes(inputs, outputs int) int {
	return inputs*InputVBytes + outputs*OutputVBytes + BaseVBytes
}

// Compute quotes a payment of sendAmountSats at feeRate sats/vB using the
// one-input, two-output payment shape.
func Compute(feeRate float64, sendAmountSats int64) (Quote, error) {
	if math.IsNaN(feeRate) || math.IsInf(feeRate, 0) || feeRate <= 0 {
		return Quote{}, fmt.Errorf("%w: fee rate must be a positive number, got %v", ErrInvalidQuoteInput, feeRate)
	}
	if sendAmountSats < 0 {
		return Quote{}, fmt.Errorf("%w: send amount must not be negative, got %d", ErrInvalidQuoteInput, sendAmountSats)
	}

	vbytes := EstimateVBytes(PaymentInputs, PaymentOutputs)
	fee := math.Ceil(float64(vbytes) * feeRate)
	if fee >= math.MaxInt64 || int64(fee) > math.MaxInt64-sendAmountSats {
		return Quote{}, fmt.Errorf("%w: total amount overflows", ErrInvalidQuoteInput)
	}
	feeSats := int64(fee)

	return Quote{
		SendAmountSats:  sendAmountSats,
		FeeSats:         feeSats,
		TotalAmountSats: sendAmountSats + feeSats,
		FeeRate:         feeRate,
		EstimatedVBytes: vbytes,
	}, nil
}
