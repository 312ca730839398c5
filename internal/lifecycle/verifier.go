package lifecycle

import (
	"context"
	"errors"
)

var (
	// ErrPaymentRejected means the transaction exists but does not pay the
	// quoted amount to the payment address. The request is failed.
	ErrPaymentRejected = errors.New("payment rejected")
	// ErrPaymentPending means the transaction is not visible or not yet
	// confirmed. The request stays pending.
	ErrPaymentPending = errors.New("payment not confirmed")
)

// PaymentVerifier checks that txid paid at least amountSats to address.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, txid, address string, amountSats int64) error
}

// AcceptAllVerifier accepts every transaction id without looking at a chain.
// It keeps demo deployments working and must not guard real funds.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) VerifyPayment(context.Context, string, string, int64) error {
	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
