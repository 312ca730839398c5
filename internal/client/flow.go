package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"degenmint/internal/mintapi"
)

type FlowStage string

const (
	StageConnect FlowStage = "connect"
	StageCreate  FlowStage = "create"
	StagePay     FlowStage = "pay"
	StageVerify  FlowStage = "verify"
)

var (
	ErrInscriptionFailed = errors.New("inscription failed")
	// ErrWalletChanged ends a flow whose wallet switched account or network
	// after it connected.
	ErrWalletChanged = errors.New("wallet changed during mint")
)

// FlowError tells the user which step of the mint went wrong.
type FlowError struct {
	Stage FlowStage
	Err   error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

type FlowResult struct {
	WalletAddress string
	Network       string
	Request       mintapi.CreateResponse
	PaymentTxID   string
	Final         mintapi.VerifyResponse
}

// Flow runs a full mint: connect the wallet, create a request, pay it and
// poll until the inscription completes or fails.
type Flow struct {
	wallet   Wallet
	api      MintAPI
	poller   *Poller
	interval time.Duration
	watch    time.Duration
	logger   logrus.FieldLogger
}

func NewFlow(wallet Wallet, api MintAPI, poller *Poller, interval time.Duration, logger logrus.FieldLogger) *Flow {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if poller == nil {
		poller = NewPoller(api, PollerConfig{}, logger)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Flow{
		wallet:   wallet,
		api:      api,
		poller:   poller,
		interval: interval,
		logger:   logger.WithField("component", "flow"),
	}
}

// WithWalletWatch makes Run abort with ErrWalletChanged when the wallet
// switches account or network, checked every interval. Zero disables it.
func (f *Flow) WithWalletWatch(interval time.Duration) *Flow {
	f.watch = interval
	return f
}

// Run blocks until the mint reaches a terminal status, an error ends it or
// ctx is cancelled. onUpdate, if set, sees every verify response.
func (f *Flow) Run(ctx context.Context, onUpdate func(mintapi.VerifyResponse)) (FlowResult, error) {
	var res FlowResult

	accounts, err := f.wallet.RequestAccounts(ctx)
	if err != nil {
		return res, &FlowError{Stage: StageConnect, Err: err}
	}
	if len(accounts) == 0 {
		return res, &FlowError{Stage: StageConnect, Err: fmt.Errorf("%w: no accounts", ErrWalletUnavailable)}
	}
	res.WalletAddress = accounts[0]
	if network, err := f.wallet.GetNetwork(ctx); err == nil {
		res.Network = network
	}

	if f.watch > 0 {
		var cancel context.CancelCauseFunc
		ctx, cancel = context.WithCancelCause(ctx)
		defer cancel(nil)
		go f.abortOnWalletChange(ctx, cancel, res.WalletAddress, res.Network)
	}

	created, err := f.api.Create(ctx, res.WalletAddress)
	if err != nil {
		return res, flowError(ctx, StageCreate, err)
	}
	res.Request = created
	f.logger.WithFields(logrus.Fields{
		"request_id":  created.RequestID,
		"pay_to":      created.PaymentAddress,
		"amount_sats": created.RequiredAmountInSats,
	}).Info("inscription request created")

	txid, err := f.wallet.SendBitcoin(ctx, created.PaymentAddress, created.RequiredAmountInSats, SendOptions{FeeRate: created.FeeRate})
	if err != nil {
		return res, flowError(ctx, StagePay, err)
	}
	res.PaymentTxID = txid

	handle := f.poller.Poll(ctx, mintapi.VerifyRequest{
		WalletAddress: res.WalletAddress,
		RequestID:     created.RequestID,
		PaymentTxID:   txid,
	}, f.interval, onUpdate)
	<-handle.Done()

	if err := handle.Err(); err != nil {
		return res, flowError(ctx, StageVerify, err)
	}
	final, ok := handle.Last()
	if !ok {
		return res, &FlowError{Stage: StageVerify, Err: errors.New("polling ended without a response")}
	}
	res.Final = final
	if final.Status == mintapi.StatusFailed {
		reason := final.FailureReason
		if reason == "" {
			reason = final.Message
		}
		return res, &FlowError{Stage: StageVerify, Err: fmt.Errorf("%w: %s", ErrInscriptionFailed, reason)}
	}
	return res, nil
}

func (f *Flow) abortOnWalletChange(ctx context.Context, cancel context.CancelCauseFunc, address, network string) {
	for ev := range WatchWallet(ctx, f.wallet, f.watch, f.logger) {
		switch {
		case ev.Kind == AccountsChanged && (len(ev.Accounts) == 0 || ev.Accounts[0] != address):
		case ev.Kind == NetworkChanged && network != "" && ev.Network != network:
		default:
			continue
		}
		f.logger.WithFields(logrus.Fields{
			"event":    ev.Kind,
			"accounts": ev.Accounts,
			"network":  ev.Network,
		}).Warn("wallet changed, aborting mint")
		cancel(fmt.Errorf("%w: %s", ErrWalletChanged, ev.Kind))
		return
	}
}

// flowError reports a wallet change instead of the context error it caused.
func flowError(ctx context.Context, stage FlowStage, err error) *FlowError {
	if cause := context.Cause(ctx); errors.Is(cause, ErrWalletChanged) {
		err = cause
	}
	return &FlowError{Stage: stage, Err: err}
}
