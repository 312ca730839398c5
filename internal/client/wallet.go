package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=mocks/mock_wallet.go -package=mocks degenmint/internal/client Wallet,MintAPI

// ErrWalletUnavailable wraps every failure reported by a wallet provider.
var ErrWalletUnavailable = errors.New("wallet unavailable")

type SendOptions struct {
	// FeeRate in sat/vB; zero leaves the wallet default.
	FeeRate float64
}

// Wallet is the capability set the mint flow needs from a Bitcoin wallet.
type Wallet interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	GetAccounts(ctx context.Context) ([]string, error)
	GetNetwork(ctx context.Context) (string, error)
	SendBitcoin(ctx context.Context, toAddress string, amountSats int64, opts SendOptions) (string, error)
}

// WalletError adapts a provider failure so errors.Is(err, ErrWalletUnavailable)
// holds while the provider message stays readable.
func WalletError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrWalletUnavailable, op, err)
}

type WalletEventKind string

const (
	AccountsChanged WalletEventKind = "accountsChanged"
	NetworkChanged  WalletEventKind = "networkChanged"
)

type WalletEvent struct {
	Kind     WalletEventKind
	Accounts []string
	Network  string
}

// WatchWallet polls the wallet every interval and emits an event whenever
// the accounts or the network differ from the previous poll. The channel is
// closed when ctx is done.
func WatchWallet(ctx context.Context, w Wallet, interval time.Duration, logger logrus.FieldLogger) <-chan WalletEvent {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	events := make(chan WalletEvent, 4)

	go func() {
		defer close(events)

		accounts, _ := w.GetAccounts(ctx)
		network, _ := w.GetNetwork(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			nextAccounts, err := w.GetAccounts(ctx)
			if err != nil {
				logger.WithError(err).Debug("wallet watch: get accounts")
			} else if !slices.Equal(accounts, nextAccounts) {
				accounts = nextAccounts
				if !emit(ctx, events, WalletEvent{Kind: AccountsChanged, Accounts: accounts, Network: network}) {
					return
				}
			}

			nextNetwork, err := w.GetNetwork(ctx)
			if err != nil {
				logger.WithError(err).Debug("wallet watch: get network")
			} else if nextNetwork != network {
				network = nextNetwork
				if !emit(ctx, events, WalletEvent{Kind: NetworkChanged, Accounts: accounts, Network: network}) {
					return
				}
			}
		}
	}()
	return events
}

func emit(ctx context.Context, ch chan<- WalletEvent, ev WalletEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
