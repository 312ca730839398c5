package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"degenmint/internal/client"
)

type switchableWallet struct {
	mu       sync.Mutex
	accounts []string
	network  string
}

func (w *switchableWallet) set(accounts []string, network string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = accounts
	w.network = network
}

func (w *switchableWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	return w.GetAccounts(ctx)
}

func (w *switchableWallet) GetAccounts(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.accounts...), nil
}

func (w *switchableWallet) GetNetwork(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.network, nil
}

func (w *switchableWallet) SendBitcoin(context.Context, string, int64, client.SendOptions) (string, error) {
	return "", errors.New("not used")
}

func nextEvent(t *testing.T, ch <-chan client.WalletEvent) client.WalletEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no wallet event")
		return client.WalletEvent{}
	}
}

func TestWatchWalletEmitsChanges(t *testing.T) {
	w := &switchableWallet{accounts: []string{"tb1qa"}, network: "testnet"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := client.WatchWallet(ctx, w, 2*time.Millisecond, nil)
	time.Sleep(10 * time.Millisecond)

	w.set([]string{"tb1qb"}, "testnet")
	ev := nextEvent(t, events)
	assert.Equal(t, client.AccountsChanged, ev.Kind)
	assert.Equal(t, []string{"tb1qb"}, ev.Accounts)

	w.set([]string{"tb1qb"}, "livenet")
	ev = nextEvent(t, events)
	assert.Equal(t, client.NetworkChanged, ev.Kind)
	assert.Equal(t, "livenet", ev.Network)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, time.Second, time.Millisecond)
}

func TestWalletErrorWrapsProviderMessage(t *testing.T) {
	assert.NoError(t, client.WalletError("getNetwork", nil))

	err := client.WalletError("requestAccounts", errors.New("extension not installed"))
	assert.ErrorIs(t, err, client.ErrWalletUnavailable)
	assert.ErrorContains(t, err, "extension not installed")
}
