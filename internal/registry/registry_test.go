package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet     = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
	testPayAddress = "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7"
	mainnetWallet  = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	issuer, err := NewStaticAddressIssuer(testPayAddress, &chaincfg.TestNet3Params)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	reg, err := New(NewMemoryStore(), issuer, &chaincfg.TestNet3Params, Policy{SendAmountSats: 10_000, FeeRate: 1}, logger)
	require.NoError(t, err)
	return reg
}

func TestCreate_QuotesAndStoresPendingRequest(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	req, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, testWallet, req.WalletAddress)
	assert.Equal(t, testPayAddress, req.PaymentAddress)
	assert.Equal(t, int64(140), req.Quote.FeeSats)
	assert.Equal(t, int64(10_140), req.AmountSats)
	assert.Equal(t, req.Quote.SendAmountSats+req.Quote.FeeSats, req.AmountSats)
	assert.Equal(t, 1.0, req.FeeRate)
	assert.Empty(t, req.PaymentTxID)
	assert.Empty(t, req.InscriptionID)
	assert.False(t, req.CreatedAt.IsZero())

	stored, err := reg.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, stored)
}

func TestCreate_GeneratesUniqueIDs(t *testing.T) {
	reg := newTestRegistry(t)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		req, err := reg.Create(context.Background(), testWallet)
		require.NoError(t, err)
		_, dup := seen[req.ID]
		require.False(t, dup, "id reused: %s", req.ID)
		seen[req.ID] = struct{}{}
	}
}

func TestCreate_RejectsBadWalletAddress(t *testing.T) {
	reg := newTestRegistry(t)

	for _, addr := range []string{"", "   ", "tb1qabc...", "not-an-address", mainnetWallet} {
		_, err := reg.Create(context.Background(), addr)
		require.ErrorIs(t, err, ErrInvalidWalletAddress, "address %q", addr)
		require.ErrorIs(t, err, ErrInvalidInput, "address %q", addr)
	}
}

func TestCreate_IssuerFailureIsUpstream(t *testing.T) {
	reg, err := New(NewMemoryStore(), failingIssuer{}, &chaincfg.TestNet3Params, Policy{SendAmountSats: 1, FeeRate: 1}, nil)
	require.NoError(t, err)

	_, err = reg.Create(context.Background(), testWallet)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	issuer, err := NewStaticAddressIssuer(testPayAddress, &chaincfg.TestNet3Params)
	require.NoError(t, err)

	_, err = New(NewMemoryStore(), issuer, &chaincfg.TestNet3Params, Policy{SendAmountSats: 10_000, FeeRate: -1}, nil)
	require.Error(t, err)
}

func TestMarkPaid_TwiceKeepsFirstTxID(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	req, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)

	paid, err := reg.MarkPaid(ctx, req.ID, "abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "abc123", paid.PaymentTxID)

	_, err = reg.MarkPaid(ctx, req.ID, "def456")
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := reg.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, stored.Status)
	assert.Equal(t, "abc123", stored.PaymentTxID)
}

func TestMarkPaid_RejectsTxIDOfAnotherRequest(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)
	second, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)

	_, err = reg.MarkPaid(ctx, first.ID, "abc123")
	require.NoError(t, err)

	_, err = reg.MarkPaid(ctx, second.ID, "abc123")
	require.ErrorIs(t, err, ErrPaymentTxReused)
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := reg.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, stored.PaymentTxID)

	// a fresh payment still goes through
	_, err = reg.MarkPaid(ctx, second.ID, "def456")
	require.NoError(t, err)
}

func TestMarkPaid_RequiresTxID(t *testing.T) {
	reg := newTestRegistry(t)
	req, err := reg.Create(context.Background(), testWallet)
	require.NoError(t, err)

	_, err = reg.MarkPaid(context.Background(), req.ID, " ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFinalize_PendingRequestIsInvalidTransition(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	req, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)

	_, err = reg.Finalize(ctx, req.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := reg.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, stored.InscriptionID)
}

func TestFinalize_CompletesPaidRequest(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	req, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)
	_, err = reg.MarkPaid(ctx, req.ID, "abc123")
	require.NoError(t, err)

	done, err := reg.Finalize(ctx, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotEmpty(t, done.InscriptionID)
	assert.Equal(t, "abc123", done.PaymentTxID)

	_, err = reg.Fail(ctx, req.ID, "late failure")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = reg.Finalize(ctx, req.ID, "other")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFinalize_UsesGivenInscriptionID(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	req, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)
	_, err = reg.MarkPaid(ctx, req.ID, "abc123")
	require.NoError(t, err)

	done, err := reg.Finalize(ctx, req.ID, "deadbeefi0")
	require.NoError(t, err)
	assert.Equal(t, "deadbeefi0", done.InscriptionID)
}

func TestFail_FromPendingAndPaid(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	pending, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)
	failed, err := reg.Fail(ctx, pending.ID, "payment not found")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "payment not found", failed.FailureReason)
	assert.Empty(t, failed.PaymentTxID)

	paid, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)
	_, err = reg.MarkPaid(ctx, paid.ID, "tx-1")
	require.NoError(t, err)
	failed, err = reg.Fail(ctx, paid.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "tx-1", failed.PaymentTxID)
	assert.NotEmpty(t, failed.FailureReason)

	_, err = reg.MarkPaid(ctx, paid.ID, "tx-2")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGet_UnknownID(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Get(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = reg.MarkPaid(context.Background(), "nonexistent", "abc")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Finalize(context.Background(), "nonexistent", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkPaid_ConcurrentCallsHaveOneWinner(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	req, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.MarkPaid(ctx, req.ID, "tx")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInvalidTransition):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}

func TestListByStatus(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)
	b, err := reg.Create(ctx, testWallet)
	require.NoError(t, err)
	_, err = reg.MarkPaid(ctx, b.ID, "tx-b")
	require.NoError(t, err)

	paid, err := reg.ListByStatus(ctx, StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, b.ID, paid[0].ID)

	pending, err := reg.ListByStatus(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	_, err = reg.ListByStatus(ctx, Status("bogus"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

type failingIssuer struct{}

func (failingIssuer) IssueAddress(context.Context) (string, error) {
	return "", errors.New("wallet rpc down")
}
