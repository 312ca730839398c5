package registry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"degenmint/internal/quote"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	q, err := quote.Compute(1, 10_000)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	req := Request{
		ID:             "req_" + uuid.NewString(),
		WalletAddress:  testWallet,
		PaymentAddress: testPayAddress,
		AmountSats:     q.TotalAmountSats,
		FeeRate:        q.FeeRate,
		Quote:          q,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.Put(ctx, req))
	require.ErrorIs(t, store.Put(ctx, req), ErrDuplicateID)

	got, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Quote, got.Quote)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.PaymentTxID)

	txid := "tx_" + uuid.NewString()
	paid := got
	paid.Status = StatusPaid
	paid.PaymentTxID = txid
	paid.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.CompareAndSwap(ctx, req.ID, StatusPending, paid))
	require.ErrorIs(t, store.CompareAndSwap(ctx, req.ID, StatusPending, paid), ErrInvalidTransition)

	listed, err := store.ListByStatus(ctx, StatusPaid)
	require.NoError(t, err)
	var found bool
	for _, r := range listed {
		if r.ID == req.ID {
			found = true
			assert.Equal(t, txid, r.PaymentTxID)
		}
	}
	assert.True(t, found)

	second := req
	second.ID = "req_" + uuid.NewString()
	require.NoError(t, store.Put(ctx, second))
	reused := second
	reused.Status = StatusPaid
	reused.PaymentTxID = txid
	require.ErrorIs(t, store.CompareAndSwap(ctx, second.ID, StatusPending, reused), ErrPaymentTxReused)
	got, err = store.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	_, err = store.Get(ctx, "req_missing_"+uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.CompareAndSwap(ctx, "req_missing", StatusPending, paid), ErrNotFound)
}
