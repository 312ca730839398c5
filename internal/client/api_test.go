package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"degenmint/internal/client"
	"degenmint/internal/hmacauth"
	"degenmint/internal/mintapi"
)

func TestAPIClientCreateSendsKeyAndSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	verifier := &hmacauth.Verifier{Secret: "s3cret", MaxSkew: time.Minute, Now: func() time.Time { return now }}

	var gotKey string
	var gotBody mintapi.MintRequest
	srv := httptest.NewServer(verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(mintapi.CreateResponse{Success: true, RequestID: "req_1", RequiredAmountInSats: 10_140})
	})))
	defer srv.Close()

	c := client.NewAPIClient(srv.URL+"/", nil, &hmacauth.Signer{Secret: "s3cret", Now: func() time.Time { return now }})
	resp, err := c.CreateWithKey(context.Background(), flowWallet, "key-1")
	require.NoError(t, err)

	assert.Equal(t, "req_1", resp.RequestID)
	assert.Equal(t, int64(10_140), resp.RequiredAmountInSats)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, flowWallet, gotBody.WalletAddress)
	assert.Empty(t, gotBody.Action)
}

func TestAPIClientCreateGeneratesKey(t *testing.T) {
	var mu sync.Mutex
	keys := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys[r.Header.Get("X-Idempotency-Key")] = true
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(mintapi.CreateResponse{Success: true})
	}))
	defer srv.Close()

	c := client.NewAPIClient(srv.URL, nil, nil)
	for i := 0; i < 3; i++ {
		_, err := c.Create(context.Background(), flowWallet)
		require.NoError(t, err)
	}
	assert.Len(t, keys, 3)
	assert.False(t, keys[""])
}

func TestAPIClientVerifyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]string
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "verify", body["action"])
		assert.Equal(t, "req_1", body["requestId"])
		assert.Equal(t, "abc123", body["paymentTxId"])
		_ = json.NewEncoder(w).Encode(mintapi.VerifyResponse{Success: true, Status: mintapi.StatusProcessing})
	}))
	defer srv.Close()

	resp, err := client.NewAPIClient(srv.URL, nil, nil).Verify(context.Background(), verifyReq)
	require.NoError(t, err)
	assert.Equal(t, mintapi.StatusProcessing, resp.Status)
}

func TestAPIClientMapsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Invalid request ID"}`))
	}))
	defer srv.Close()

	_, err := client.NewAPIClient(srv.URL, nil, nil).Status(context.Background(), "nonexistent")

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Invalid request ID", apiErr.Message)
	assert.False(t, apiErr.Temporary())
}

func TestAPIClientStatusPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/mint/req_42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(mintapi.StatusResponse{RequestID: "req_42", Status: "paid"})
	}))
	defer srv.Close()

	resp, err := client.NewAPIClient(srv.URL, nil, nil).Status(context.Background(), "req_42")
	require.NoError(t, err)
	assert.Equal(t, "paid", resp.Status)
}
