// Package client talks to the mint API on behalf of a wallet holder: it
// creates requests, pays them and polls verification until a terminal state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"degenmint/internal/hmacauth"
	"degenmint/internal/mintapi"
)

// MintAPI is the server surface used by the flow and the poller.
type MintAPI interface {
	Create(ctx context.Context, walletAddress string) (mintapi.CreateResponse, error)
	Verify(ctx context.Context, req mintapi.VerifyRequest) (mintapi.VerifyResponse, error)
}

// APIError is a non-2xx answer from the mint API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mint api: %d %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsTransient classifies err for retry: transport failures and temporary API
// errors are transient, client errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

type APIClient struct {
	baseURL string
	http    *http.Client
	signer  *hmacauth.Signer
}

// NewAPIClient builds a client for baseURL, e.g. http://localhost:3000. A nil
// httpClient gets a 10s timeout; a nil signer sends unsigned requests.
func NewAPIClient(baseURL string, httpClient *http.Client, signer *hmacauth.Signer) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		signer:  signer,
	}
}

func (c *APIClient) Create(ctx context.Context, walletAddress string) (mintapi.CreateResponse, error) {
	return c.CreateWithKey(ctx, walletAddress, uuid.NewString())
}

// CreateWithKey sends idempotencyKey so a retried create returns the same
// request instead of a second one.
func (c *APIClient) CreateWithKey(ctx context.Context, walletAddress, idempotencyKey string) (mintapi.CreateResponse, error) {
	var resp mintapi.CreateResponse
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("X-Idempotency-Key", idempotencyKey)
	}
	err := c.do(ctx, http.MethodPost, "/api/mint", header, mintapi.MintRequest{WalletAddress: walletAddress}, &resp)
	return resp, err
}

func (c *APIClient) Verify(ctx context.Context, req mintapi.VerifyRequest) (mintapi.VerifyResponse, error) {
	var resp mintapi.VerifyResponse
	err := c.do(ctx, http.MethodPost, "/api/mint", nil, req.Body(), &resp)
	return resp, err
}

func (c *APIClient) Status(ctx context.Context, requestID string) (mintapi.StatusResponse, error) {
	var resp mintapi.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/mint/"+url.PathEscape(requestID), nil, nil, &resp)
	return resp, err
}

func (c *APIClient) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.signer.Sign(req, body)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr mintapi.ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
