// Package mintapi holds the JSON documents exchanged over /api/mint.
package mintapi

import "time"

const ActionVerify = "verify"

// Verification statuses reported to polling clients.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// MintRequest is the body of POST /api/mint. An empty Action creates a request.
type MintRequest struct {
	WalletAddress string `json:"walletAddress"`
	Action        string `json:"action,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	PaymentTxID   string `json:"paymentTxId,omitempty"`
}

type AmountBreakdown struct {
	SendAmountSats  int64   `json:"send_amount_sats"`
	FeeSats         int64   `json:"fee_sats"`
	TotalAmountSats int64   `json:"total_amount_sats"`
	FeeRate         float64 `json:"fee_rate"`
	EstimatedVBytes int     `json:"estimated_vbytes"`
}

type CreateResponse struct {
	Success              bool            `json:"success"`
	RequestID            string          `json:"requestId"`
	PaymentAddress       string          `json:"paymentAddress"`
	RequiredAmountInSats int64           `json:"required_amount_in_sats"`
	FeeRate              float64         `json:"fee_rate"`
	AmountBreakdown      AmountBreakdown `json:"amount_breakdown"`
	Message              string          `json:"message"`
}

type VerifyRequest struct {
	WalletAddress string
	RequestID     string
	PaymentTxID   string
}

func (v VerifyRequest) Body() MintRequest {
	return MintRequest{
		WalletAddress: v.WalletAddress,
		Action:        ActionVerify,
		RequestID:     v.RequestID,
		PaymentTxID:   v.PaymentTxID,
	}
}

type VerifyResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	InscriptionID string `json:"inscriptionId,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// Terminal reports whether polling can stop.
func (v VerifyResponse) Terminal() bool {
	return v.Status == StatusCompleted || v.Status == StatusFailed
}

// StatusResponse is returned by GET /api/mint/{id}.
type StatusResponse struct {
	RequestID      string          `json:"requestId"`
	WalletAddress  string          `json:"walletAddress"`
	PaymentAddress string          `json:"paymentAddress"`
	AmountSats     int64           `json:"amount_sats"`
	FeeRate        float64         `json:"fee_rate"`
	Breakdown      AmountBreakdown `json:"amount_breakdown"`
	Status         string          `json:"status"`
	PaymentTxID    string          `json:"paymentTxId,omitempty"`
	InscriptionID  string          `json:"inscriptionId,omitempty"`
	FailureReason  string          `json:"failureReason,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
