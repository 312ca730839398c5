package registry

import (
	"time"

	"degenmint/internal/quote"
)

// Status is the lifecycle state of an inscription request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Request is a single inscription request. AmountSats, FeeRate and Quote are
// fixed at creation and never recomputed.
type Request struct {
	ID             string      `json:"id"`
	WalletAddress  string      `json:"walletAddress"`
	PaymentAddress string      `json:"paymentAddress"`
	AmountSats     int64       `json:"amountSats"`
	FeeRate        float64     `json:"feeRate"`
	Quote          quote.Quote `json:"quote"`
	Status         Status      `json:"status"`
	PaymentTxID    string      `json:"paymentTxId,omitempty"`
	InscriptionID  string      `json:"inscriptionId,omitempty"`
	FailureReason  string      `json:"failureReason,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
