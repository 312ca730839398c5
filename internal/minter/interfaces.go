package minter

import (
	"context"
)

// Client produces the inscription for a paid request.
type Client interface {
	Inscribe(ctx context.Context, req InscribeRequest) (InscribeResponse, error)
}

// HealthChecker is implemented by clients backed by a remote node.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type InscribeRequest struct {
	RequestID     string
	WalletAddress string
	PaymentTxID   string
}

type InscribeResponse struct {
	InscriptionID string
	TxHash        string
}
