package minter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FakeClient derives inscription ids from the request so tests and demos get
// stable, ordinals-shaped identifiers without touching a chain.
type FakeClient struct{}

func (FakeClient) Inscribe(_ context.Context, req InscribeRequest) (InscribeResponse, error) {
	if req.RequestID == "" {
		return InscribeResponse{}, fmt.Errorf("missing request id")
	}
	if req.PaymentTxID == "" {
		return InscribeResponse{}, fmt.Errorf("missing payment tx id")
	}
	hash := fakeHash(req.RequestID + ":" + req.PaymentTxID)
	return InscribeResponse{
		InscriptionID: hash + "i0",
		TxHash:        hash,
	}, nil
}

func fakeHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
