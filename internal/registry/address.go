package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// AddressIssuer allocates the address a request's payment is sent to.
type AddressIssuer interface {
	IssueAddress(ctx context.Context) (string, error)
}

// ValidateAddress checks that addr is a well-formed Bitcoin address on the
// given network.
func ValidateAddress(addr string, params *chaincfg.Params) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidWalletAddress)
	}
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidWalletAddress, addr, err)
	}
	if !decoded.IsForNet(params) {
		return fmt.Errorf("%w: %q is not a %s address", ErrInvalidWalletAddress, addr, params.Name)
	}
	return nil
}

// StaticAddressIssuer hands out one fixed address for every request. Payments
// cannot be told apart by destination, so it is only fit for demos and tests.
type StaticAddressIssuer struct {
	address string
}

func NewStaticAddressIssuer(address string, params *chaincfg.Params) (*StaticAddressIssuer, error) {
	if err := ValidateAddress(address, params); err != nil {
		return nil, fmt.Errorf("payment address: %w", err)
	}
	return &StaticAddressIssuer{address: address}, nil
}

func (s *StaticAddressIssuer) IssueAddress(context.Context) (string, error) {
	return s.address, nil
}
