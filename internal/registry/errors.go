package registry

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidWalletAddress = invalidInput("invalid wallet address")
	ErrNotFound             = errors.New("request not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrDuplicateID          = errors.New("duplicate request id")

	// ErrPaymentTxReused is returned when a payment transaction already paid
	// for another request.
	ErrPaymentTxReused = fmt.Errorf("%w: payment tx already used by another request", ErrInvalidTransition)
)

type inputError struct {
	msg string
}

func invalidInput(msg string) error {
	return &inputError{msg: msg}
}

func (e *inputError) Error() string {
	return e.msg
}

// Is makes every input error match ErrInvalidInput.
func (e *inputError) Is(target error) bool {
	return target == ErrInvalidInput
}
