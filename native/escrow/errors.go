package escrow

import (
	"errors"
	"fmt"
)

// Error is the flat failure code surfaced by the escrow program. Its numeric
// value is part of the program's external interface and must stay stable.
type Error uint32

const (
	ErrInstructionUnpack Error = iota
	ErrUnspecified
	ErrMath
	ErrNotOwnedByProgram
	ErrDerivedAddressMismatch
	ErrMustBeSigner
	ErrNotRentExempt
	ErrAlreadyInitialized
	ErrOwnerMismatch
	ErrAmountZero
	ErrInvalidAccountData
	ErrNotEnoughAccountKeys
	ErrInvalidMint
	ErrInvalidTokenAccount
	ErrExternalCallFailed
)

var errorMessages = map[Error]string{
	ErrInstructionUnpack:      "failed to unpack instruction data",
	ErrUnspecified:            "unspecified error",
	ErrMath:                   "math error",
	ErrNotOwnedByProgram:      "account not owned by the escrow program",
	ErrDerivedAddressMismatch: "derived address mismatch",
	ErrMustBeSigner:           "account must be a signer",
	ErrNotRentExempt:          "account not rent exempt",
	ErrAlreadyInitialized:     "account already initialized",
	ErrOwnerMismatch:          "owner mismatch",
	ErrAmountZero:             "amount must be greater than zero",
	ErrInvalidAccountData:     "invalid account data",
	ErrNotEnoughAccountKeys:   "not enough account keys",
	ErrInvalidMint:            "invalid mint",
	ErrInvalidTokenAccount:    "invalid token account",
	ErrExternalCallFailed:     "external call failed",
}

// Code returns the numeric value of the error.
func (e Error) Code() uint32 { return uint32(e) }

func (e Error) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return "escrow: " + msg
	}
	return fmt.Sprintf("escrow: error %d", uint32(e))
}

// CodeOf extracts the escrow error code from err, if it carries one.
func CodeOf(err error) (Error, bool) {
	var code Error
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}

func externalCallFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrExternalCallFailed, err)
}
