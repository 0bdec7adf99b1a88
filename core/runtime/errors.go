package runtime

import (
	"errors"
	"fmt"

	"escrowchain/crypto"
)

var (
	ErrUnknownProgram      = errors.New("runtime: unknown program")
	ErrDuplicateTx         = errors.New("runtime: transaction already processed")
	ErrPrivilegeEscalation = errors.New("runtime: cross-program invocation with unauthorized signer or writable account")
	ErrMissingAccount      = errors.New("runtime: account not available to the caller")
	ErrCallDepth           = errors.New("runtime: cross-program invocation depth exceeded")
	ErrReadonlyModified    = errors.New("runtime: instruction modified a read-only account")
	ErrExternalDataChange  = errors.New("runtime: instruction modified data of an account it does not own")
	ErrExternalSpend       = errors.New("runtime: instruction spent lamports of an account it does not own")
	ErrOwnerChange         = errors.New("runtime: instruction changed the owner of an account it does not own")
	ErrUnbalanced          = errors.New("runtime: instruction changed the total lamports")
)

// InstructionError reports which instruction of a transaction failed. Err is
// the program's error, so callers can match flat program codes with errors.As.
type InstructionError struct {
	Index     int
	ProgramID crypto.Address
	Err       error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s) failed: %v", e.Index, e.ProgramID, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }
