package escrow

import (
	"encoding/binary"

	"escrowchain/core/types"
	"escrowchain/crypto"
)

// DefaultProgramID is the id the escrow program is registered under unless
// the node configuration overrides it.
var DefaultProgramID = crypto.LabelAddress("escrowchain/escrow")

// Seed prefixes of the program-derived addresses.
var (
	EscrowSeedPrefix = []byte("escrow")
	JobSeedPrefix    = []byte("job")
)

const (
	tagInitEscrow uint8 = iota
	tagSetEscrowOwner
	tagFundJob
	tagDisburseFunds
)

// Instruction is one of InitEscrow, SetEscrowOwner, FundJob or DisburseFunds.
type Instruction interface {
	Name() string
	tag() uint8
}

// InitEscrow creates the escrow record and its custodial token account.
//
// Accounts:
//
//	0. [writable] escrow (derived from "escrow", mint, token program)
//	1. [writable] escrow token account (uninitialized, owned by the token program)
//	2. [] mint
//	3. [] token program
type InitEscrow struct {
	Owner crypto.Address
}

// SetEscrowOwner hands control of the escrow to NewOwner.
//
// Accounts:
//
//	0. [writable] escrow
//	1. [signer] current escrow owner
type SetEscrowOwner struct {
	NewOwner crypto.Address
}

// FundJob moves Amount from the depositor into custody and credits the
// depositor's job.
//
// Accounts:
//
//	0. [writable] source token account
//	1. [writable] escrow token account
//	2. [writable] escrow
//	3. [writable] job (derived from "job", escrow, authority)
//	4. [signer] depositor authority
//	5. [] mint
//	6. [] token program
type FundJob struct {
	Amount uint64
}

// DisburseFunds releases Amount from a job to a destination token account.
//
// Accounts:
//
//	0. [writable] escrow token account
//	1. [writable] destination token account
//	2. [writable] escrow
//	3. [writable] job
//	4. [signer] escrow owner
//	5. [] mint
//	6. [] token program
type DisburseFunds struct {
	Amount uint64
}

func (InitEscrow) Name() string     { return "InitEscrow" }
func (SetEscrowOwner) Name() string { return "SetEscrowOwner" }
func (FundJob) Name() string        { return "FundJob" }
func (DisburseFunds) Name() string  { return "DisburseFunds" }

func (InitEscrow) tag() uint8     { return tagInitEscrow }
func (SetEscrowOwner) tag() uint8 { return tagSetEscrowOwner }
func (FundJob) tag() uint8        { return tagFundJob }
func (DisburseFunds) tag() uint8  { return tagDisburseFunds }

// UnpackInstruction decodes instruction data. Bytes past the payload of the
// decoded variant are ignored.
func UnpackInstruction(input []byte) (Instruction, error) {
	if len(input) == 0 {
		return nil, ErrInstructionUnpack
	}
	tag, rest := input[0], input[1:]
	switch tag {
	case tagInitEscrow, tagSetEscrowOwner:
		if len(rest) < crypto.AddressLength {
			return nil, ErrInstructionUnpack
		}
		var addr crypto.Address
		copy(addr[:], rest[:crypto.AddressLength])
		if tag == tagInitEscrow {
			return InitEscrow{Owner: addr}, nil
		}
		return SetEscrowOwner{NewOwner: addr}, nil
	case tagFundJob, tagDisburseFunds:
		if len(rest) < 8 {
			return nil, ErrInstructionUnpack
		}
		amount := binary.LittleEndian.Uint64(rest[:8])
		if tag == tagFundJob {
			return FundJob{Amount: amount}, nil
		}
		return DisburseFunds{Amount: amount}, nil
	default:
		return nil, ErrInstructionUnpack
	}
}

// PackInstruction encodes ix into instruction data.
func PackInstruction(ix Instruction) []byte {
	switch v := ix.(type) {
	case InitEscrow:
		return append([]byte{tagInitEscrow}, v.Owner[:]...)
	case SetEscrowOwner:
		return append([]byte{tagSetEscrowOwner}, v.NewOwner[:]...)
	case FundJob:
		return packAmount(tagFundJob, v.Amount)
	case DisburseFunds:
		return packAmount(tagDisburseFunds, v.Amount)
	default:
		return nil
	}
}

func packAmount(tag uint8, amount uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = tag
	binary.LittleEndian.PutUint64(buf[1:], amount)
	return buf
}

func escrowSeeds(mint, tokenProgram crypto.Address) [][]byte {
	return [][]byte{EscrowSeedPrefix, mint[:], tokenProgram[:]}
}

func jobSeeds(escrow, authority crypto.Address) [][]byte {
	return [][]byte{JobSeedPrefix, escrow[:], authority[:]}
}

// EscrowSeeds returns the full seed set, bump included, of the escrow of mint.
func EscrowSeeds(mint, tokenProgram crypto.Address, bump uint8) [][]byte {
	return append(escrowSeeds(mint, tokenProgram), []byte{bump})
}

// JobSeeds returns the full seed set, bump included, of a job.
func JobSeeds(escrow, authority crypto.Address, bump uint8) [][]byte {
	return append(jobSeeds(escrow, authority), []byte{bump})
}

// FindEscrowAddress derives the escrow of mint under programID.
func FindEscrowAddress(programID, mint, tokenProgram crypto.Address) (crypto.Address, uint8, error) {
	return crypto.FindProgramAddress(escrowSeeds(mint, tokenProgram), programID)
}

// FindJobAddress derives the job of authority within escrow.
func FindJobAddress(programID, escrow, authority crypto.Address) (crypto.Address, uint8, error) {
	return crypto.FindProgramAddress(jobSeeds(escrow, authority), programID)
}

// NewInitEscrowInstruction builds an InitEscrow call.
func NewInitEscrowInstruction(programID, escrow, escrowToken, mint, tokenProgram, owner crypto.Address) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(escrow, false),
			types.NewAccountMeta(escrowToken, false),
			types.NewReadonlyAccountMeta(mint, false),
			types.NewReadonlyAccountMeta(tokenProgram, false),
		},
		Data: PackInstruction(InitEscrow{Owner: owner}),
	}
}

// NewSetEscrowOwnerInstruction builds a SetEscrowOwner call signed by
// currentOwner.
func NewSetEscrowOwnerInstruction(programID, escrow, currentOwner, newOwner crypto.Address) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(escrow, false),
			types.NewReadonlyAccountMeta(currentOwner, true),
		},
		Data: PackInstruction(SetEscrowOwner{NewOwner: newOwner}),
	}
}

// NewFundJobInstruction builds a FundJob call signed by authority.
func NewFundJobInstruction(programID, source, escrowToken, escrow, job, authority, mint, tokenProgram crypto.Address, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false),
			types.NewAccountMeta(escrowToken, false),
			types.NewAccountMeta(escrow, false),
			types.NewAccountMeta(job, false),
			types.NewReadonlyAccountMeta(authority, true),
			types.NewReadonlyAccountMeta(mint, false),
			types.NewReadonlyAccountMeta(tokenProgram, false),
		},
		Data: PackInstruction(FundJob{Amount: amount}),
	}
}

// NewDisburseFundsInstruction builds a DisburseFunds call signed by the
// escrow owner.
func NewDisburseFundsInstruction(programID, escrowToken, destination, escrow, job, owner, mint, tokenProgram crypto.Address, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(escrowToken, false),
			types.NewAccountMeta(destination, false),
			types.NewAccountMeta(escrow, false),
			types.NewAccountMeta(job, false),
			types.NewReadonlyAccountMeta(owner, true),
			types.NewReadonlyAccountMeta(mint, false),
			types.NewReadonlyAccountMeta(tokenProgram, false),
		},
		Data: PackInstruction(DisburseFunds{Amount: amount}),
	}
}
