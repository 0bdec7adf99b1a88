package system

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"escrowchain/core/runtime"
	"escrowchain/core/types"
	"escrowchain/crypto"
)

// ProgramID is the id of the system program: the zero address, which also
// owns every slot that has never been allocated.
var ProgramID = crypto.ZeroAddress

// MaxSpace caps the data region a single allocation may request.
const MaxSpace = 10 * 1024 * 1024

const (
	InstructionCreateAccount uint8 = iota
	InstructionCreateDerivedAccount
	InstructionTransfer
)

var (
	ErrInvalidInstruction = errors.New("system: invalid instruction data")
	ErrNotEnoughAccounts  = errors.New("system: not enough account keys")
	ErrAccountInUse       = errors.New("system: account already in use")
	ErrInsufficientFunds  = errors.New("system: insufficient lamports")
	ErrMissingSignature   = errors.New("system: required signature missing")
	ErrAddressMismatch    = errors.New("system: derived address does not match the account provided")
	ErrInvalidSpace       = errors.New("system: requested space exceeds the maximum")
)

// CreateAccountArgs funds and allocates a new keypair account.
type CreateAccountArgs struct {
	Lamports uint64
	Space    uint64
	Owner    crypto.Address
}

// CreateDerivedAccountArgs funds and allocates storage at a derived address of
// Owner. Seeds must include the bump. Only Owner can grant the signature of
// the new account, through InvokeSigned with the same seeds.
type CreateDerivedAccountArgs struct {
	Lamports uint64
	Space    uint64
	Owner    crypto.Address
	Seeds    [][]byte
}

// TransferArgs moves lamports between system-owned accounts.
type TransferArgs struct {
	Lamports uint64
}

func encode(tag uint8, args interface{}) []byte {
	payload, err := rlp.EncodeToBytes(args)
	if err != nil {
		panic(fmt.Sprintf("system: encode instruction: %v", err))
	}
	return append([]byte{tag}, payload...)
}

// CreateAccount builds a CreateAccount instruction. Both funder and the new
// account must sign.
func CreateAccount(funder, newAccount crypto.Address, lamports, space uint64, owner crypto.Address) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(funder, true),
			types.NewAccountMeta(newAccount, true),
		},
		Data: encode(InstructionCreateAccount, CreateAccountArgs{Lamports: lamports, Space: space, Owner: owner}),
	}
}

// CreateDerivedAccount builds a CreateDerivedAccount instruction for the
// address derived from seeds under owner. It is meant to be invoked by owner.
func CreateDerivedAccount(funder, newAccount crypto.Address, lamports, space uint64, owner crypto.Address, seeds [][]byte) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(funder, true),
			types.NewAccountMeta(newAccount, true),
		},
		Data: encode(InstructionCreateDerivedAccount, CreateDerivedAccountArgs{
			Lamports: lamports,
			Space:    space,
			Owner:    owner,
			Seeds:    seeds,
		}),
	}
}

// Transfer builds a lamport transfer.
func Transfer(from, to crypto.Address, lamports uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true),
			types.NewAccountMeta(to, false),
		},
		Data: encode(InstructionTransfer, TransferArgs{Lamports: lamports}),
	}
}

// Program implements the system program.
type Program struct{}

// Process implements runtime.Program.
func (Program) Process(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	tag, payload := data[0], data[1:]
	switch tag {
	case InstructionCreateAccount:
		var args CreateAccountArgs
		if err := rlp.DecodeBytes(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		if len(accounts) < 2 {
			return ErrNotEnoughAccounts
		}
		if !accounts[1].IsSigner {
			return fmt.Errorf("%w: new account %s", ErrMissingSignature, accounts[1].Key)
		}
		return create(accounts[0], accounts[1], args.Lamports, args.Space, args.Owner)
	case InstructionCreateDerivedAccount:
		var args CreateDerivedAccountArgs
		if err := rlp.DecodeBytes(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		if len(accounts) < 2 {
			return ErrNotEnoughAccounts
		}
		expected, err := crypto.CreateProgramAddress(args.Seeds, args.Owner)
		if err != nil {
			return err
		}
		if expected != accounts[1].Key {
			return ErrAddressMismatch
		}
		if !accounts[1].IsSigner {
			return fmt.Errorf("%w: derived account %s", ErrMissingSignature, accounts[1].Key)
		}
		return create(accounts[0], accounts[1], args.Lamports, args.Space, args.Owner)
	case InstructionTransfer:
		var args TransferArgs
		if err := rlp.DecodeBytes(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		if len(accounts) < 2 {
			return ErrNotEnoughAccounts
		}
		return transfer(accounts[0], accounts[1], args.Lamports)
	default:
		ctx.Logger().Debug("unknown system instruction", "tag", tag)
		return ErrInvalidInstruction
	}
}

func create(funder, target *runtime.AccountInfo, lamports, space uint64, owner crypto.Address) error {
	if !funder.IsSigner {
		return fmt.Errorf("%w: funder %s", ErrMissingSignature, funder.Key)
	}
	if funder.Key == target.Key {
		return ErrAccountInUse
	}
	if space > MaxSpace {
		return ErrInvalidSpace
	}
	if target.DataLen() != 0 || target.Owner() != ProgramID {
		return fmt.Errorf("%w: %s", ErrAccountInUse, target.Key)
	}
	// Lamports already sent to the address count towards the requested balance.
	var topUp uint64
	if held := target.Lamports(); held < lamports {
		topUp = lamports - held
	}
	if funder.Lamports() < topUp {
		return ErrInsufficientFunds
	}
	funder.SetLamports(funder.Lamports() - topUp)
	target.SetLamports(target.Lamports() + topUp)
	target.Allocate(int(space))
	target.Assign(owner)
	return nil
}

func transfer(from, to *runtime.AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, from.Key)
	}
	if from.Lamports() < lamports {
		return ErrInsufficientFunds
	}
	if from.Key == to.Key {
		return nil
	}
	if to.Lamports() > ^uint64(0)-lamports {
		return ErrInsufficientFunds
	}
	from.SetLamports(from.Lamports() - lamports)
	to.SetLamports(to.Lamports() + lamports)
	return nil
}
