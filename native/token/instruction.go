package token

import (
	"encoding/binary"

	"escrowchain/core/types"
	"escrowchain/crypto"
)

// DefaultProgramID is the id the token program is registered under unless the
// node configuration overrides it.
var DefaultProgramID = crypto.LabelAddress("escrowchain/token")

const (
	InstructionInitializeMint uint8 = iota
	InstructionInitializeAccount
	InstructionTransfer
	InstructionMintTo
	InstructionCreateAssociatedAccount
)

// NewInitializeMintInstruction initializes mint with the given decimals and
// mint authority.
func NewInitializeMintInstruction(programID, mint crypto.Address, decimals uint8, authority crypto.Address) types.Instruction {
	data := make([]byte, 2+crypto.AddressLength)
	data[0] = InstructionInitializeMint
	data[1] = decimals
	copy(data[2:], authority[:])
	return types.Instruction{
		ProgramID: programID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, false)},
		Data:      data,
	}
}

// NewInitializeAccountInstruction binds account to mint and owner.
func NewInitializeAccountInstruction(programID, account, mint, owner crypto.Address) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(account, false),
			types.NewReadonlyAccountMeta(mint, false),
			types.NewReadonlyAccountMeta(owner, false),
		},
		Data: []byte{InstructionInitializeAccount},
	}
}

// NewTransferInstruction moves amount from source to destination. authority
// must be the owner of source and must sign.
func NewTransferInstruction(programID, source, destination, authority crypto.Address, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false),
			types.NewAccountMeta(destination, false),
			types.NewReadonlyAccountMeta(authority, true),
		},
		Data: amountData(InstructionTransfer, amount),
	}
}

// NewMintToInstruction creates amount new units in destination.
func NewMintToInstruction(programID, mint, destination, authority crypto.Address, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(mint, false),
			types.NewAccountMeta(destination, false),
			types.NewReadonlyAccountMeta(authority, true),
		},
		Data: amountData(InstructionMintTo, amount),
	}
}

// NewCreateAssociatedAccountInstruction allocates the associated token
// account of owner for mint, funded rent exempt by payer. The account is left
// uninitialized; it is a no-op when the account already exists.
func NewCreateAssociatedAccountInstruction(programID, payer, owner, mint crypto.Address) (types.Instruction, crypto.Address, error) {
	addr, _, err := FindAssociatedAddress(programID, owner, mint)
	if err != nil {
		return types.Instruction{}, crypto.Address{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(payer, true),
			types.NewAccountMeta(addr, false),
			types.NewReadonlyAccountMeta(owner, false),
			types.NewReadonlyAccountMeta(mint, false),
		},
		Data: []byte{InstructionCreateAssociatedAccount},
	}, addr, nil
}

func amountData(tag uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// FindAssociatedAddress returns the conventional token account of owner for
// mint, derived under the token program.
func FindAssociatedAddress(programID, owner, mint crypto.Address) (crypto.Address, uint8, error) {
	return crypto.FindProgramAddress([][]byte{owner[:], mint[:]}, programID)
}

// IsAssociatedAddress reports whether addr is the associated token account of
// owner for mint.
func IsAssociatedAddress(programID, addr, owner, mint crypto.Address) bool {
	return crypto.VerifyProgramAddress(addr, [][]byte{owner[:], mint[:]}, programID)
}

// AssociatedSeeds returns the full seed set, bump included, of an associated
// token account.
func AssociatedSeeds(owner, mint crypto.Address, bump uint8) [][]byte {
	return [][]byte{owner[:], mint[:], {bump}}
}
