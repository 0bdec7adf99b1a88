package escrow

import (
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/token"
)

// Addresses groups the derived accounts of the escrow of one mint.
type Addresses struct {
	Escrow  crypto.Address
	Bump    uint8
	Custody crypto.Address
}

// DeriveAddresses computes the escrow of mint and its custody token account.
func DeriveAddresses(programID, mint, tokenProgram crypto.Address) (Addresses, error) {
	escrowAddr, bump, err := FindEscrowAddress(programID, mint, tokenProgram)
	if err != nil {
		return Addresses{}, err
	}
	custody, _, err := token.FindAssociatedAddress(tokenProgram, escrowAddr, mint)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Escrow: escrowAddr, Bump: bump, Custody: custody}, nil
}

// WithRentPayer lets an InitEscrow or FundJob instruction allocate the escrow
// or job record it needs, funded by payer. payer must sign the transaction.
// Records that already exist are left as they are.
func WithRentPayer(ix types.Instruction, payer crypto.Address) types.Instruction {
	accounts := make([]types.AccountMeta, len(ix.Accounts), len(ix.Accounts)+1)
	copy(accounts, ix.Accounts)
	ix.Accounts = append(accounts, types.NewAccountMeta(payer, true))
	return ix
}

// NewSetupEscrowInstructions allocates the custody account of the escrow and
// initializes the escrow for owner, paid by payer.
func NewSetupEscrowInstructions(programID, payer, mint, tokenProgram, owner crypto.Address) ([]types.Instruction, Addresses, error) {
	addrs, err := DeriveAddresses(programID, mint, tokenProgram)
	if err != nil {
		return nil, Addresses{}, err
	}
	custody, _, err := token.NewCreateAssociatedAccountInstruction(tokenProgram, payer, addrs.Escrow, mint)
	if err != nil {
		return nil, Addresses{}, err
	}
	initEscrow := NewInitEscrowInstruction(programID, addrs.Escrow, addrs.Custody, mint, tokenProgram, owner)
	return []types.Instruction{custody, WithRentPayer(initEscrow, payer)}, addrs, nil
}
