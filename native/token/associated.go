package token

import (
	"escrowchain/core/runtime"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/system"
)

// NewCreateAssociatedAccountInstructions allocates the associated token
// account of owner for mint, funded rent exempt by payer. With initialize set
// it also initializes the account for owner; otherwise the slot is left for a
// program that initializes it itself.
func NewCreateAssociatedAccountInstructions(programID, payer, owner, mint crypto.Address, initialize bool) ([]types.Instruction, crypto.Address, error) {
	create, addr, err := NewCreateAssociatedAccountInstruction(programID, payer, owner, mint)
	if err != nil {
		return nil, crypto.Address{}, err
	}
	ixs := []types.Instruction{create}
	if initialize {
		ixs = append(ixs, NewInitializeAccountInstruction(programID, addr, mint, owner))
	}
	return ixs, addr, nil
}

// NewCreateMintInstructions allocates mint (which must sign) and initializes
// it.
func NewCreateMintInstructions(programID, payer, mint crypto.Address, decimals uint8, authority crypto.Address, rent runtime.Rent) []types.Instruction {
	return []types.Instruction{
		system.CreateAccount(payer, mint, rent.MinimumBalance(MintLen), MintLen, programID),
		NewInitializeMintInstruction(programID, mint, decimals, authority),
	}
}
