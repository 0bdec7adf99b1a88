package types

import "escrowchain/crypto"

// AccountMeta describes how an instruction uses one account.
type AccountMeta struct {
	Address    crypto.Address `json:"address"`
	IsSigner   bool           `json:"isSigner"`
	IsWritable bool           `json:"isWritable"`
}

// NewAccountMeta returns a writable account meta.
func NewAccountMeta(addr crypto.Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: signer, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only account meta.
func NewReadonlyAccountMeta(addr crypto.Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: signer}
}

// Instruction is a call descriptor: the program to run, the ordered accounts it
// operates on and the opaque instruction data.
type Instruction struct {
	ProgramID crypto.Address `json:"programId"`
	Accounts  []AccountMeta  `json:"accounts"`
	Data      []byte         `json:"data"`
}
