package types

import "escrowchain/crypto"

// Account is a host storage slot. A slot that has never been written reads
// as an empty account owned by the system program.
type Account struct {
	Lamports   uint64         `json:"lamports"`
	Owner      crypto.Address `json:"owner"`
	Data       []byte         `json:"data"`
	Executable bool           `json:"executable"`
}

// NewAccount allocates a zeroed data region of the given size.
func NewAccount(lamports uint64, space int, owner crypto.Address) *Account {
	return &Account{Lamports: lamports, Owner: owner, Data: make([]byte, space)}
}

// Clone returns a deep copy so callers can mutate it without affecting the
// stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	clone := *a
	if a.Data != nil {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return &clone
}

// IsEmpty reports whether the slot has never been funded or allocated.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0 && a.Owner.IsZero())
}
