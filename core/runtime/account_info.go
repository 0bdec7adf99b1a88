package runtime

import (
	"escrowchain/core/types"
	"escrowchain/crypto"
)

// AccountInfo is a program's handle on one account of the current
// instruction. Handles for the same address share the underlying slot, so a
// change made through one is visible through all of them.
type AccountInfo struct {
	Key        crypto.Address
	IsSigner   bool
	IsWritable bool

	account *types.Account
}

// NewAccountInfo wraps acc. It is exported for program unit tests; the
// runtime builds handles itself.
func NewAccountInfo(key crypto.Address, signer, writable bool, acc *types.Account) *AccountInfo {
	if acc == nil {
		acc = &types.Account{}
	}
	return &AccountInfo{Key: key, IsSigner: signer, IsWritable: writable, account: acc}
}

// Owner returns the program that owns the slot.
func (a *AccountInfo) Owner() crypto.Address { return a.account.Owner }

// Lamports returns the native balance funding the slot.
func (a *AccountInfo) Lamports() uint64 { return a.account.Lamports }

// Data returns the live data region. Writes go straight to the slot.
func (a *AccountInfo) Data() []byte { return a.account.Data }

// DataLen returns the allocated size.
func (a *AccountInfo) DataLen() int { return len(a.account.Data) }

// Executable reports whether the slot holds a program.
func (a *AccountInfo) Executable() bool { return a.account.Executable }

// SetLamports overwrites the native balance.
func (a *AccountInfo) SetLamports(v uint64) { a.account.Lamports = v }

// Assign changes the owning program.
func (a *AccountInfo) Assign(owner crypto.Address) { a.account.Owner = owner }

// Allocate replaces the data region with n zero bytes.
func (a *AccountInfo) Allocate(n int) { a.account.Data = make([]byte, n) }

// Snapshot returns a deep copy of the slot.
func (a *AccountInfo) Snapshot() *types.Account { return a.account.Clone() }
