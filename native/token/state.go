package token

import (
	"encoding/binary"

	"escrowchain/crypto"
)

const (
	// MintLen is the packed size of a Mint.
	MintLen = 1 + 1 + 8 + crypto.AddressLength
	// AccountLen is the packed size of an Account.
	AccountLen = crypto.AddressLength + crypto.AddressLength + 8 + 1
)

// AccountState is the lifecycle marker of a token account.
type AccountState uint8

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
)

// Mint describes a fungible asset.
type Mint struct {
	Initialized bool
	Decimals    uint8
	Supply      uint64
	Authority   crypto.Address
}

// UnpackMint decodes a mint record. The buffer may be longer than MintLen.
func UnpackMint(data []byte) (Mint, error) {
	if len(data) < MintLen {
		return Mint{}, ErrInvalidAccountData
	}
	var m Mint
	switch data[0] {
	case 0:
	case 1:
		m.Initialized = true
	default:
		return Mint{}, ErrInvalidAccountData
	}
	m.Decimals = data[1]
	m.Supply = binary.LittleEndian.Uint64(data[2:10])
	copy(m.Authority[:], data[10:MintLen])
	return m, nil
}

// Pack writes the mint into dst.
func (m Mint) Pack(dst []byte) error {
	if len(dst) < MintLen {
		return ErrInvalidAccountData
	}
	if m.Initialized {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	dst[1] = m.Decimals
	binary.LittleEndian.PutUint64(dst[2:10], m.Supply)
	copy(dst[10:MintLen], m.Authority[:])
	return nil
}

// Account is a balance of one mint held on behalf of Owner.
type Account struct {
	Mint   crypto.Address
	Owner  crypto.Address
	Amount uint64
	State  AccountState
}

func (a Account) IsInitialized() bool { return a.State == AccountStateInitialized }

// UnpackAccount decodes a token account record.
func UnpackAccount(data []byte) (Account, error) {
	if len(data) < AccountLen {
		return Account{}, ErrInvalidAccountData
	}
	var a Account
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	a.Amount = binary.LittleEndian.Uint64(data[64:72])
	a.State = AccountState(data[72])
	if a.State > AccountStateInitialized {
		return Account{}, ErrInvalidAccountData
	}
	return a, nil
}

// Pack writes the account into dst.
func (a Account) Pack(dst []byte) error {
	if len(dst) < AccountLen {
		return ErrInvalidAccountData
	}
	copy(dst[0:32], a.Mint[:])
	copy(dst[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(dst[64:72], a.Amount)
	dst[72] = byte(a.State)
	return nil
}
