package genesis

import (
	"fmt"
	"math/bits"

	"escrowchain/core/runtime"
	"escrowchain/core/state"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/token"
)

// BuildAccounts materializes the genesis state. Mints and token accounts are
// owned by tokenProgram and funded rent exempt; each mint's supply is the sum
// of its token account balances.
func BuildAccounts(spec *GenesisSpec, rent runtime.Rent, tokenProgram crypto.Address) (map[crypto.Address]*types.Account, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	accounts := make(map[crypto.Address]*types.Account)

	for _, acc := range spec.Accounts {
		addr, err := crypto.ParseAddress(acc.Address)
		if err != nil {
			return nil, err
		}
		accounts[addr] = &types.Account{Lamports: acc.Lamports}
	}

	mints := make(map[string]crypto.Address, len(spec.Mints))
	records := make(map[string]*token.Mint, len(spec.Mints))
	for _, m := range spec.Mints {
		addr, err := m.MintAddress()
		if err != nil {
			return nil, err
		}
		record := &token.Mint{Initialized: true, Decimals: m.Decimals}
		if m.Authority != "" {
			if record.Authority, err = crypto.ParseAddress(m.Authority); err != nil {
				return nil, err
			}
		}
		mints[m.Name] = addr
		records[m.Name] = record
	}

	for _, ta := range spec.TokenAccounts {
		owner, err := crypto.ParseAddress(ta.Owner)
		if err != nil {
			return nil, err
		}
		mintAddr, ok := mints[ta.Mint]
		if !ok {
			return nil, fmt.Errorf("token account for unknown mint %q", ta.Mint)
		}
		record := records[ta.Mint]
		supply, carry := bits.Add64(record.Supply, ta.Amount, 0)
		if carry != 0 {
			return nil, fmt.Errorf("mint %q: supply overflows", ta.Mint)
		}
		record.Supply = supply

		addr, _, err := token.FindAssociatedAddress(tokenProgram, owner, mintAddr)
		if err != nil {
			return nil, err
		}
		if _, taken := accounts[addr]; taken {
			return nil, fmt.Errorf("token account %s collides with another genesis account", addr)
		}
		acct := types.NewAccount(rent.MinimumBalance(token.AccountLen), token.AccountLen, tokenProgram)
		holding := token.Account{Mint: mintAddr, Owner: owner, Amount: ta.Amount, State: token.AccountStateInitialized}
		if err := holding.Pack(acct.Data); err != nil {
			return nil, err
		}
		accounts[addr] = acct
	}

	for name, addr := range mints {
		acct := types.NewAccount(rent.MinimumBalance(token.MintLen), token.MintLen, tokenProgram)
		if err := records[name].Pack(acct.Data); err != nil {
			return nil, err
		}
		accounts[addr] = acct
	}
	return accounts, nil
}

// Apply writes the genesis state once. Re-applying the same genesis is a
// no-op; a store initialized from a different genesis is an error.
func Apply(manager *state.Manager, spec *GenesisSpec, rent runtime.Rent, tokenProgram crypto.Address) (bool, error) {
	hash, err := spec.Hash()
	if err != nil {
		return false, fmt.Errorf("hash genesis: %w", err)
	}
	existing, applied, err := manager.GenesisHash()
	if err != nil {
		return false, err
	}
	if applied {
		if existing != hash {
			return false, fmt.Errorf("store was initialized from a different genesis (%x)", existing[:8])
		}
		return false, nil
	}
	accounts, err := BuildAccounts(spec, rent, tokenProgram)
	if err != nil {
		return false, err
	}
	if err := manager.CommitGenesis(hash, accounts); err != nil {
		return false, err
	}
	return true, nil
}
