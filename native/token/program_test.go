package token_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowchain/core/runtime"
	"escrowchain/core/state"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/system"
	"escrowchain/native/token"
	"escrowchain/storage"
)

type env struct {
	t     *testing.T
	rt    *runtime.Runtime
	payer *crypto.PrivateKey
	nonce uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	rt := runtime.New(manager)
	rt.Register(system.ProgramID, "system", system.Program{})
	rt.Register(token.DefaultProgramID, "token", token.Program{})
	payer := mustKey(t)
	require.NoError(t, manager.PutAccount(payer.Address(), &types.Account{Lamports: 1_000_000_000_000}))
	return &env{t: t, rt: rt, payer: payer}
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func (e *env) send(ixs []types.Instruction, signers ...*crypto.PrivateKey) error {
	e.nonce++
	tx := types.NewTransaction(e.payer.Address(), e.nonce, ixs...)
	require.NoError(e.t, tx.Sign(append([]*crypto.PrivateKey{e.payer}, signers...)...))
	_, err := e.rt.ProcessTransaction(context.Background(), tx)
	return err
}

func (e *env) rent(n int) uint64 { return e.rt.Rent().MinimumBalance(n) }

func (e *env) newMint(authority crypto.Address) crypto.Address {
	mintKey := mustKey(e.t)
	require.NoError(e.t, e.send([]types.Instruction{
		system.CreateAccount(e.payer.Address(), mintKey.Address(), e.rent(token.MintLen), token.MintLen, token.DefaultProgramID),
		token.NewInitializeMintInstruction(token.DefaultProgramID, mintKey.Address(), 9, authority),
	}, mintKey))
	return mintKey.Address()
}

func (e *env) newAccount(mint, owner crypto.Address) crypto.Address {
	ixs, addr, err := token.NewCreateAssociatedAccountInstructions(token.DefaultProgramID, e.payer.Address(), owner, mint, true)
	require.NoError(e.t, err)
	require.NoError(e.t, e.send(ixs))
	return addr
}

func (e *env) balance(addr crypto.Address) uint64 {
	acc, err := e.rt.GetAccount(addr)
	require.NoError(e.t, err)
	acct, err := token.UnpackAccount(acc.Data)
	require.NoError(e.t, err)
	return acct.Amount
}

func TestMintAndTransfer(t *testing.T) {
	e := newEnv(t)
	authority := mustKey(t)
	alice, bob := mustKey(t), mustKey(t)
	mint := e.newMint(authority.Address())
	aliceAcct := e.newAccount(mint, alice.Address())
	bobAcct := e.newAccount(mint, bob.Address())

	require.NoError(t, e.send([]types.Instruction{
		token.NewMintToInstruction(token.DefaultProgramID, mint, aliceAcct, authority.Address(), 100),
	}, authority))
	require.NoError(t, e.send([]types.Instruction{
		token.NewTransferInstruction(token.DefaultProgramID, aliceAcct, bobAcct, alice.Address(), 40),
	}, alice))

	require.EqualValues(t, 60, e.balance(aliceAcct))
	require.EqualValues(t, 40, e.balance(bobAcct))

	acc, err := e.rt.GetAccount(mint)
	require.NoError(t, err)
	m, err := token.UnpackMint(acc.Data)
	require.NoError(t, err)
	require.EqualValues(t, 100, m.Supply)
	require.EqualValues(t, 9, m.Decimals)
}

func TestTransferRejections(t *testing.T) {
	e := newEnv(t)
	authority := mustKey(t)
	alice, bob := mustKey(t), mustKey(t)
	mint := e.newMint(authority.Address())
	aliceAcct := e.newAccount(mint, alice.Address())
	bobAcct := e.newAccount(mint, bob.Address())
	require.NoError(t, e.send([]types.Instruction{
		token.NewMintToInstruction(token.DefaultProgramID, mint, aliceAcct, authority.Address(), 10),
	}, authority))

	err := e.send([]types.Instruction{
		token.NewTransferInstruction(token.DefaultProgramID, aliceAcct, bobAcct, alice.Address(), 11),
	}, alice)
	require.ErrorIs(t, err, token.ErrInsufficientFunds)

	err = e.send([]types.Instruction{
		token.NewTransferInstruction(token.DefaultProgramID, aliceAcct, bobAcct, bob.Address(), 1),
	}, bob)
	require.ErrorIs(t, err, token.ErrOwnerMismatch)

	otherMint := e.newMint(authority.Address())
	carol := mustKey(t)
	carolAcct := e.newAccount(otherMint, carol.Address())
	err = e.send([]types.Instruction{
		token.NewTransferInstruction(token.DefaultProgramID, aliceAcct, carolAcct, alice.Address(), 1),
	}, alice)
	require.ErrorIs(t, err, token.ErrMintMismatch)

	require.EqualValues(t, 10, e.balance(aliceAcct))
	require.EqualValues(t, 0, e.balance(bobAcct))
}

func TestSelfTransferIsNoop(t *testing.T) {
	e := newEnv(t)
	authority := mustKey(t)
	alice := mustKey(t)
	mint := e.newMint(authority.Address())
	aliceAcct := e.newAccount(mint, alice.Address())
	require.NoError(t, e.send([]types.Instruction{
		token.NewMintToInstruction(token.DefaultProgramID, mint, aliceAcct, authority.Address(), 7),
	}, authority))

	require.NoError(t, e.send([]types.Instruction{
		token.NewTransferInstruction(token.DefaultProgramID, aliceAcct, aliceAcct, alice.Address(), 7),
	}, alice))
	require.EqualValues(t, 7, e.balance(aliceAcct))

	err := e.send([]types.Instruction{
		token.NewTransferInstruction(token.DefaultProgramID, aliceAcct, aliceAcct, alice.Address(), 8),
	}, alice)
	require.ErrorIs(t, err, token.ErrInsufficientFunds)
}

func TestMintToOverflowAndAuthority(t *testing.T) {
	e := newEnv(t)
	authority := mustKey(t)
	alice := mustKey(t)
	mint := e.newMint(authority.Address())
	aliceAcct := e.newAccount(mint, alice.Address())

	require.NoError(t, e.send([]types.Instruction{
		token.NewMintToInstruction(token.DefaultProgramID, mint, aliceAcct, authority.Address(), math.MaxUint64),
	}, authority))
	err := e.send([]types.Instruction{
		token.NewMintToInstruction(token.DefaultProgramID, mint, aliceAcct, authority.Address(), 1),
	}, authority)
	require.ErrorIs(t, err, token.ErrOverflow)

	err = e.send([]types.Instruction{
		token.NewMintToInstruction(token.DefaultProgramID, mint, aliceAcct, alice.Address(), 1),
	}, alice)
	require.ErrorIs(t, err, token.ErrOwnerMismatch)
}

func TestInitializeAccountTwiceFails(t *testing.T) {
	e := newEnv(t)
	alice := mustKey(t)
	mint := e.newMint(mustKey(t).Address())
	acct := e.newAccount(mint, alice.Address())

	err := e.send([]types.Instruction{
		token.NewInitializeAccountInstruction(token.DefaultProgramID, acct, mint, alice.Address()),
	})
	require.True(t, errors.Is(err, token.ErrAlreadyInUse), "got %v", err)
}

func TestCreateAssociatedAccount(t *testing.T) {
	e := newEnv(t)
	alice := mustKey(t)
	mint := e.newMint(mustKey(t).Address())

	create, addr, err := token.NewCreateAssociatedAccountInstruction(token.DefaultProgramID, e.payer.Address(), alice.Address(), mint)
	require.NoError(t, err)
	require.True(t, token.IsAssociatedAddress(token.DefaultProgramID, addr, alice.Address(), mint))
	require.NoError(t, e.send([]types.Instruction{create}))

	acc, err := e.rt.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, token.DefaultProgramID, acc.Owner)
	require.Len(t, acc.Data, token.AccountLen)
	require.EqualValues(t, e.rent(token.AccountLen), acc.Lamports)
	decoded, err := token.UnpackAccount(acc.Data)
	require.NoError(t, err)
	require.False(t, decoded.IsInitialized())

	// Repeating the request leaves the account alone.
	require.NoError(t, e.send([]types.Instruction{create}))
	after, err := e.rt.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, acc, after)

	wrong := create
	wrong.Accounts = append([]types.AccountMeta(nil), create.Accounts...)
	wrong.Accounts[2] = types.NewReadonlyAccountMeta(mustKey(t).Address(), false)
	require.ErrorIs(t, e.send([]types.Instruction{wrong}), token.ErrAddressMismatch)
}

func TestAssociatedAccountOnlyInitializesForItsOwner(t *testing.T) {
	e := newEnv(t)
	alice, mallory := mustKey(t), mustKey(t)
	mint := e.newMint(mustKey(t).Address())

	ixs, addr, err := token.NewCreateAssociatedAccountInstructions(token.DefaultProgramID, e.payer.Address(), alice.Address(), mint, false)
	require.NoError(t, err)
	require.NoError(t, e.send(ixs))

	err = e.send([]types.Instruction{
		token.NewInitializeAccountInstruction(token.DefaultProgramID, addr, mint, mallory.Address()),
	})
	require.ErrorIs(t, err, token.ErrAddressMismatch)

	require.NoError(t, e.send([]types.Instruction{
		token.NewInitializeAccountInstruction(token.DefaultProgramID, addr, mint, alice.Address()),
	}))
	acc, err := e.rt.GetAccount(addr)
	require.NoError(t, err)
	decoded, err := token.UnpackAccount(acc.Data)
	require.NoError(t, err)
	require.Equal(t, alice.Address(), decoded.Owner)
}

func TestStateLayouts(t *testing.T) {
	owner := crypto.LabelAddress("owner")
	mint := crypto.LabelAddress("mint")
	buf := make([]byte, token.AccountLen)
	acct := token.Account{Mint: mint, Owner: owner, Amount: 42, State: token.AccountStateInitialized}
	require.NoError(t, acct.Pack(buf))
	require.Equal(t, mint[:], buf[:32])
	require.Equal(t, owner[:], buf[32:64])
	decoded, err := token.UnpackAccount(buf)
	require.NoError(t, err)
	require.Equal(t, acct, decoded)

	buf[72] = 9
	_, err = token.UnpackAccount(buf)
	require.ErrorIs(t, err, token.ErrInvalidAccountData)

	_, err = token.UnpackMint(make([]byte, token.MintLen-1))
	require.ErrorIs(t, err, token.ErrInvalidAccountData)
}
