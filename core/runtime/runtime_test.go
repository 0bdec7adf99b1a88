package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowchain/core/events"
	"escrowchain/core/state"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/storage"
)

var (
	counterProgram = crypto.LabelAddress("test/counter")
	proxyProgram   = crypto.LabelAddress("test/proxy")
	failProgram    = crypto.LabelAddress("test/fail")
)

type testEvent struct{ name string }

func (e testEvent) EventType() string   { return e.name }
func (e testEvent) Event() *types.Event { return &types.Event{Type: e.name} }

// counter increments the first byte of its first account and emits an event.
func counter(ctx *InvokeContext, accounts []*AccountInfo, _ []byte) error {
	accounts[0].Data()[0]++
	ctx.Emit(testEvent{name: "counter.incremented"})
	return nil
}

type fixture struct {
	t        *testing.T
	rt       *Runtime
	manager  *state.Manager
	recorder *events.Recorder
	payer    *crypto.PrivateKey
	counter  crypto.Address
	nonce    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	recorder := &events.Recorder{}
	rt := New(manager, WithEmitter(recorder))
	rt.Register(counterProgram, "counter", ProgramFunc(counter))
	rt.Register(failProgram, "fail", ProgramFunc(func(*InvokeContext, []*AccountInfo, []byte) error {
		return errTestFailure
	}))

	payer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, manager.PutAccount(payer.Address(), &types.Account{Lamports: 1_000}))

	counterAcct := crypto.LabelAddress("test/counter-account")
	require.NoError(t, manager.PutAccount(counterAcct, types.NewAccount(100, 1, counterProgram)))

	return &fixture{t: t, rt: rt, manager: manager, recorder: recorder, payer: payer, counter: counterAcct}
}

var errTestFailure = &testError{"test: forced failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func (f *fixture) tx(ixs ...types.Instruction) *types.Transaction {
	f.nonce++
	tx := types.NewTransaction(f.payer.Address(), f.nonce, ixs...)
	require.NoError(f.t, tx.Sign(f.payer))
	return tx
}

func (f *fixture) counterValue() byte {
	acc, err := f.rt.GetAccount(f.counter)
	require.NoError(f.t, err)
	return acc.Data[0]
}

func (f *fixture) incrementIx() types.Instruction {
	return types.Instruction{ProgramID: counterProgram, Accounts: []types.AccountMeta{types.NewAccountMeta(f.counter, false)}}
}

func TestProcessTransactionCommits(t *testing.T) {
	f := newFixture(t)
	receipt, err := f.rt.ProcessTransaction(context.Background(), f.tx(f.incrementIx(), f.incrementIx()))
	require.NoError(t, err)
	require.EqualValues(t, 2, f.counterValue())
	require.Len(t, receipt.Events, 2)
	require.Len(t, f.recorder.Events(), 2)

	seen, err := f.manager.HasTransaction(receipt.Hash)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestFailedInstructionRollsBackTransaction(t *testing.T) {
	f := newFixture(t)
	failing := types.Instruction{ProgramID: failProgram}
	_, err := f.rt.ProcessTransaction(context.Background(), f.tx(f.incrementIx(), failing))
	require.ErrorIs(t, err, errTestFailure)
	require.True(t, IsInstructionError(err))

	var ie *InstructionError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, 1, ie.Index)
	require.Equal(t, failProgram, ie.ProgramID)

	require.EqualValues(t, 0, f.counterValue())
	require.Empty(t, f.recorder.Events())
}

func TestReplayRejected(t *testing.T) {
	f := newFixture(t)
	tx := f.tx(f.incrementIx())
	_, err := f.rt.ProcessTransaction(context.Background(), tx)
	require.NoError(t, err)
	_, err = f.rt.ProcessTransaction(context.Background(), tx)
	require.ErrorIs(t, err, ErrDuplicateTx)
	require.EqualValues(t, 1, f.counterValue())
}

func TestMissingSignatureRejected(t *testing.T) {
	f := newFixture(t)
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	ix := f.incrementIx()
	ix.Accounts = append(ix.Accounts, types.NewReadonlyAccountMeta(other.Address(), true))
	tx := types.NewTransaction(f.payer.Address(), 1, ix)
	tx.Signatures = [][]byte{f.payer.Sign([]byte("wrong payload")), make([]byte, 64)}

	_, err = f.rt.ProcessTransaction(context.Background(), tx)
	require.ErrorIs(t, err, types.ErrBadSignature)
	require.EqualValues(t, 0, f.counterValue())
}

func TestHostRulesEnforced(t *testing.T) {
	tests := []struct {
		name    string
		program ProgramFunc
		meta    func(f *fixture) []types.AccountMeta
		want    error
	}{
		{
			name: "read-only account modified",
			program: func(_ *InvokeContext, accounts []*AccountInfo, _ []byte) error {
				accounts[0].Data()[0] = 9
				return nil
			},
			meta: func(f *fixture) []types.AccountMeta {
				return []types.AccountMeta{types.NewReadonlyAccountMeta(f.counter, false)}
			},
			want: ErrReadonlyModified,
		},
		{
			name: "foreign data changed",
			program: func(_ *InvokeContext, accounts []*AccountInfo, _ []byte) error {
				accounts[0].Data()[0] = 9
				return nil
			},
			meta: func(f *fixture) []types.AccountMeta {
				return []types.AccountMeta{types.NewAccountMeta(f.counter, false)}
			},
			want: ErrExternalDataChange,
		},
		{
			name: "foreign lamports spent",
			program: func(_ *InvokeContext, accounts []*AccountInfo, _ []byte) error {
				accounts[0].SetLamports(accounts[0].Lamports() - 10)
				accounts[1].SetLamports(accounts[1].Lamports() + 10)
				return nil
			},
			meta: func(f *fixture) []types.AccountMeta {
				return []types.AccountMeta{
					types.NewAccountMeta(f.counter, false),
					types.NewAccountMeta(f.payer.Address(), true),
				}
			},
			want: ErrExternalSpend,
		},
		{
			name: "lamports minted",
			program: func(_ *InvokeContext, accounts []*AccountInfo, _ []byte) error {
				accounts[0].SetLamports(accounts[0].Lamports() + 1)
				return nil
			},
			meta: func(f *fixture) []types.AccountMeta {
				return []types.AccountMeta{types.NewAccountMeta(f.counter, false)}
			},
			want: ErrUnbalanced,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rogue := crypto.LabelAddress("test/rogue")
			f.rt.Register(rogue, "rogue", tc.program)
			_, err := f.rt.ProcessTransaction(context.Background(), f.tx(types.Instruction{ProgramID: rogue, Accounts: tc.meta(f)}))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUnknownProgram(t *testing.T) {
	f := newFixture(t)
	_, err := f.rt.ProcessTransaction(context.Background(), f.tx(types.Instruction{ProgramID: crypto.LabelAddress("missing")}))
	require.ErrorIs(t, err, ErrUnknownProgram)
}

func TestCrossProgramInvocation(t *testing.T) {
	f := newFixture(t)
	f.rt.Register(proxyProgram, "proxy", ProgramFunc(func(ctx *InvokeContext, accounts []*AccountInfo, _ []byte) error {
		return ctx.Invoke(types.Instruction{
			ProgramID: counterProgram,
			Accounts:  []types.AccountMeta{types.NewAccountMeta(accounts[0].Key, false)},
		})
	}))

	_, err := f.rt.ProcessTransaction(context.Background(), f.tx(types.Instruction{
		ProgramID: proxyProgram,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(f.counter, false)},
	}))
	require.NoError(t, err)
	require.EqualValues(t, 1, f.counterValue())

	// The callee cannot gain write access the caller did not have.
	_, err = f.rt.ProcessTransaction(context.Background(), f.tx(types.Instruction{
		ProgramID: proxyProgram,
		Accounts:  []types.AccountMeta{types.NewReadonlyAccountMeta(f.counter, false)},
	}))
	require.ErrorIs(t, err, ErrPrivilegeEscalation)
	require.EqualValues(t, 1, f.counterValue())
}

func TestInvokeSignedGrantsDerivedSigner(t *testing.T) {
	f := newFixture(t)
	vault, bump, err := crypto.FindProgramAddress([][]byte{[]byte("vault")}, proxyProgram)
	require.NoError(t, err)

	requireSigner := crypto.LabelAddress("test/require-signer")
	f.rt.Register(requireSigner, "require-signer", ProgramFunc(func(_ *InvokeContext, accounts []*AccountInfo, _ []byte) error {
		if !accounts[0].IsSigner {
			return errTestFailure
		}
		return nil
	}))

	var useSeeds bool
	f.rt.Register(proxyProgram, "proxy", ProgramFunc(func(ctx *InvokeContext, accounts []*AccountInfo, _ []byte) error {
		ix := types.Instruction{
			ProgramID: requireSigner,
			Accounts:  []types.AccountMeta{types.NewReadonlyAccountMeta(accounts[0].Key, true)},
		}
		if useSeeds {
			return ctx.InvokeSigned(ix, [][]byte{[]byte("vault"), {bump}})
		}
		return ctx.Invoke(ix)
	}))
	call := func() error {
		_, err := f.rt.ProcessTransaction(context.Background(), f.tx(types.Instruction{
			ProgramID: proxyProgram,
			Accounts:  []types.AccountMeta{types.NewReadonlyAccountMeta(vault, false)},
		}))
		return err
	}

	require.ErrorIs(t, call(), ErrPrivilegeEscalation)
	useSeeds = true
	require.NoError(t, call())
}

func TestInvokeDepthLimit(t *testing.T) {
	f := newFixture(t)
	recursive := crypto.LabelAddress("test/recursive")
	f.rt.Register(recursive, "recursive", ProgramFunc(func(ctx *InvokeContext, _ []*AccountInfo, _ []byte) error {
		return ctx.Invoke(types.Instruction{ProgramID: recursive})
	}))
	_, err := f.rt.ProcessTransaction(context.Background(), f.tx(types.Instruction{ProgramID: recursive}))
	require.ErrorIs(t, err, ErrCallDepth)
}

func TestRentMinimumBalance(t *testing.T) {
	rent := DefaultRent()
	require.EqualValues(t, (128+41)*3480*2, rent.MinimumBalance(41))
	require.True(t, rent.IsExempt(rent.MinimumBalance(41), 41))
	require.False(t, rent.IsExempt(rent.MinimumBalance(41)-1, 41))
}
