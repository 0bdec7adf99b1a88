package escrow

import (
	"context"
	"testing"

	"escrowchain/core/events"
	"escrowchain/core/runtime"
	"escrowchain/core/state"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/system"
	"escrowchain/native/token"
	"escrowchain/storage"
)

var (
	programID      = DefaultProgramID
	tokenProgramID = token.DefaultProgramID
)

type harness struct {
	t        *testing.T
	rt       *runtime.Runtime
	recorder *events.Recorder
	payer    *crypto.PrivateKey
	mintAuth *crypto.PrivateKey
	mint     crypto.Address
	nonce    uint64
}

func newHarness(t *testing.T, decimals uint8) *harness {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	recorder := &events.Recorder{}
	rt := runtime.New(manager, runtime.WithEmitter(recorder))
	rt.Register(system.ProgramID, "system", system.Program{})
	rt.Register(tokenProgramID, "token", token.Program{})
	rt.Register(programID, "escrow", NewProcessor())

	h := &harness{t: t, rt: rt, recorder: recorder, payer: newKey(t), mintAuth: newKey(t)}
	if err := manager.PutAccount(h.payer.Address(), &types.Account{Lamports: 1_000_000_000_000}); err != nil {
		t.Fatalf("fund payer: %v", err)
	}
	h.mint = h.createMint(decimals)
	return h
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func (h *harness) rentFor(space int) uint64 { return h.rt.Rent().MinimumBalance(space) }

func (h *harness) send(ixs []types.Instruction, signers ...*crypto.PrivateKey) error {
	h.t.Helper()
	h.nonce++
	tx := types.NewTransaction(h.payer.Address(), h.nonce, ixs...)
	if err := tx.Sign(append([]*crypto.PrivateKey{h.payer}, signers...)...); err != nil {
		h.t.Fatalf("sign: %v", err)
	}
	_, err := h.rt.ProcessTransaction(context.Background(), tx)
	return err
}

func (h *harness) mustSend(ixs []types.Instruction, signers ...*crypto.PrivateKey) {
	h.t.Helper()
	if err := h.send(ixs, signers...); err != nil {
		h.t.Fatalf("transaction failed: %v", err)
	}
}

func (h *harness) createMint(decimals uint8) crypto.Address {
	h.t.Helper()
	mintKey := newKey(h.t)
	h.mustSend([]types.Instruction{
		system.CreateAccount(h.payer.Address(), mintKey.Address(), h.rentFor(token.MintLen), token.MintLen, tokenProgramID),
		token.NewInitializeMintInstruction(tokenProgramID, mintKey.Address(), decimals, h.mintAuth.Address()),
	}, mintKey)
	return mintKey.Address()
}

// createTokenAccount allocates and initializes the associated token account of
// owner.
func (h *harness) createTokenAccount(owner crypto.Address) crypto.Address {
	h.t.Helper()
	h.mustSend(h.tokenAccountInstructions(owner, true))
	addr, _, _ := token.FindAssociatedAddress(tokenProgramID, owner, h.mint)
	return addr
}

func (h *harness) tokenAccountInstructions(owner crypto.Address, initialize bool) []types.Instruction {
	h.t.Helper()
	ixs, _, err := token.NewCreateAssociatedAccountInstructions(tokenProgramID, h.payer.Address(), owner, h.mint, initialize)
	if err != nil {
		h.t.Fatalf("token account instructions: %v", err)
	}
	return ixs
}

func (h *harness) mintTo(dst crypto.Address, amount uint64) {
	h.t.Helper()
	h.mustSend([]types.Instruction{
		token.NewMintToInstruction(tokenProgramID, h.mint, dst, h.mintAuth.Address(), amount),
	}, h.mintAuth)
}

func (h *harness) escrowAddress() crypto.Address {
	h.t.Helper()
	addr, _, err := FindEscrowAddress(programID, h.mint, tokenProgramID)
	if err != nil {
		h.t.Fatalf("derive escrow: %v", err)
	}
	return addr
}

// allocateEscrowInstructions creates the custody account of the escrow
// without initializing it.
func (h *harness) allocateEscrowInstructions() []types.Instruction {
	h.t.Helper()
	return h.tokenAccountInstructions(h.escrowAddress(), false)
}

// initEscrowInstruction initializes an escrow slot that must already exist.
func (h *harness) initEscrowInstruction(owner crypto.Address) types.Instruction {
	escrowAddr := h.escrowAddress()
	custody, _, _ := token.FindAssociatedAddress(tokenProgramID, escrowAddr, h.mint)
	return NewInitEscrowInstruction(programID, escrowAddr, custody, h.mint, tokenProgramID, owner)
}

// initEscrow allocates and initializes the escrow of the harness mint.
func (h *harness) initEscrow(owner crypto.Address) (crypto.Address, crypto.Address) {
	h.t.Helper()
	ixs := append(h.allocateEscrowInstructions(), WithRentPayer(h.initEscrowInstruction(owner), h.payer.Address()))
	h.mustSend(ixs)
	escrowAddr := h.escrowAddress()
	custody, _, _ := token.FindAssociatedAddress(tokenProgramID, escrowAddr, h.mint)
	return escrowAddr, custody
}

func (h *harness) jobAddress(escrowAddr, authority crypto.Address) crypto.Address {
	h.t.Helper()
	job, _, err := FindJobAddress(programID, escrowAddr, authority)
	if err != nil {
		h.t.Fatalf("derive job: %v", err)
	}
	return job
}

// fund deposits amount into job; the harness payer covers the job record if
// this is the first deposit.
func (h *harness) fund(depositor *crypto.PrivateKey, source, escrowAddr, custody, job crypto.Address, amount uint64) error {
	h.t.Helper()
	ix := NewFundJobInstruction(programID, source, custody, escrowAddr, job, depositor.Address(), h.mint, tokenProgramID, amount)
	return h.send([]types.Instruction{WithRentPayer(ix, h.payer.Address())}, depositor)
}

func (h *harness) disburse(owner *crypto.PrivateKey, escrowAddr, custody, job, destination crypto.Address, amount uint64) error {
	h.t.Helper()
	return h.send([]types.Instruction{
		NewDisburseFundsInstruction(programID, custody, destination, escrowAddr, job, owner.Address(), h.mint, tokenProgramID, amount),
	}, owner)
}

func (h *harness) account(addr crypto.Address) *types.Account {
	h.t.Helper()
	acc, err := h.rt.GetAccount(addr)
	if err != nil {
		h.t.Fatalf("get account %s: %v", addr, err)
	}
	return acc
}

func (h *harness) escrowRecord(addr crypto.Address) *Escrow {
	h.t.Helper()
	record, err := UnpackEscrow(h.account(addr).Data)
	if err != nil {
		h.t.Fatalf("unpack escrow: %v", err)
	}
	return record
}

func (h *harness) jobRecord(addr crypto.Address) *Job {
	h.t.Helper()
	record, err := UnpackJob(h.account(addr).Data)
	if err != nil {
		h.t.Fatalf("unpack job: %v", err)
	}
	return record
}

func (h *harness) tokenBalance(addr crypto.Address) uint64 {
	h.t.Helper()
	acct, err := token.UnpackAccount(h.account(addr).Data)
	if err != nil {
		h.t.Fatalf("unpack token account: %v", err)
	}
	return acct.Amount
}
