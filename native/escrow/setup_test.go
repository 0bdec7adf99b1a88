package escrow

import (
	"testing"

	"escrowchain/native/token"
)

func TestSetupHelpersDriveFullLifecycle(t *testing.T) {
	h := newHarness(t, 6)
	owner := newKey(t)

	ixs, addrs, err := NewSetupEscrowInstructions(programID, h.payer.Address(), h.mint, tokenProgramID, owner.Address())
	if err != nil {
		t.Fatalf("setup instructions: %v", err)
	}
	h.mustSend(ixs)
	if addrs.Escrow != h.escrowAddress() {
		t.Fatalf("escrow address = %s, want %s", addrs.Escrow, h.escrowAddress())
	}
	if got := h.escrowRecord(addrs.Escrow); got.Owner != owner.Address() || got.Amount != 0 {
		t.Fatalf("unexpected escrow record %+v", got)
	}

	depositor := newKey(t)
	tokenIxs, source, err := token.NewCreateAssociatedAccountInstructions(tokenProgramID, h.payer.Address(), depositor.Address(), h.mint, true)
	if err != nil {
		t.Fatalf("token account instructions: %v", err)
	}
	h.mustSend(tokenIxs)
	h.mintTo(source, 500)

	job := h.jobAddress(addrs.Escrow, depositor.Address())
	if err := h.fund(depositor, source, addrs.Escrow, addrs.Custody, job, 200); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got := h.tokenBalance(addrs.Custody); got != 200 {
		t.Fatalf("custody balance = %d, want 200", got)
	}
}

func TestWithRentPayerAppendsSigner(t *testing.T) {
	payer := newKey(t).Address()
	ix := NewSetEscrowOwnerInstruction(programID, newKey(t).Address(), newKey(t).Address(), payer)
	extended := WithRentPayer(ix, payer)
	if len(extended.Accounts) != len(ix.Accounts)+1 {
		t.Fatalf("expected %d accounts, got %d", len(ix.Accounts)+1, len(extended.Accounts))
	}
	last := extended.Accounts[len(extended.Accounts)-1]
	if last.Address != payer || !last.IsSigner || !last.IsWritable {
		t.Fatalf("unexpected payer meta %+v", last)
	}
	if len(ix.Accounts) != 2 {
		t.Fatalf("original instruction modified")
	}
}

func TestDeriveAddressesMatchesCustodyConvention(t *testing.T) {
	h := newHarness(t, 0)
	addrs, err := DeriveAddresses(programID, h.mint, tokenProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	custody, _, err := token.FindAssociatedAddress(tokenProgramID, addrs.Escrow, h.mint)
	if err != nil {
		t.Fatalf("associated address: %v", err)
	}
	if addrs.Custody != custody {
		t.Fatalf("custody = %s, want %s", addrs.Custody, custody)
	}
}
