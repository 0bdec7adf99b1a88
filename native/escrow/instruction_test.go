package escrow

import (
	"errors"
	"testing"

	"escrowchain/crypto"
)

func TestUnpackInstruction(t *testing.T) {
	owner := crypto.LabelAddress("owner")
	tests := []struct {
		name  string
		input []byte
		want  Instruction
	}{
		{"init", append([]byte{0}, owner[:]...), InitEscrow{Owner: owner}},
		{"set owner", append([]byte{1}, owner[:]...), SetEscrowOwner{NewOwner: owner}},
		{"fund", []byte{2, 0xe8, 0x03, 0, 0, 0, 0, 0, 0}, FundJob{Amount: 1000}},
		{"disburse", []byte{3, 1, 0, 0, 0, 0, 0, 0, 0}, DisburseFunds{Amount: 1}},
		{"trailing bytes ignored", []byte{2, 5, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}, FundJob{Amount: 5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := UnpackInstruction(tc.input)
			if err != nil {
				t.Fatalf("unpack: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestUnpackInstructionRejectsMalformedInput(t *testing.T) {
	for name, input := range map[string][]byte{
		"empty":        nil,
		"unknown tag":  {4},
		"short owner":  append([]byte{0}, make([]byte, 31)...),
		"short amount": {3, 1, 2, 3},
		"tag only":     {2},
		"high bit tag": {0x80, 0, 0, 0, 0, 0, 0, 0, 0},
	} {
		if _, err := UnpackInstruction(input); !errors.Is(err, ErrInstructionUnpack) {
			t.Fatalf("%s: expected ErrInstructionUnpack, got %v", name, err)
		}
	}
}

func TestPackInstructionRoundTrip(t *testing.T) {
	for _, ix := range []Instruction{
		InitEscrow{Owner: crypto.LabelAddress("a")},
		SetEscrowOwner{NewOwner: crypto.LabelAddress("b")},
		FundJob{Amount: 1_000_000_000},
		DisburseFunds{Amount: ^uint64(0)},
	} {
		decoded, err := UnpackInstruction(PackInstruction(ix))
		if err != nil {
			t.Fatalf("%s: %v", ix.Name(), err)
		}
		if decoded != ix {
			t.Fatalf("%s: got %#v", ix.Name(), decoded)
		}
	}
}

func TestBuilderAccountOrder(t *testing.T) {
	mint := crypto.LabelAddress("mint")
	authority := crypto.LabelAddress("authority")
	escrowAddr, _, err := FindEscrowAddress(DefaultProgramID, mint, tokenProgramID)
	if err != nil {
		t.Fatalf("derive escrow: %v", err)
	}
	job, _, err := FindJobAddress(DefaultProgramID, escrowAddr, authority)
	if err != nil {
		t.Fatalf("derive job: %v", err)
	}
	source := crypto.LabelAddress("source")
	custody := crypto.LabelAddress("custody")

	ix := NewFundJobInstruction(DefaultProgramID, source, custody, escrowAddr, job, authority, mint, tokenProgramID, 10)
	if len(ix.Accounts) != 7 {
		t.Fatalf("unexpected account count %d", len(ix.Accounts))
	}
	if ix.Accounts[2].Address != escrowAddr || ix.Accounts[3].Address != job {
		t.Fatalf("escrow/job out of order")
	}
	if !ix.Accounts[4].IsSigner || ix.Accounts[4].IsWritable {
		t.Fatalf("authority must be a read-only signer")
	}
	if ix.Accounts[5].IsWritable || ix.Accounts[6].IsWritable {
		t.Fatalf("mint and token program must be read-only")
	}

	if !crypto.VerifyProgramAddress(escrowAddr, [][]byte{EscrowSeedPrefix, mint[:], tokenProgramID[:]}, DefaultProgramID) {
		t.Fatalf("escrow address does not verify")
	}
	if crypto.IsOnCurve(job) {
		t.Fatalf("job address on curve")
	}
}
