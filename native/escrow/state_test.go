package escrow

import (
	"bytes"
	"errors"
	"testing"

	"escrowchain/crypto"
)

func TestEscrowRecordLayout(t *testing.T) {
	owner := crypto.LabelAddress("owner")
	record := &Escrow{}
	record.Init(owner)
	record.Amount = 0x0102030405060708

	buf := make([]byte, EscrowLen)
	if err := record.Pack(buf); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if buf[0] != byte(AccountTypeEscrowV1) {
		t.Fatalf("unexpected tag %d", buf[0])
	}
	if !bytes.Equal(buf[1:9], []byte{8, 7, 6, 5, 4, 3, 2, 1}) {
		t.Fatalf("amount not little endian: %x", buf[1:9])
	}
	if !bytes.Equal(buf[9:], owner[:]) {
		t.Fatalf("owner bytes mismatch")
	}

	decoded, err := UnpackEscrow(buf)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if *decoded != *record {
		t.Fatalf("decoded %+v, want %+v", decoded, record)
	}
}

func TestUnpackRejectsWrongDiscriminant(t *testing.T) {
	job := &Job{}
	job.Init(crypto.LabelAddress("authority"))
	buf := make([]byte, JobLen)
	if err := job.Pack(buf); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if _, err := UnpackEscrow(buf); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected invalid account data decoding a job as escrow, got %v", err)
	}
	if _, err := UnpackEscrowUnchecked(buf); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("unchecked decode accepted a job record: %v", err)
	}

	buf[0] = 7
	if _, err := UnpackJobUnchecked(buf); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("unchecked decode accepted unknown tag: %v", err)
	}
}

func TestUnpackUncheckedAcceptsZeroedSlot(t *testing.T) {
	record, err := UnpackJobUnchecked(make([]byte, JobLen))
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if record.IsInitialized() {
		t.Fatalf("zeroed slot reported as initialized")
	}
	if _, err := UnpackJob(make([]byte, JobLen)); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("checked decode accepted uninitialized record: %v", err)
	}
}

func TestUnpackRejectsShortBuffer(t *testing.T) {
	if _, err := UnpackEscrowUnchecked(make([]byte, EscrowLen-1)); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected invalid account data, got %v", err)
	}
	if err := (&Job{}).Pack(make([]byte, 10)); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("pack into short buffer: %v", err)
	}
}
