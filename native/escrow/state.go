package escrow

import (
	"encoding/binary"

	"escrowchain/crypto"
)

// AccountType tags every record the escrow program stores.
type AccountType uint8

const (
	AccountTypeUninitialized AccountType = iota
	AccountTypeEscrowV1
	AccountTypeJobV1
)

func (t AccountType) valid() bool { return t <= AccountTypeJobV1 }

func (t AccountType) String() string {
	switch t {
	case AccountTypeUninitialized:
		return "uninitialized"
	case AccountTypeEscrowV1:
		return "escrow_v1"
	case AccountTypeJobV1:
		return "job_v1"
	default:
		return "unknown"
	}
}

const (
	// EscrowLen is the packed size of an Escrow record.
	EscrowLen = 1 + 8 + crypto.AddressLength
	// JobLen is the packed size of a Job record.
	JobLen = 1 + 8 + crypto.AddressLength
)

// Escrow is the program-wide pool record. Amount is the total credited to all
// jobs and not yet disbursed.
type Escrow struct {
	AccountType AccountType    `json:"accountType"`
	Amount      uint64         `json:"amount"`
	Owner       crypto.Address `json:"owner"`
}

// Init resets the record to a fresh, empty escrow controlled by owner.
func (e *Escrow) Init(owner crypto.Address) {
	e.AccountType = AccountTypeEscrowV1
	e.Amount = 0
	e.Owner = owner
}

func (e *Escrow) IsInitialized() bool { return e.AccountType != AccountTypeUninitialized }

// Pack writes the record into the first EscrowLen bytes of dst.
func (e *Escrow) Pack(dst []byte) error {
	return packRecord(dst, e.AccountType, e.Amount, e.Owner)
}

// UnpackEscrow decodes an initialized escrow record.
func UnpackEscrow(data []byte) (*Escrow, error) {
	e, err := UnpackEscrowUnchecked(data)
	if err != nil {
		return nil, err
	}
	if e.AccountType != AccountTypeEscrowV1 {
		return nil, ErrInvalidAccountData
	}
	return e, nil
}

// UnpackEscrowUnchecked decodes a record that may still be uninitialized.
// Records tagged as any other known or unknown type are rejected.
func UnpackEscrowUnchecked(data []byte) (*Escrow, error) {
	kind, amount, owner, err := unpackRecord(data, AccountTypeEscrowV1)
	if err != nil {
		return nil, err
	}
	return &Escrow{AccountType: kind, Amount: amount, Owner: owner}, nil
}

// Job is the per-depositor record. Amount is the outstanding balance funded by
// Authority.
type Job struct {
	AccountType AccountType    `json:"accountType"`
	Amount      uint64         `json:"amount"`
	Authority   crypto.Address `json:"authority"`
}

// Init resets the record to a fresh job for authority.
func (j *Job) Init(authority crypto.Address) {
	j.AccountType = AccountTypeJobV1
	j.Amount = 0
	j.Authority = authority
}

func (j *Job) IsInitialized() bool { return j.AccountType != AccountTypeUninitialized }

// Pack writes the record into the first JobLen bytes of dst.
func (j *Job) Pack(dst []byte) error {
	return packRecord(dst, j.AccountType, j.Amount, j.Authority)
}

// UnpackJob decodes an initialized job record.
func UnpackJob(data []byte) (*Job, error) {
	j, err := UnpackJobUnchecked(data)
	if err != nil {
		return nil, err
	}
	if j.AccountType != AccountTypeJobV1 {
		return nil, ErrInvalidAccountData
	}
	return j, nil
}

// UnpackJobUnchecked decodes a job record that may still be uninitialized.
func UnpackJobUnchecked(data []byte) (*Job, error) {
	kind, amount, authority, err := unpackRecord(data, AccountTypeJobV1)
	if err != nil {
		return nil, err
	}
	return &Job{AccountType: kind, Amount: amount, Authority: authority}, nil
}

// Both record kinds share the [type:1][amount:8 LE][address:32] layout.
func unpackRecord(data []byte, want AccountType) (AccountType, uint64, crypto.Address, error) {
	var addr crypto.Address
	if len(data) < 1+8+crypto.AddressLength {
		return 0, 0, addr, ErrInvalidAccountData
	}
	kind := AccountType(data[0])
	if !kind.valid() || (kind != AccountTypeUninitialized && kind != want) {
		return 0, 0, addr, ErrInvalidAccountData
	}
	amount := binary.LittleEndian.Uint64(data[1:9])
	copy(addr[:], data[9:9+crypto.AddressLength])
	return kind, amount, addr, nil
}

func packRecord(dst []byte, kind AccountType, amount uint64, addr crypto.Address) error {
	if len(dst) < 1+8+crypto.AddressLength {
		return ErrInvalidAccountData
	}
	dst[0] = byte(kind)
	binary.LittleEndian.PutUint64(dst[1:9], amount)
	copy(dst[9:9+crypto.AddressLength], addr[:])
	return nil
}
