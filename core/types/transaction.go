package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"escrowchain/crypto"
)

var (
	ErrNoInstructions   = errors.New("transaction: no instructions")
	ErrMissingSignature = errors.New("transaction: missing signature")
	ErrBadSignature     = errors.New("transaction: signature verification failed")
)

// Transaction bundles instructions that must all succeed or all fail. Every
// account flagged as a signer in any instruction, plus the fee payer, must
// provide a signature over SigningPayload.
type Transaction struct {
	FeePayer     crypto.Address `json:"feePayer"`
	Nonce        uint64         `json:"nonce"`
	Instructions []Instruction  `json:"instructions"`
	Signatures   [][]byte       `json:"signatures"`
}

type signingBody struct {
	FeePayer     crypto.Address
	Nonce        uint64
	Instructions []Instruction
}

// NewTransaction builds an unsigned transaction.
func NewTransaction(feePayer crypto.Address, nonce uint64, instructions ...Instruction) *Transaction {
	return &Transaction{FeePayer: feePayer, Nonce: nonce, Instructions: instructions}
}

// SigningPayload is the RLP encoding of everything except the signatures.
func (tx *Transaction) SigningPayload() ([]byte, error) {
	return rlp.EncodeToBytes(signingBody{
		FeePayer:     tx.FeePayer,
		Nonce:        tx.Nonce,
		Instructions: tx.Instructions,
	})
}

// Hash identifies the transaction independently of its signatures.
func (tx *Transaction) Hash() ([32]byte, error) {
	payload, err := tx.SigningPayload()
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(payload), nil
}

// Signers lists the required signers in a stable order: the fee payer first,
// then every signer account in order of first appearance.
func (tx *Transaction) Signers() []crypto.Address {
	seen := map[crypto.Address]struct{}{tx.FeePayer: {}}
	signers := []crypto.Address{tx.FeePayer}
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.Address]; ok {
				continue
			}
			seen[meta.Address] = struct{}{}
			signers = append(signers, meta.Address)
		}
	}
	return signers
}

// Sign fills Signatures using the supplied keys. Every required signer must be
// covered by one of the keys.
func (tx *Transaction) Sign(keys ...*crypto.PrivateKey) error {
	payload, err := tx.SigningPayload()
	if err != nil {
		return err
	}
	byAddr := make(map[crypto.Address]*crypto.PrivateKey, len(keys))
	for _, key := range keys {
		if key != nil {
			byAddr[key.Address()] = key
		}
	}
	signers := tx.Signers()
	sigs := make([][]byte, len(signers))
	for i, signer := range signers {
		key, ok := byAddr[signer]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSignature, signer)
		}
		sigs[i] = key.Sign(payload)
	}
	tx.Signatures = sigs
	return nil
}

// VerifySignatures checks that every required signer signed the payload.
func (tx *Transaction) VerifySignatures() error {
	if len(tx.Instructions) == 0 {
		return ErrNoInstructions
	}
	payload, err := tx.SigningPayload()
	if err != nil {
		return err
	}
	signers := tx.Signers()
	if len(tx.Signatures) != len(signers) {
		return fmt.Errorf("%w: want %d signatures, got %d", ErrMissingSignature, len(signers), len(tx.Signatures))
	}
	for i, signer := range signers {
		if !crypto.Verify(signer, payload, tx.Signatures[i]) {
			return fmt.Errorf("%w: %s", ErrBadSignature, signer)
		}
	}
	return nil
}
