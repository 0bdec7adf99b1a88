package rpc

import (
	"encoding/hex"
	"fmt"

	"escrowchain/core/runtime"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
)

// ReceiptView is the JSON form of a committed transaction.
type ReceiptView struct {
	Hash   string         `json:"hash"`
	Events []*types.Event `json:"events"`
}

func newReceiptView(receipt *runtime.Receipt) ReceiptView {
	evts := receipt.Events
	if evts == nil {
		evts = []*types.Event{}
	}
	return ReceiptView{Hash: hex.EncodeToString(receipt.Hash[:]), Events: evts}
}

// AccountView is the JSON form of a host account. Data is base64 encoded.
type AccountView struct {
	Address    crypto.Address `json:"address"`
	Lamports   uint64         `json:"lamports,string"`
	Owner      crypto.Address `json:"owner"`
	Data       []byte         `json:"data"`
	Executable bool           `json:"executable"`
}

// EscrowView is the decoded escrow record.
type EscrowView struct {
	Address     crypto.Address `json:"address"`
	AccountType string         `json:"accountType"`
	Amount      uint64         `json:"amount,string"`
	Owner       crypto.Address `json:"owner"`
}

// JobView is the decoded job record.
type JobView struct {
	Address     crypto.Address `json:"address"`
	Escrow      crypto.Address `json:"escrow"`
	AccountType string         `json:"accountType"`
	Amount      uint64         `json:"amount,string"`
	Authority   crypto.Address `json:"authority"`
}

// DerivedEscrowView lists the addresses a client needs to set up an escrow
// for a mint.
type DerivedEscrowView struct {
	Mint         crypto.Address `json:"mint"`
	TokenProgram crypto.Address `json:"tokenProgram"`
	Escrow       crypto.Address `json:"escrow"`
	Bump         uint8          `json:"bump"`
	TokenAccount crypto.Address `json:"tokenAccount"`
	TokenBump    uint8          `json:"tokenBump"`
}

// ErrorView is the body of every non-2xx response. Code carries the flat
// escrow program code when the failure came from the escrow program.
type ErrorView struct {
	Message     string  `json:"error"`
	Code        *uint32 `json:"code,omitempty"`
	Instruction *int    `json:"instruction,omitempty"`
	RequestID   string  `json:"requestId,omitempty"`
}

// APIError is returned by Client for non-2xx responses.
type APIError struct {
	Status int
	ErrorView
}

func (e *APIError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("rpc: %d: %s (code %d)", e.Status, e.Message, *e.Code)
	}
	return fmt.Sprintf("rpc: %d: %s", e.Status, e.Message)
}

// EscrowCode reports the escrow program code carried by the error, if any.
func (e *APIError) EscrowCode() (escrow.Error, bool) {
	if e == nil || e.Code == nil {
		return 0, false
	}
	return escrow.Error(*e.Code), true
}
