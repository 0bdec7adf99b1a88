package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"escrowchain/core/runtime"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/token"
)

// SubmitTransaction executes a signed transaction and returns its receipt.
func (s *Server) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx types.Transaction
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&tx); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorView{Message: fmt.Sprintf("invalid transaction: %v", err)})
		return
	}
	receipt, err := s.runtime.ProcessTransaction(r.Context(), &tx)
	if err != nil {
		status, view := transactionError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("transaction processing failed",
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.Any("error", err))
		}
		writeError(w, r, status, view)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptView(receipt))
}

func transactionError(err error) (int, ErrorView) {
	view := ErrorView{Message: err.Error()}
	var ixErr *runtime.InstructionError
	switch {
	case errors.As(err, &ixErr):
		index := ixErr.Index
		view.Instruction = &index
		if code, ok := escrow.CodeOf(err); ok {
			value := code.Code()
			view.Code = &value
		}
		return http.StatusUnprocessableEntity, view
	case errors.Is(err, runtime.ErrDuplicateTx):
		return http.StatusConflict, view
	case errors.Is(err, types.ErrMissingSignature), errors.Is(err, types.ErrBadSignature):
		return http.StatusUnauthorized, view
	case errors.Is(err, types.ErrNoInstructions):
		return http.StatusBadRequest, view
	default:
		return http.StatusInternalServerError, view
	}
}

// GetAccount returns the raw host account.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	acc, err := s.runtime.GetAccount(addr)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountView{
		Address:    addr,
		Lamports:   acc.Lamports,
		Owner:      acc.Owner,
		Data:       acc.Data,
		Executable: acc.Executable,
	})
}

// GetEscrow decodes the escrow record stored at the address.
func (s *Server) GetEscrow(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	data, ok := s.programData(w, r, addr)
	if !ok {
		return
	}
	record, err := escrow.UnpackEscrow(data)
	if err != nil {
		writeError(w, r, http.StatusNotFound, ErrorView{Message: fmt.Sprintf("no escrow at %s: %v", addr, err)})
		return
	}
	writeJSON(w, http.StatusOK, EscrowView{
		Address:     addr,
		AccountType: record.AccountType.String(),
		Amount:      record.Amount,
		Owner:       record.Owner,
	})
}

// GetJob derives the job address for the escrow and authority and decodes
// the record stored there.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	escrowAddr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	authority, ok := addressParam(w, r, "authority")
	if !ok {
		return
	}
	jobAddr, _, err := escrow.FindJobAddress(s.escrowID, escrowAddr, authority)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	data, ok := s.programData(w, r, jobAddr)
	if !ok {
		return
	}
	record, err := escrow.UnpackJob(data)
	if err != nil {
		writeError(w, r, http.StatusNotFound, ErrorView{Message: fmt.Sprintf("no job at %s: %v", jobAddr, err)})
		return
	}
	writeJSON(w, http.StatusOK, JobView{
		Address:     jobAddr,
		Escrow:      escrowAddr,
		AccountType: record.AccountType.String(),
		Amount:      record.Amount,
		Authority:   record.Authority,
	})
}

// DeriveEscrow computes the escrow and custody addresses for ?mint=, under
// the node's token program unless ?tokenProgram= overrides it.
func (s *Server) DeriveEscrow(w http.ResponseWriter, r *http.Request) {
	mint, err := crypto.ParseAddress(r.URL.Query().Get("mint"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorView{Message: fmt.Sprintf("invalid mint: %v", err)})
		return
	}
	tokenProgram := s.tokenID
	if raw := r.URL.Query().Get("tokenProgram"); raw != "" {
		if tokenProgram, err = crypto.ParseAddress(raw); err != nil {
			writeError(w, r, http.StatusBadRequest, ErrorView{Message: fmt.Sprintf("invalid tokenProgram: %v", err)})
			return
		}
	}
	escrowAddr, bump, err := escrow.FindEscrowAddress(s.escrowID, mint, tokenProgram)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	custody, custodyBump, err := token.FindAssociatedAddress(tokenProgram, escrowAddr, mint)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DerivedEscrowView{
		Mint:         mint,
		TokenProgram: tokenProgram,
		Escrow:       escrowAddr,
		Bump:         bump,
		TokenAccount: custody,
		TokenBump:    custodyBump,
	})
}

// programData loads an account that must be owned by the escrow program.
func (s *Server) programData(w http.ResponseWriter, r *http.Request, addr crypto.Address) ([]byte, bool) {
	acc, err := s.runtime.GetAccount(addr)
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	if acc.Owner != s.escrowID {
		writeError(w, r, http.StatusNotFound, ErrorView{Message: fmt.Sprintf("account %s is not owned by the escrow program", addr)})
		return nil, false
	}
	return acc.Data, true
}

func addressParam(w http.ResponseWriter, r *http.Request, name string) (crypto.Address, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorView{Message: fmt.Sprintf("invalid %s: %v", name, err)})
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("rpc handler failed",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.Any("error", err))
	writeError(w, r, http.StatusInternalServerError, ErrorView{Message: "internal error"})
}
