package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"escrowchain/core/runtime"
	"escrowchain/crypto"
	"escrowchain/native/system"
)

var (
	ErrInvalidInstruction = errors.New("token: invalid instruction data")
	ErrNotEnoughAccounts  = errors.New("token: not enough account keys")
	ErrInvalidAccountData = errors.New("token: invalid account data")
	ErrIncorrectProgramID = errors.New("token: account not owned by the token program")
	ErrAlreadyInUse       = errors.New("token: account already initialized")
	ErrUninitializedState = errors.New("token: account not initialized")
	ErrNotRentExempt      = errors.New("token: account not rent exempt")
	ErrMintMismatch       = errors.New("token: account mint mismatch")
	ErrOwnerMismatch      = errors.New("token: authority does not own the account")
	ErrMissingSignature   = errors.New("token: authority did not sign")
	ErrInsufficientFunds  = errors.New("token: insufficient funds")
	ErrOverflow           = errors.New("token: arithmetic overflow")
	ErrFixedSupplyMint    = errors.New("token: mint has no authority")
	ErrNotWritable        = errors.New("token: account must be writable")
	ErrAddressMismatch    = errors.New("token: account is not the associated account of owner and mint")
)

// Program implements the token program.
type Program struct{}

// Process implements runtime.Program.
func (Program) Process(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case InstructionInitializeMint:
		if len(data) < 2+crypto.AddressLength {
			return ErrInvalidInstruction
		}
		var authority crypto.Address
		copy(authority[:], data[2:2+crypto.AddressLength])
		return processInitializeMint(ctx, accounts, data[1], authority)
	case InstructionInitializeAccount:
		return processInitializeAccount(ctx, accounts)
	case InstructionTransfer:
		amount, err := decodeAmount(data)
		if err != nil {
			return err
		}
		return processTransfer(ctx, accounts, amount)
	case InstructionMintTo:
		amount, err := decodeAmount(data)
		if err != nil {
			return err
		}
		return processMintTo(ctx, accounts, amount)
	case InstructionCreateAssociatedAccount:
		return processCreateAssociatedAccount(ctx, accounts)
	default:
		return ErrInvalidInstruction
	}
}

func decodeAmount(data []byte) (uint64, error) {
	if len(data) < 9 {
		return 0, ErrInvalidInstruction
	}
	return binary.LittleEndian.Uint64(data[1:9]), nil
}

func ensureOwned(ctx *runtime.InvokeContext, info *runtime.AccountInfo) error {
	if info.Owner() != ctx.ProgramID() {
		return fmt.Errorf("%w: %s", ErrIncorrectProgramID, info.Key)
	}
	return nil
}

func loadMint(ctx *runtime.InvokeContext, info *runtime.AccountInfo) (Mint, error) {
	if err := ensureOwned(ctx, info); err != nil {
		return Mint{}, err
	}
	mint, err := UnpackMint(info.Data())
	if err != nil {
		return Mint{}, err
	}
	if !mint.Initialized {
		return Mint{}, ErrUninitializedState
	}
	return mint, nil
}

func loadAccount(ctx *runtime.InvokeContext, info *runtime.AccountInfo) (Account, error) {
	if err := ensureOwned(ctx, info); err != nil {
		return Account{}, err
	}
	acct, err := UnpackAccount(info.Data())
	if err != nil {
		return Account{}, err
	}
	if !acct.IsInitialized() {
		return Account{}, ErrUninitializedState
	}
	return acct, nil
}

func processInitializeMint(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, decimals uint8, authority crypto.Address) error {
	if len(accounts) < 1 {
		return ErrNotEnoughAccounts
	}
	info := accounts[0]
	if err := ensureOwned(ctx, info); err != nil {
		return err
	}
	if !ctx.Rent().IsExempt(info.Lamports(), info.DataLen()) {
		return ErrNotRentExempt
	}
	existing, err := UnpackMint(info.Data())
	if err != nil {
		return err
	}
	if existing.Initialized {
		return ErrAlreadyInUse
	}
	mint := Mint{Initialized: true, Decimals: decimals, Authority: authority}
	return mint.Pack(info.Data())
}

func processInitializeAccount(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccounts
	}
	info, mintInfo, ownerInfo := accounts[0], accounts[1], accounts[2]
	if err := ensureOwned(ctx, info); err != nil {
		return err
	}
	if !ctx.Rent().IsExempt(info.Lamports(), info.DataLen()) {
		return ErrNotRentExempt
	}
	existing, err := UnpackAccount(info.Data())
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return ErrAlreadyInUse
	}
	if _, err := loadMint(ctx, mintInfo); err != nil {
		return err
	}
	// Derived addresses hold only the associated account of their seeds.
	if !crypto.IsOnCurve(info.Key) && !IsAssociatedAddress(ctx.ProgramID(), info.Key, ownerInfo.Key, mintInfo.Key) {
		return fmt.Errorf("%w: %s", ErrAddressMismatch, info.Key)
	}
	acct := Account{Mint: mintInfo.Key, Owner: ownerInfo.Key, State: AccountStateInitialized}
	return acct.Pack(info.Data())
}

func processCreateAssociatedAccount(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if len(accounts) < 4 {
		return ErrNotEnoughAccounts
	}
	payerInfo, info, ownerInfo, mintInfo := accounts[0], accounts[1], accounts[2], accounts[3]
	addr, bump, err := FindAssociatedAddress(ctx.ProgramID(), ownerInfo.Key, mintInfo.Key)
	if err != nil {
		return err
	}
	if addr != info.Key {
		return fmt.Errorf("%w: %s", ErrAddressMismatch, info.Key)
	}
	if _, err := loadMint(ctx, mintInfo); err != nil {
		return err
	}
	if info.Owner() == ctx.ProgramID() {
		return nil
	}
	seeds := AssociatedSeeds(ownerInfo.Key, mintInfo.Key, bump)
	allocate := system.CreateDerivedAccount(payerInfo.Key, info.Key, ctx.Rent().MinimumBalance(AccountLen), AccountLen, ctx.ProgramID(), seeds)
	return ctx.InvokeSigned(allocate, seeds)
}

func processTransfer(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccounts
	}
	srcInfo, dstInfo, authInfo := accounts[0], accounts[1], accounts[2]
	if !srcInfo.IsWritable || !dstInfo.IsWritable {
		return ErrNotWritable
	}
	src, err := loadAccount(ctx, srcInfo)
	if err != nil {
		return err
	}
	dst, err := loadAccount(ctx, dstInfo)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Owner != authInfo.Key {
		return ErrOwnerMismatch
	}
	if !authInfo.IsSigner {
		return ErrMissingSignature
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if srcInfo.Key == dstInfo.Key {
		return nil
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount = sum
	if err := src.Pack(srcInfo.Data()); err != nil {
		return err
	}
	return dst.Pack(dstInfo.Data())
}

func processMintTo(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccounts
	}
	mintInfo, dstInfo, authInfo := accounts[0], accounts[1], accounts[2]
	if !mintInfo.IsWritable || !dstInfo.IsWritable {
		return ErrNotWritable
	}
	mint, err := loadMint(ctx, mintInfo)
	if err != nil {
		return err
	}
	dst, err := loadAccount(ctx, dstInfo)
	if err != nil {
		return err
	}
	if dst.Mint != mintInfo.Key {
		return ErrMintMismatch
	}
	if mint.Authority.IsZero() {
		return ErrFixedSupplyMint
	}
	if mint.Authority != authInfo.Key {
		return ErrOwnerMismatch
	}
	if !authInfo.IsSigner {
		return ErrMissingSignature
	}
	supply, carry := bits.Add64(mint.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	mint.Supply = supply
	dst.Amount = balance
	if err := mint.Pack(mintInfo.Data()); err != nil {
		return err
	}
	return dst.Pack(dstInfo.Data())
}
