package escrow

import (
	"math/bits"

	"escrowchain/core/runtime"
	"escrowchain/crypto"
	"escrowchain/native/system"
	"escrowchain/native/token"
	"escrowchain/observability/metrics"
)

// Processor is the escrow program entrypoint.
type Processor struct {
	metrics *metrics.EscrowMetrics
}

// NewProcessor returns a processor reporting to the global escrow metrics.
func NewProcessor() *Processor {
	return &Processor{metrics: metrics.Escrow()}
}

// Process implements runtime.Program.
func (p *Processor) Process(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, input []byte) error {
	ix, err := UnpackInstruction(input)
	if err != nil {
		p.observe("unknown", err)
		return err
	}
	ctx.Logger().Info("Instruction: " + ix.Name())

	switch v := ix.(type) {
	case InitEscrow:
		err = p.processInitEscrow(ctx, accounts, v.Owner)
	case SetEscrowOwner:
		err = p.processSetEscrowOwner(ctx, accounts, v.NewOwner)
	case FundJob:
		err = p.processFundJob(ctx, accounts, v.Amount)
	case DisburseFunds:
		err = p.processDisburseFunds(ctx, accounts, v.Amount)
	default:
		err = ErrInstructionUnpack
	}
	p.observe(ix.Name(), err)
	if err != nil {
		ctx.Logger().Debug("escrow instruction failed", "instruction", ix.Name(), "error", err)
	}
	return err
}

func (p *Processor) observe(op string, err error) {
	if p == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if code, ok := CodeOf(err); ok {
			result = code.Error()
		}
	}
	p.metrics.ObserveOperation(op, result)
}

func (p *Processor) processInitEscrow(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, owner crypto.Address) error {
	if len(accounts) < 4 {
		return ErrNotEnoughAccountKeys
	}
	escrowInfo, tokenInfo, mintInfo, tokenProgramInfo := accounts[0], accounts[1], accounts[2], accounts[3]

	bump, err := checkEscrowAddress(ctx, escrowInfo, mintInfo.Key, tokenProgramInfo.Key)
	if err != nil {
		return err
	}
	if len(accounts) > 4 && unallocated(escrowInfo) {
		if err := allocate(ctx, accounts[4], escrowInfo, EscrowLen, EscrowSeeds(mintInfo.Key, tokenProgramInfo.Key, bump)); err != nil {
			return err
		}
	}
	if !ctx.Rent().IsExempt(escrowInfo.Lamports(), escrowInfo.DataLen()) {
		return ErrNotRentExempt
	}
	if err := checkOwnedByProgram(ctx, escrowInfo); err != nil {
		return err
	}
	record, err := UnpackEscrowUnchecked(escrowInfo.Data())
	if err != nil {
		return err
	}
	if record.IsInitialized() {
		return ErrAlreadyInitialized
	}
	if mintInfo.Owner() != tokenProgramInfo.Key {
		return ErrInvalidMint
	}
	if mint, err := token.UnpackMint(mintInfo.Data()); err != nil || !mint.Initialized {
		return ErrInvalidMint
	}

	// The custody account may already have been initialized for this escrow
	// by anyone; it cannot hold anything else.
	if checkCustodyAccount(tokenInfo, escrowInfo.Key, mintInfo.Key, tokenProgramInfo.Key) != nil {
		if !token.IsAssociatedAddress(tokenProgramInfo.Key, tokenInfo.Key, escrowInfo.Key, mintInfo.Key) {
			return ErrInvalidTokenAccount
		}
		initAccount := token.NewInitializeAccountInstruction(tokenProgramInfo.Key, tokenInfo.Key, mintInfo.Key, escrowInfo.Key)
		if err := ctx.Invoke(initAccount); err != nil {
			return externalCallFailed(err)
		}
	}

	record.Init(owner)
	if err := record.Pack(escrowInfo.Data()); err != nil {
		return err
	}
	ctx.Emit(escrowEvent{evt: NewInitializedEvent(escrowInfo.Key, tokenInfo.Key, mintInfo.Key, owner)})
	return nil
}

func (p *Processor) processSetEscrowOwner(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, newOwner crypto.Address) error {
	if len(accounts) < 2 {
		return ErrNotEnoughAccountKeys
	}
	escrowInfo, ownerInfo := accounts[0], accounts[1]

	if err := checkOwnedByProgram(ctx, escrowInfo); err != nil {
		return err
	}
	record, err := UnpackEscrow(escrowInfo.Data())
	if err != nil {
		return err
	}
	if err := checkEscrowOwner(record, ownerInfo); err != nil {
		return err
	}

	previous := record.Owner
	record.Owner = newOwner
	if err := record.Pack(escrowInfo.Data()); err != nil {
		return err
	}
	ctx.Emit(escrowEvent{evt: NewOwnerChangedEvent(escrowInfo.Key, previous, newOwner)})
	return nil
}

func (p *Processor) processFundJob(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 7 {
		return ErrNotEnoughAccountKeys
	}
	sourceInfo, escrowTokenInfo, escrowInfo, jobInfo, authorityInfo, mintInfo, tokenProgramInfo :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5], accounts[6]

	if amount == 0 {
		return ErrAmountZero
	}
	if _, err := checkEscrowAddress(ctx, escrowInfo, mintInfo.Key, tokenProgramInfo.Key); err != nil {
		return err
	}
	if err := checkOwnedByProgram(ctx, escrowInfo); err != nil {
		return err
	}
	escrowRecord, err := UnpackEscrow(escrowInfo.Data())
	if err != nil {
		return err
	}
	if err := checkCustodyAccount(escrowTokenInfo, escrowInfo.Key, mintInfo.Key, tokenProgramInfo.Key); err != nil {
		return err
	}
	jobBump, err := checkJobAddress(ctx, jobInfo, escrowInfo.Key, authorityInfo.Key)
	if err != nil {
		return err
	}
	if !authorityInfo.IsSigner {
		return ErrMustBeSigner
	}
	if len(accounts) > 7 && unallocated(jobInfo) {
		if err := allocate(ctx, accounts[7], jobInfo, JobLen, JobSeeds(escrowInfo.Key, authorityInfo.Key, jobBump)); err != nil {
			return err
		}
	}
	if err := checkOwnedByProgram(ctx, jobInfo); err != nil {
		return err
	}
	jobRecord, err := UnpackJobUnchecked(jobInfo.Data())
	if err != nil {
		return err
	}
	if !jobRecord.IsInitialized() {
		if !ctx.Rent().IsExempt(jobInfo.Lamports(), jobInfo.DataLen()) {
			return ErrNotRentExempt
		}
		jobRecord.Init(authorityInfo.Key)
	} else if jobRecord.Authority != authorityInfo.Key {
		return ErrOwnerMismatch
	}

	jobAmount, carry := bits.Add64(jobRecord.Amount, amount, 0)
	if carry != 0 {
		return ErrMath
	}
	escrowAmount, carry := bits.Add64(escrowRecord.Amount, amount, 0)
	if carry != 0 {
		return ErrMath
	}

	deposit := token.NewTransferInstruction(tokenProgramInfo.Key, sourceInfo.Key, escrowTokenInfo.Key, authorityInfo.Key, amount)
	if err := ctx.Invoke(deposit); err != nil {
		return externalCallFailed(err)
	}

	jobRecord.Amount = jobAmount
	escrowRecord.Amount = escrowAmount
	if err := jobRecord.Pack(jobInfo.Data()); err != nil {
		return err
	}
	if err := escrowRecord.Pack(escrowInfo.Data()); err != nil {
		return err
	}
	p.metrics.ObserveFunded(amount)
	ctx.Emit(escrowEvent{evt: NewJobFundedEvent(escrowInfo.Key, jobInfo.Key, authorityInfo.Key, amount, escrowRecord, jobRecord)})
	return nil
}

func (p *Processor) processDisburseFunds(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 7 {
		return ErrNotEnoughAccountKeys
	}
	escrowTokenInfo, destinationInfo, escrowInfo, jobInfo, ownerInfo, mintInfo, tokenProgramInfo :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5], accounts[6]

	if amount == 0 {
		return ErrAmountZero
	}
	bump, err := checkEscrowAddress(ctx, escrowInfo, mintInfo.Key, tokenProgramInfo.Key)
	if err != nil {
		return err
	}
	if err := checkOwnedByProgram(ctx, escrowInfo); err != nil {
		return err
	}
	escrowRecord, err := UnpackEscrow(escrowInfo.Data())
	if err != nil {
		return err
	}
	if err := checkEscrowOwner(escrowRecord, ownerInfo); err != nil {
		return err
	}
	if err := checkOwnedByProgram(ctx, jobInfo); err != nil {
		return err
	}
	jobRecord, err := UnpackJob(jobInfo.Data())
	if err != nil {
		return err
	}
	if _, err := checkJobAddress(ctx, jobInfo, escrowInfo.Key, jobRecord.Authority); err != nil {
		return err
	}
	if err := checkCustodyAccount(escrowTokenInfo, escrowInfo.Key, mintInfo.Key, tokenProgramInfo.Key); err != nil {
		return err
	}
	// Paying custody back to itself would debit the records without moving tokens.
	if destinationInfo.Key == escrowTokenInfo.Key {
		return ErrInvalidTokenAccount
	}

	if jobRecord.Amount < amount || escrowRecord.Amount < amount {
		return ErrMath
	}
	jobAmount := jobRecord.Amount - amount
	escrowAmount := escrowRecord.Amount - amount

	release := token.NewTransferInstruction(tokenProgramInfo.Key, escrowTokenInfo.Key, destinationInfo.Key, escrowInfo.Key, amount)
	if err := ctx.InvokeSigned(release, EscrowSeeds(mintInfo.Key, tokenProgramInfo.Key, bump)); err != nil {
		return externalCallFailed(err)
	}

	jobRecord.Amount = jobAmount
	escrowRecord.Amount = escrowAmount
	if err := jobRecord.Pack(jobInfo.Data()); err != nil {
		return err
	}
	if err := escrowRecord.Pack(escrowInfo.Data()); err != nil {
		return err
	}
	p.metrics.ObserveDisbursed(amount)
	ctx.Emit(escrowEvent{evt: NewFundsDisbursedEvent(escrowInfo.Key, jobInfo.Key, destinationInfo.Key, amount, escrowRecord, jobRecord)})
	return nil
}

func checkOwnedByProgram(ctx *runtime.InvokeContext, info *runtime.AccountInfo) error {
	if info.Owner() != ctx.ProgramID() {
		return ErrNotOwnedByProgram
	}
	return nil
}

// checkEscrowAddress returns the canonical bump of the escrow on success.
func checkEscrowAddress(ctx *runtime.InvokeContext, info *runtime.AccountInfo, mint, tokenProgram crypto.Address) (uint8, error) {
	expected, bump, err := FindEscrowAddress(ctx.ProgramID(), mint, tokenProgram)
	if err != nil || expected != info.Key {
		return 0, ErrDerivedAddressMismatch
	}
	return bump, nil
}

// checkJobAddress returns the canonical bump of the job on success.
func checkJobAddress(ctx *runtime.InvokeContext, info *runtime.AccountInfo, escrow, authority crypto.Address) (uint8, error) {
	expected, bump, err := FindJobAddress(ctx.ProgramID(), escrow, authority)
	if err != nil || expected != info.Key {
		return 0, ErrDerivedAddressMismatch
	}
	return bump, nil
}

func unallocated(info *runtime.AccountInfo) bool {
	return info.Owner() == system.ProgramID && info.DataLen() == 0
}

// allocate creates the program-owned record slot at the derived address of
// seeds, rent exempt and paid by payer.
func allocate(ctx *runtime.InvokeContext, payer, info *runtime.AccountInfo, space int, seeds [][]byte) error {
	if !payer.IsSigner {
		return ErrMustBeSigner
	}
	ix := system.CreateDerivedAccount(payer.Key, info.Key, ctx.Rent().MinimumBalance(space), uint64(space), ctx.ProgramID(), seeds)
	if err := ctx.InvokeSigned(ix, seeds); err != nil {
		return externalCallFailed(err)
	}
	return nil
}

// Owner equality is checked before the signer flag so that a non-owner always
// sees ErrOwnerMismatch.
func checkEscrowOwner(record *Escrow, info *runtime.AccountInfo) error {
	if record.Owner != info.Key {
		return ErrOwnerMismatch
	}
	if !info.IsSigner {
		return ErrMustBeSigner
	}
	return nil
}

// checkCustodyAccount requires the associated token account of the escrow for
// mint, initialized.
func checkCustodyAccount(info *runtime.AccountInfo, escrow, mint, tokenProgram crypto.Address) error {
	if info.Owner() != tokenProgram || !token.IsAssociatedAddress(tokenProgram, info.Key, escrow, mint) {
		return ErrInvalidTokenAccount
	}
	acct, err := token.UnpackAccount(info.Data())
	if err != nil || !acct.IsInitialized() {
		return ErrInvalidTokenAccount
	}
	if acct.Owner != escrow || acct.Mint != mint {
		return ErrInvalidTokenAccount
	}
	return nil
}
