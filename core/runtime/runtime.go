package runtime

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"escrowchain/core/events"
	"escrowchain/core/state"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/observability/metrics"
)

// MaxInvokeDepth bounds the call stack, counting the top-level instruction.
const MaxInvokeDepth = 4

// Program is the entrypoint of an on-chain program.
type Program interface {
	Process(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error

// Process implements Program.
func (f ProgramFunc) Process(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error {
	return f(ctx, accounts, data)
}

// Receipt describes a committed transaction.
type Receipt struct {
	Hash   [32]byte       `json:"hash"`
	Events []*types.Event `json:"events"`
}

// Runtime executes transactions against the account store. Transactions are
// applied one at a time; each either commits every account change it made or
// none of them.
type Runtime struct {
	mu       sync.Mutex
	state    *state.Manager
	programs map[crypto.Address]Program
	names    map[crypto.Address]string
	rent     Rent
	logger   *slog.Logger
	emitter  events.Emitter
	metrics  *metrics.RuntimeMetrics
	tracer   trace.Tracer
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithRent overrides the rent parameters exposed to programs.
func WithRent(rent Rent) Option { return func(r *Runtime) { r.rent = rent } }

// WithLogger sets the logger handed to programs.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEmitter sets the sink for events of committed transactions.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Runtime) {
		if emitter != nil {
			r.emitter = emitter
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.RuntimeMetrics) Option { return func(r *Runtime) { r.metrics = m } }

// New creates a runtime over the given state manager.
func New(manager *state.Manager, opts ...Option) *Runtime {
	r := &Runtime{
		state:    manager,
		programs: make(map[crypto.Address]Program),
		names:    make(map[crypto.Address]string),
		rent:     DefaultRent(),
		logger:   slog.Default(),
		emitter:  events.NoopEmitter{},
		tracer:   otel.Tracer("escrowchain/core/runtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs a program under id. Registering the same id twice
// replaces the previous program.
func (r *Runtime) Register(id crypto.Address, name string, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
	r.names[id] = name
}

// Rent returns the configured rent parameters.
func (r *Runtime) Rent() Rent { return r.rent }

// State exposes the committed account store.
func (r *Runtime) State() *state.Manager { return r.state }

// GetAccount reads a committed account.
func (r *Runtime) GetAccount(addr crypto.Address) (*types.Account, error) {
	return r.state.GetAccount(addr)
}

func (r *Runtime) programName(id crypto.Address) string {
	if name, ok := r.names[id]; ok {
		return name
	}
	return id.String()
}

// ProcessTransaction verifies and executes tx. Nothing is persisted and no
// event is published unless every instruction succeeds.
func (r *Runtime) ProcessTransaction(ctx context.Context, tx *types.Transaction) (receipt *Receipt, err error) {
	if tx == nil {
		return nil, fmt.Errorf("runtime: nil transaction")
	}
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "runtime.ProcessTransaction",
		trace.WithAttributes(attribute.Int("tx.instructions", len(tx.Instructions))))
	defer span.End()
	defer func() {
		status := "committed"
		if err != nil {
			status = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		r.metrics.ObserveTransaction(status, time.Since(start))
	}()

	if err := tx.VerifySignatures(); err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("tx.hash", hex.EncodeToString(hash[:])))

	r.mu.Lock()
	defer r.mu.Unlock()

	seen, err := r.state.HasTransaction(hash)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, ErrDuplicateTx
	}

	st := newTxState()
	for i, ix := range tx.Instructions {
		if err := r.executeInstruction(ctx, st, i, ix); err != nil {
			r.logger.Debug("transaction aborted",
				slog.String("tx", hex.EncodeToString(hash[:])),
				slog.Int("instruction", i),
				slog.Any("error", err))
			return nil, err
		}
	}

	if err := r.state.Commit(hash, st.changes()); err != nil {
		return nil, fmt.Errorf("runtime: commit: %w", err)
	}

	receipt = &Receipt{Hash: hash, Events: make([]*types.Event, 0, len(st.events))}
	for _, evt := range st.events {
		r.emitter.Emit(evt)
		receipt.Events = append(receipt.Events, evt.Event())
	}
	return receipt, nil
}

func (r *Runtime) executeInstruction(ctx context.Context, st *txState, index int, ix types.Instruction) error {
	program, ok := r.programs[ix.ProgramID]
	if !ok {
		return &InstructionError{Index: index, ProgramID: ix.ProgramID, Err: ErrUnknownProgram}
	}
	infos := make([]*AccountInfo, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		acc, err := st.load(r, meta.Address)
		if err != nil {
			return err
		}
		infos = append(infos, NewAccountInfo(meta.Address, meta.IsSigner, meta.IsWritable, acc))
	}

	fr := newFrame(ix.ProgramID, infos)
	ictx := &InvokeContext{
		ctx:    ctx,
		rt:     r,
		tx:     st,
		frame:  fr,
		depth:  1,
		logger: r.logger.With(slog.String("program", r.programName(ix.ProgramID))),
	}
	err := program.Process(ictx, infos, ix.Data)
	if err == nil {
		err = fr.verify()
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.ObserveInstruction(r.programName(ix.ProgramID), status)
	if err != nil {
		return &InstructionError{Index: index, ProgramID: ix.ProgramID, Err: err}
	}
	return nil
}

// txState is the working set of one transaction.
type txState struct {
	accounts map[crypto.Address]*types.Account
	original map[crypto.Address]*types.Account
	events   []events.Event
}

func newTxState() *txState {
	return &txState{
		accounts: make(map[crypto.Address]*types.Account),
		original: make(map[crypto.Address]*types.Account),
	}
}

func (s *txState) load(r *Runtime, addr crypto.Address) (*types.Account, error) {
	if acc, ok := s.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := r.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if _, ok := r.programs[addr]; ok {
		acc.Executable = true
	}
	s.accounts[addr] = acc
	s.original[addr] = acc.Clone()
	return acc, nil
}

func (s *txState) changes() map[crypto.Address]*types.Account {
	out := make(map[crypto.Address]*types.Account)
	for addr, acc := range s.accounts {
		if !accountsEqual(acc, s.original[addr]) {
			out[addr] = acc.Clone()
		}
	}
	return out
}

func accountsEqual(a, b *types.Account) bool {
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// frame tracks the accounts of one program invocation and the state they had
// when the program gained control.
type frame struct {
	programID crypto.Address
	accounts  []*AccountInfo
	pre       map[crypto.Address]*types.Account
}

func newFrame(programID crypto.Address, accounts []*AccountInfo) *frame {
	f := &frame{programID: programID, accounts: accounts}
	f.snapshot()
	return f
}

func (f *frame) snapshot() {
	f.pre = make(map[crypto.Address]*types.Account, len(f.accounts))
	for _, info := range f.accounts {
		if _, ok := f.pre[info.Key]; !ok {
			f.pre[info.Key] = info.Snapshot()
		}
	}
}

// lookup merges the privileges of every handle the frame holds for addr.
func (f *frame) lookup(addr crypto.Address) (info *AccountInfo, signer, writable bool) {
	for _, candidate := range f.accounts {
		if candidate.Key != addr {
			continue
		}
		if info == nil {
			info = candidate
		}
		signer = signer || candidate.IsSigner
		writable = writable || candidate.IsWritable
	}
	return info, signer, writable
}

// verify enforces the host ownership rules on every change made since the
// last snapshot.
func (f *frame) verify() error {
	var preTotal, postTotal uint64
	checked := make(map[crypto.Address]struct{}, len(f.pre))
	for _, info := range f.accounts {
		if _, ok := checked[info.Key]; ok {
			continue
		}
		checked[info.Key] = struct{}{}
		pre := f.pre[info.Key]
		post := info.account
		_, _, writable := f.lookup(info.Key)

		preTotal += pre.Lamports
		postTotal += post.Lamports

		if accountsEqual(pre, post) {
			continue
		}
		if !writable {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, info.Key)
		}
		ownedByCaller := pre.Owner == f.programID
		if pre.Owner != post.Owner && !ownedByCaller {
			return fmt.Errorf("%w: %s", ErrOwnerChange, info.Key)
		}
		if !bytes.Equal(pre.Data, post.Data) && !ownedByCaller {
			return fmt.Errorf("%w: %s", ErrExternalDataChange, info.Key)
		}
		if post.Lamports < pre.Lamports && !ownedByCaller {
			return fmt.Errorf("%w: %s", ErrExternalSpend, info.Key)
		}
		if pre.Executable != post.Executable {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, info.Key)
		}
	}
	if preTotal != postTotal {
		return ErrUnbalanced
	}
	return nil
}

// InvokeContext is the host interface handed to a running program.
type InvokeContext struct {
	ctx    context.Context
	rt     *Runtime
	tx     *txState
	frame  *frame
	depth  int
	logger *slog.Logger
}

// Context returns the request context of the enclosing transaction.
func (c *InvokeContext) Context() context.Context { return c.ctx }

// ProgramID returns the id of the running program.
func (c *InvokeContext) ProgramID() crypto.Address { return c.frame.programID }

// Rent returns the host rent parameters.
func (c *InvokeContext) Rent() Rent { return c.rt.rent }

// Logger returns a logger annotated with the running program.
func (c *InvokeContext) Logger() *slog.Logger { return c.logger }

// Emit buffers an event; it is published only if the transaction commits.
func (c *InvokeContext) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	c.tx.events = append(c.tx.events, evt)
}

// Invoke calls another program with the caller's own privileges.
func (c *InvokeContext) Invoke(ix types.Instruction) error {
	return c.InvokeSigned(ix)
}

// InvokeSigned calls another program. Each seed set (bump included) grants
// signer status to the address it derives under the calling program.
func (c *InvokeContext) InvokeSigned(ix types.Instruction, signerSeeds ...[][]byte) error {
	if c.depth+1 > MaxInvokeDepth {
		return ErrCallDepth
	}
	program, ok := c.rt.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)
	}

	derived := make(map[crypto.Address]struct{}, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := crypto.CreateProgramAddress(seeds, c.frame.programID)
		if err != nil {
			return err
		}
		derived[addr] = struct{}{}
	}

	infos := make([]*AccountInfo, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		callerInfo, signer, writable := c.frame.lookup(meta.Address)
		if callerInfo == nil {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.Address)
		}
		if meta.IsSigner && !signer {
			if _, ok := derived[meta.Address]; !ok {
				return fmt.Errorf("%w: signer %s", ErrPrivilegeEscalation, meta.Address)
			}
		}
		if meta.IsWritable && !writable {
			return fmt.Errorf("%w: writable %s", ErrPrivilegeEscalation, meta.Address)
		}
		infos = append(infos, NewAccountInfo(meta.Address, meta.IsSigner, meta.IsWritable, callerInfo.account))
	}

	if err := c.frame.verify(); err != nil {
		return err
	}

	callee := newFrame(ix.ProgramID, infos)
	child := &InvokeContext{
		ctx:    c.ctx,
		rt:     c.rt,
		tx:     c.tx,
		frame:  callee,
		depth:  c.depth + 1,
		logger: c.rt.logger.With(slog.String("program", c.rt.programName(ix.ProgramID))),
	}
	c.rt.metrics.ObserveInvocation(c.rt.programName(ix.ProgramID), len(signerSeeds) > 0)
	if err := program.Process(child, infos, ix.Data); err != nil {
		return err
	}
	if err := callee.verify(); err != nil {
		return err
	}
	c.frame.snapshot()
	return nil
}

// IsInstructionError reports whether err came from a failing instruction.
func IsInstructionError(err error) bool {
	var ie *InstructionError
	return errors.As(err, &ie)
}
