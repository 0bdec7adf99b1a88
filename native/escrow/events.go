package escrow

import (
	"strconv"

	"escrowchain/core/types"
	"escrowchain/crypto"
)

const (
	EventTypeEscrowInitialized  = "escrow.initialized"
	EventTypeEscrowOwnerChanged = "escrow.owner_changed"
	EventTypeJobFunded          = "escrow.job_funded"
	EventTypeFundsDisbursed     = "escrow.funds_disbursed"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewInitializedEvent returns the payload emitted when an escrow is created.
func NewInitializedEvent(escrow, tokenAccount, mint, owner crypto.Address) *types.Event {
	return &types.Event{
		Type: EventTypeEscrowInitialized,
		Attributes: map[string]string{
			"escrow":       escrow.String(),
			"tokenAccount": tokenAccount.String(),
			"mint":         mint.String(),
			"owner":        owner.String(),
		},
	}
}

// NewOwnerChangedEvent returns the payload emitted when control of an escrow
// moves to a new owner.
func NewOwnerChangedEvent(escrow, previous, owner crypto.Address) *types.Event {
	return &types.Event{
		Type: EventTypeEscrowOwnerChanged,
		Attributes: map[string]string{
			"escrow":        escrow.String(),
			"previousOwner": previous.String(),
			"owner":         owner.String(),
		},
	}
}

// NewJobFundedEvent returns the payload emitted after a deposit.
func NewJobFundedEvent(escrow, job, authority crypto.Address, amount uint64, e *Escrow, j *Job) *types.Event {
	return &types.Event{
		Type: EventTypeJobFunded,
		Attributes: map[string]string{
			"escrow":       escrow.String(),
			"job":          job.String(),
			"authority":    authority.String(),
			"amount":       strconv.FormatUint(amount, 10),
			"jobBalance":   strconv.FormatUint(j.Amount, 10),
			"escrowAmount": strconv.FormatUint(e.Amount, 10),
		},
	}
}

// NewFundsDisbursedEvent returns the payload emitted after a release.
func NewFundsDisbursedEvent(escrow, job, destination crypto.Address, amount uint64, e *Escrow, j *Job) *types.Event {
	return &types.Event{
		Type: EventTypeFundsDisbursed,
		Attributes: map[string]string{
			"escrow":       escrow.String(),
			"job":          job.String(),
			"authority":    j.Authority.String(),
			"destination":  destination.String(),
			"amount":       strconv.FormatUint(amount, 10),
			"jobBalance":   strconv.FormatUint(j.Amount, 10),
			"escrowAmount": strconv.FormatUint(e.Amount, 10),
		},
	}
}
