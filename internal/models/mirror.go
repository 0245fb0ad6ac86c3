// Package models provides data structures and state management for
// mirrored tickets.
package models

import "fmt"

// MirrorState represents the replication state of one master ticket.
type MirrorState string

const (
	// StatePreExisting marks a ticket that was already open when the
	// engine started. It is never mirrored and never leaves this state.
	StatePreExisting MirrorState = "pre_existing"
	// StateUnseen is the implicit state of a ticket not yet observed.
	StateUnseen MirrorState = "unseen"
	// StatePendingOpen means the ticket was derived into the current
	// batch's opens but dispatch has not completed.
	StatePendingOpen MirrorState = "pending_open"
	// StateMirrored means a slave position exists for this ticket.
	StateMirrored MirrorState = "mirrored"
	// StatePendingClose means a close was derived for this ticket in the
	// current batch.
	StatePendingClose MirrorState = "pending_close"
	// StateClosed means the mirror has been closed and the mapping removed.
	StateClosed MirrorState = "closed"
)

// Transition conditions.
const (
	ConditionBatchDerived = "batch_derived"
	ConditionOrderDone    = "order_done"
	ConditionOrderFailed  = "order_failed"
	ConditionBatchSkipped = "batch_skipped"
	ConditionCloseDerived = "close_derived"
	ConditionCloseDone    = "close_done"
	ConditionCloseFailed  = "close_failed"
	ConditionSlaveMissing = "slave_missing"
	ConditionSLTPSynced   = "sltp_synced"
)

// StateTransition defines one valid state transition.
type StateTransition struct {
	From      MirrorState
	To        MirrorState
	Condition string
}

// ValidTransitions is the full transition table for a mirrored ticket.
var ValidTransitions = []StateTransition{
	{StateUnseen, StatePendingOpen, ConditionBatchDerived},
	{StatePendingOpen, StateMirrored, ConditionOrderDone},
	{StatePendingOpen, StateUnseen, ConditionOrderFailed},
	{StatePendingOpen, StateUnseen, ConditionBatchSkipped},

	{StateMirrored, StateMirrored, ConditionSLTPSynced},
	{StateMirrored, StatePendingClose, ConditionCloseDerived},

	{StatePendingClose, StateClosed, ConditionCloseDone},
	{StatePendingClose, StateClosed, ConditionSlaveMissing},
	{StatePendingClose, StateMirrored, ConditionCloseFailed},
	{StatePendingClose, StateMirrored, ConditionBatchSkipped},
}

// Tracker records the replication state of every master ticket the engine
// has dealt with. Tickets never observed are StateUnseen; tickets marked
// pre-existing are pinned to StatePreExisting forever.
type Tracker struct {
	states map[uint64]MirrorState
}

// NewTracker creates an empty state tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[uint64]MirrorState)}
}

// State returns the current state of a ticket.
func (t *Tracker) State(ticket uint64) MirrorState {
	if s, ok := t.states[ticket]; ok {
		return s
	}
	return StateUnseen
}

// MarkPreExisting pins a ticket to StatePreExisting. Only legal from
// StateUnseen: the pre-existing set is fixed at startup.
func (t *Tracker) MarkPreExisting(ticket uint64) error {
	if s := t.State(ticket); s != StateUnseen {
		return fmt.Errorf("ticket %d: cannot mark pre-existing from state %s", ticket, s)
	}
	t.states[ticket] = StatePreExisting
	return nil
}

// Transition moves a ticket to a new state, validating against the
// transition table.
func (t *Tracker) Transition(ticket uint64, to MirrorState, condition string) error {
	from := t.State(ticket)
	for _, tr := range ValidTransitions {
		if tr.From == from && tr.To == to && tr.Condition == condition {
			t.states[ticket] = to
			return nil
		}
	}
	return fmt.Errorf("ticket %d: invalid transition %s -> %s (%s)", ticket, from, to, condition)
}

// Count returns how many tracked tickets are currently in the given state.
// StateUnseen is implicit and not counted.
func (t *Tracker) Count(state MirrorState) int {
	n := 0
	for _, s := range t.states {
		if s == state {
			n++
		}
	}
	return n
}
