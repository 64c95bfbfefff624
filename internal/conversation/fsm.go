// Package conversation implements the conversation lifecycle state machine.
//
// A Machine is a thin wrapper around a persisted ConversationState. It is
// instantiated on demand from the stored value, driven by events, and the
// resulting state is written back by the caller. Invalid transitions are
// reported as failed results, never as errors.
package conversation

import (
	"fmt"

	"github.com/StayPilot/StayPilot/internal/models"
)

type transitionKey struct {
	from  models.ConversationState
	event models.ConversationEvent
}

// transitions is the exhaustive transition table. Any (state, event) pair
// absent from this map is an invalid transition.
var transitions = map[transitionKey]models.ConversationState{
	{models.ConversationNew, models.ConvEventMessageReceived}: models.ConversationActive,

	{models.ConversationActive, models.ConvEventResponseSent}:        models.ConversationWaiting,
	{models.ConversationActive, models.ConvEventEscalationTriggered}: models.ConversationEscalated,
	{models.ConversationActive, models.ConvEventGuestSatisfied}:      models.ConversationResolved,
	{models.ConversationActive, models.ConvEventTimeout}:             models.ConversationClosed,

	{models.ConversationWaiting, models.ConvEventMessageReceived}:     models.ConversationActive,
	{models.ConversationWaiting, models.ConvEventEscalationTriggered}: models.ConversationEscalated,
	{models.ConversationWaiting, models.ConvEventTimeout}:             models.ConversationClosed,

	{models.ConversationEscalated, models.ConvEventStaffAssigned}:   models.ConversationEscalated,
	{models.ConversationEscalated, models.ConvEventMessageReceived}: models.ConversationEscalated,
	{models.ConversationEscalated, models.ConvEventResponseSent}:    models.ConversationEscalated,
	{models.ConversationEscalated, models.ConvEventStaffResolved}:   models.ConversationResolved,
	{models.ConversationEscalated, models.ConvEventTimeout}:         models.ConversationClosed,

	{models.ConversationResolved, models.ConvEventReopen}:          models.ConversationActive,
	{models.ConversationResolved, models.ConvEventMessageReceived}: models.ConversationActive,
	{models.ConversationResolved, models.ConvEventTimeout}:         models.ConversationClosed,
	{models.ConversationResolved, models.ConvEventGuestSatisfied}:  models.ConversationClosed,

	{models.ConversationClosed, models.ConvEventReopen}:          models.ConversationActive,
	{models.ConversationClosed, models.ConvEventMessageReceived}: models.ConversationActive,
}

// Machine tracks the current state of one conversation.
type Machine struct {
	state models.ConversationState
}

// NewMachine creates a machine starting in the given state. An empty state
// starts the machine in the "new" state.
func NewMachine(state models.ConversationState) *Machine {
	if state == "" {
		state = models.ConversationNew
	}
	return &Machine{state: state}
}

// State returns the machine's current state.
func (m *Machine) State() models.ConversationState {
	return m.state
}

// Transition applies an event to the machine. If the (state, event) pair has
// no row in the transition table the state is unchanged and the result carries
// success=false with a reason.
func (m *Machine) Transition(event models.ConversationEvent) models.TransitionResult {
	from := m.state
	to, ok := transitions[transitionKey{from: from, event: event}]
	if !ok {
		return models.TransitionResult{
			Success: false,
			From:    from,
			To:      from,
			Reason:  fmt.Sprintf("event %q is not valid in state %q", event, from),
		}
	}
	m.state = to
	return models.TransitionResult{Success: true, From: from, To: to}
}

// CanTransition reports whether the event has a valid transition from the
// current state, without applying it.
func (m *Machine) CanTransition(event models.ConversationEvent) bool {
	_, ok := transitions[transitionKey{from: m.state, event: event}]
	return ok
}

// IsTerminal reports whether the conversation has reached its terminal
// business state.
func (m *Machine) IsTerminal() bool {
	return m.state == models.ConversationClosed
}

// RequiresStaffAttention reports whether the conversation is escalated.
func (m *Machine) RequiresStaffAttention() bool {
	return m.state == models.ConversationEscalated
}

// IsActive reports whether the conversation is in an ongoing state.
func (m *Machine) IsActive() bool {
	switch m.state {
	case models.ConversationActive, models.ConversationWaiting, models.ConversationEscalated:
		return true
	}
	return false
}
