// Package models defines conversation lifecycle structures for StayPilot.
package models

import "time"

// ConversationState is one of the finite lifecycle states of a conversation.
type ConversationState string

const (
	ConversationNew       ConversationState = "new"
	ConversationActive    ConversationState = "active"
	ConversationWaiting   ConversationState = "waiting"
	ConversationEscalated ConversationState = "escalated"
	ConversationResolved  ConversationState = "resolved"
	ConversationClosed    ConversationState = "closed"
)

// ConversationEvent drives transitions of the conversation state machine.
type ConversationEvent string

const (
	ConvEventMessageReceived     ConversationEvent = "message_received"
	ConvEventResponseSent        ConversationEvent = "response_sent"
	ConvEventEscalationTriggered ConversationEvent = "escalation_triggered"
	ConvEventStaffAssigned       ConversationEvent = "staff_assigned"
	ConvEventStaffResolved       ConversationEvent = "staff_resolved"
	ConvEventGuestSatisfied      ConversationEvent = "guest_satisfied"
	ConvEventTimeout             ConversationEvent = "timeout"
	ConvEventReopen              ConversationEvent = "reopen"
)

// TransitionResult reports the outcome of a state machine transition attempt.
// Invalid transitions are reported, never thrown.
type TransitionResult struct {
	Success bool              `json:"success"`
	From    ConversationState `json:"from"`
	To      ConversationState `json:"to"`
	Reason  string            `json:"reason,omitempty"`
}

// MessageDirection distinguishes guest messages from outbound replies.
type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

// Conversation is the persisted conversation record. The state machine is a
// thin wrapper instantiated on demand from the State column.
type Conversation struct {
	ID        string            `json:"id"`
	GuestID   string            `json:"guest_id"`
	Channel   string            `json:"channel"` // e.g. "whatsapp", "sms"
	State     ConversationState `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Message is one message in a conversation's history.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Direction      MessageDirection `json:"direction"`
	Body           string           `json:"body"`
	CreatedAt      time.Time        `json:"created_at"`
}
