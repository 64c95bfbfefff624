// Package models defines approval queue structures for StayPilot.
package models

import (
	"errors"
	"time"
)

// ApprovalItemType classifies what a pending approval will do once approved.
type ApprovalItemType string

const (
	// ApprovalTypeResponse sends an outbound message on the linked conversation.
	ApprovalTypeResponse ApprovalItemType = "response"
	// ApprovalTypeTask creates a staff task.
	ApprovalTypeTask ApprovalItemType = "task"
	// ApprovalTypeOffer is accepted into the queue but execution is not implemented.
	ApprovalTypeOffer ApprovalItemType = "offer"
)

// ApprovalStatus is the decision state of a queue item.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval queue error variables.
var (
	ErrApprovalNotFound    = errors.New("approval queue item not found")
	ErrApprovalNotPending  = errors.New("cannot decide non-pending approval item")
	ErrApprovalNotApproved = errors.New("cannot execute non-approved approval item")
)

// ApprovalQueueItem is a durable pending human decision. Items transition
// status at most once (pending -> approved or pending -> rejected) and are
// never deleted.
type ApprovalQueueItem struct {
	ID              string           `json:"id"`
	Type            ApprovalItemType `json:"type"`
	ActionType      string           `json:"action_type"`
	ActionData      map[string]any   `json:"action_data,omitempty"` // opaque to the queue
	ConversationID  string           `json:"conversation_id,omitempty"`
	GuestID         string           `json:"guest_id,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
	Status          ApprovalStatus   `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	DecidedAt       *time.Time       `json:"decided_at,omitempty"`
	DecidedBy       string           `json:"decided_by,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// ApprovalDetails is an ApprovalQueueItem enriched with derived display data
// for staff review. None of this is persisted identity; it is recomputed on
// every read.
type ApprovalDetails struct {
	ApprovalQueueItem
	GuestName            string    `json:"guest_name,omitempty"`
	ConversationChannel  string    `json:"conversation_channel,omitempty"`
	ConversationState    string    `json:"conversation_state,omitempty"`
	RecentMessages       []Message `json:"recent_messages,omitempty"` // oldest first, at most 10
	RoomNumber           string    `json:"room_number,omitempty"`
	DecidedByName        string    `json:"decided_by_name,omitempty"`
	NeedsStaffAttention  bool      `json:"needs_staff_attention,omitempty"`
}

// ApprovalStats reports queue counters. "Today" is local-midnight-relative
// to decision time.
type ApprovalStats struct {
	Pending       int `json:"pending"`
	ApprovedToday int `json:"approved_today"`
	RejectedToday int `json:"rejected_today"`
}
