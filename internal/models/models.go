// Package models defines the core data structures for StayPilot.
//
// It includes automation rules, action chains, execution results, and the
// hospitality domain records shared across modules.
package models

import (
	"errors"
	"time"
)

// TriggerType defines how an automation rule is triggered.
type TriggerType string

const (
	// TriggerTypeTimeBased fires relative to reservation arrival/departure dates.
	TriggerTypeTimeBased TriggerType = "time_based"
	// TriggerTypeEventBased fires on matching domain events.
	TriggerTypeEventBased TriggerType = "event_based"
)

// TimeTriggerKind defines the subtype of a time-based trigger.
type TimeTriggerKind string

const (
	TimeTriggerBeforeArrival   TimeTriggerKind = "before_arrival"
	TimeTriggerAfterArrival    TimeTriggerKind = "after_arrival"
	TimeTriggerBeforeDeparture TimeTriggerKind = "before_departure"
	TimeTriggerAfterDeparture  TimeTriggerKind = "after_departure"
	TimeTriggerScheduled       TimeTriggerKind = "scheduled"
)

// ActionType defines the kind of work an action performs.
type ActionType string

const (
	// ActionSendMessage sends an outbound message to the guest.
	ActionSendMessage ActionType = "send_message"
	// ActionCreateTask creates a staff task.
	ActionCreateTask ActionType = "create_task"
	// ActionNotifyStaff emits a staff notification.
	ActionNotifyStaff ActionType = "notify_staff"
	// ActionWebhook calls an external webhook URL.
	ActionWebhook ActionType = "webhook"
)

// ActionCondition gates whether an action in a chain runs.
type ActionCondition string

const (
	// ConditionAlways runs the action unconditionally. Empty condition means the same.
	ConditionAlways ActionCondition = "always"
	// ConditionPreviousSuccess runs iff the immediately preceding action succeeded.
	ConditionPreviousSuccess ActionCondition = "previous_success"
	// ConditionPreviousFailed runs iff the immediately preceding action failed.
	ConditionPreviousFailed ActionCondition = "previous_failed"
	// ConditionExpression evaluates a boolean expression against prior outputs.
	ConditionExpression ActionCondition = "expression"
)

// Validation error variables shared across modules.
var (
	ErrEmptyRuleName        = errors.New("rule name cannot be empty")
	ErrInvalidTriggerType   = errors.New("invalid trigger type")
	ErrInvalidActionType    = errors.New("invalid action type")
	ErrEmptyActionChain     = errors.New("rule must have at least one action")
	ErrDuplicateActionOrder = errors.New("action order values must be unique within a rule")
	ErrRuleNotFound         = errors.New("automation rule not found")
	ErrExecutionNotFound    = errors.New("execution record not found")
)

// IsValidTriggerType checks if the given trigger type is supported.
func IsValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerTypeTimeBased, TriggerTypeEventBased:
		return true
	default:
		return false
	}
}

// IsValidActionType checks if the given action type is supported.
func IsValidActionType(t ActionType) bool {
	switch t {
	case ActionSendMessage, ActionCreateTask, ActionNotifyStaff, ActionWebhook:
		return true
	default:
		return false
	}
}

// TriggerConfig is the polymorphic trigger configuration, tagged by the
// rule's TriggerType. Event-based rules use EventType and Conditions;
// time-based rules use Kind, OffsetDays, and Time.
type TriggerConfig struct {
	// Event-based fields.
	EventType  string            `json:"event_type,omitempty"`
	Conditions map[string]string `json:"conditions,omitempty"`

	// Time-based fields.
	Kind       TimeTriggerKind `json:"type,omitempty"`
	OffsetDays *int            `json:"offset_days,omitempty"`
	Time       string          `json:"time,omitempty"` // "HH:mm", empty matches every eligible tick
}

// ActionDefinition is one step of a rule's action chain.
type ActionDefinition struct {
	ID              string          `json:"id"`
	Type            ActionType      `json:"type"`
	Config          map[string]any  `json:"config,omitempty"`
	Order           int             `json:"order"` // 1-based, unique within a rule
	ContinueOnError bool            `json:"continue_on_error,omitempty"`
	Condition       ActionCondition `json:"condition,omitempty"`
	// Expression is evaluated when Condition is "expression". It references
	// prior outputs as actions.<id>.output.<field>.
	Expression string `json:"expression,omitempty"`
}

// AutomationRule is a staff-configured rule: a trigger plus an ordered action chain.
// The engine mutates only the stats fields (RunCount, LastRunAt, LastError).
type AutomationRule struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	TriggerType   TriggerType        `json:"trigger_type"`
	TriggerConfig TriggerConfig      `json:"trigger_config"`
	Actions       []ActionDefinition `json:"actions"`
	Enabled       bool               `json:"enabled"`
	RetryConfig   *RetryConfig       `json:"retry_config,omitempty"`
	RunCount      int                `json:"run_count"`
	LastRunAt     *time.Time         `json:"last_run_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Validate performs validation on an AutomationRule definition.
func (r *AutomationRule) Validate() error {
	if r.Name == "" {
		return ErrEmptyRuleName
	}
	if !IsValidTriggerType(r.TriggerType) {
		return ErrInvalidTriggerType
	}
	if len(r.Actions) == 0 {
		return ErrEmptyActionChain
	}
	seen := make(map[int]bool, len(r.Actions))
	for _, a := range r.Actions {
		if !IsValidActionType(a.Type) {
			return ErrInvalidActionType
		}
		if seen[a.Order] {
			return ErrDuplicateActionOrder
		}
		seen[a.Order] = true
	}
	return nil
}

// AutomationEvent is an ephemeral domain event delivered to the engine.
// Events are never persisted as-is, only summarized into execution logs.
type AutomationEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// stringField returns a string-valued data field, tolerating missing keys.
func (e *AutomationEvent) stringField(key string) string {
	if e == nil || e.Data == nil {
		return ""
	}
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// GuestID returns the guest ID carried by the event, if any.
func (e *AutomationEvent) GuestID() string { return e.stringField("guest_id") }

// ReservationID returns the reservation ID carried by the event, if any.
func (e *AutomationEvent) ReservationID() string { return e.stringField("reservation_id") }

// ConversationID returns the conversation ID carried by the event, if any.
func (e *AutomationEvent) ConversationID() string { return e.stringField("conversation_id") }

// TaskID returns the task ID carried by the event, if any.
func (e *AutomationEvent) TaskID() string { return e.stringField("task_id") }
