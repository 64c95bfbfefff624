// Package models defines execution result structures for StayPilot action chains.
package models

import "time"

// ActionStatus represents the outcome of a single action in a chain.
type ActionStatus string

const (
	// ActionStatusSuccess indicates the action executed successfully.
	ActionStatusSuccess ActionStatus = "success"
	// ActionStatusFailed indicates the action executed and failed.
	ActionStatusFailed ActionStatus = "failed"
	// ActionStatusSkipped indicates the action's condition evaluated false.
	ActionStatusSkipped ActionStatus = "skipped"
)

// ChainStatus represents the outcome of a whole action chain.
type ChainStatus string

const (
	// ChainStatusPending indicates a claimed run whose chain has not finished.
	ChainStatusPending ChainStatus = "pending"
	// ChainStatusCompleted indicates no action failed fatally.
	ChainStatusCompleted ChainStatus = "completed"
	// ChainStatusFailed indicates a non-continue-on-error action failed.
	ChainStatusFailed ChainStatus = "failed"
	// ChainStatusPartial indicates some actions failed but the chain ran to the end.
	ChainStatusPartial ChainStatus = "partial"
)

// ActionResult records the outcome of one action. Actions after a fatal
// failure are absent from the chain's results entirely.
type ActionResult struct {
	ActionID    string         `json:"action_id"`
	Status      ActionStatus   `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMs  int64          `json:"duration_ms"`
}

// ChainResult records the outcome of an entire action chain.
type ChainResult struct {
	Status      ChainStatus    `json:"status"`
	Results     []ActionResult `json:"results"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMs  int64          `json:"duration_ms"`
}

// ExecutionResult is returned per matched rule from Evaluate and
// RunScheduledTriggers.
type ExecutionResult struct {
	RuleID      string       `json:"rule_id"`
	RuleName    string       `json:"rule_name"`
	ExecutionID string       `json:"execution_id,omitempty"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
	Chain       *ChainResult `json:"chain,omitempty"`
}

// ExecutionStatus represents the lifecycle state of a durable execution record.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution is the durable record backing retries. Created at evaluation
// time, updated on completion or retry scheduling, read by the retry sweep.
type Execution struct {
	ID          string          `json:"id"`
	RuleID      string          `json:"rule_id"`
	Status      ExecutionStatus `json:"status"`
	ContextJSON string          `json:"context_json"` // ExecutionContext snapshot
	ResultsJSON string          `json:"results_json,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempt     int             `json:"attempt"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ExecutionLog is one per-run outcome row. The (RuleID, ReservationID,
// RunDate) triple is unique, which enforces the once-per-day guard for
// time-based triggers.
type ExecutionLog struct {
	ID            string      `json:"id"`
	RuleID        string      `json:"rule_id"`
	ReservationID string      `json:"reservation_id,omitempty"`
	RunDate       string      `json:"run_date"` // "2006-01-02", local
	Status        ChainStatus `json:"status"`
	ResultsJSON   string      `json:"results_json,omitempty"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ExecutionContext is the read-only snapshot passed through trigger matching,
// autonomy checks, and action execution. PreviousResults is extended by the
// chain executor as actions complete.
type ExecutionContext struct {
	RuleID          string                  `json:"rule_id"`
	RuleName        string                  `json:"rule_name"`
	Event           *AutomationEvent        `json:"event,omitempty"`
	Guest           *GuestSnapshot          `json:"guest,omitempty"`
	Reservation     *ReservationSnapshot    `json:"reservation,omitempty"`
	ConversationID  string                  `json:"conversation_id,omitempty"`
	PreviousResults map[string]ActionResult `json:"previous_results,omitempty"`
}

// GuestSnapshot is the guest portion of an execution context.
type GuestSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
}

// ReservationSnapshot is the reservation portion of an execution context.
type ReservationSnapshot struct {
	ID            string    `json:"id"`
	GuestID       string    `json:"guest_id,omitempty"`
	RoomNumber    string    `json:"room_number,omitempty"`
	ArrivalDate   time.Time `json:"arrival_date"`
	DepartureDate time.Time `json:"departure_date"`
	Status        string    `json:"status"`
}
