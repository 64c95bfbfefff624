// Package models defines autonomy policy structures for StayPilot.
package models

// AutonomyLevel controls whether an action type executes automatically.
type AutonomyLevel string

const (
	// AutonomyL1 requires staff approval before execution.
	AutonomyL1 AutonomyLevel = "L1"
	// AutonomyL2 executes automatically.
	AutonomyL2 AutonomyLevel = "L2"
)

// AutonomyDecision is the outcome of a confidence check.
type AutonomyDecision string

const (
	// DecisionAuto means the action may execute without review.
	DecisionAuto AutonomyDecision = "auto"
	// DecisionApprovalRequired means the action must go through the approval queue.
	DecisionApprovalRequired AutonomyDecision = "approval_required"
)

// ActionAutonomyConfig is the per-action-type policy. Nil caps mean no
// auto-approval at any amount, not unlimited.
type ActionAutonomyConfig struct {
	Level          AutonomyLevel `json:"level"`
	MaxAutoAmount  *float64      `json:"max_auto_amount,omitempty"`
	MaxAutoPercent *float64      `json:"max_auto_percent,omitempty"`
}

// ConfidenceThresholds gate AI-generated content. Values at or above
// Approval auto-execute; values at or below Urgent flag urgent review.
type ConfidenceThresholds struct {
	Approval float64 `json:"approval"`
	Urgent   float64 `json:"urgent"`
}

// AutonomySettings is the singleton autonomy configuration, persisted as a
// single key-value row and cached in memory.
type AutonomySettings struct {
	DefaultLevel         AutonomyLevel                   `json:"default_level"`
	Actions              map[string]ActionAutonomyConfig `json:"actions"`
	ConfidenceThresholds ConfidenceThresholds            `json:"confidence_thresholds"`
}

// Well-known autonomy action-type keys.
const (
	AutonomyActionSendMessage   = "sendMessage"
	AutonomyActionCreateTask    = "createTask"
	AutonomyActionAnswerFAQ     = "answerFAQ"
	AutonomyActionIssueRefund   = "issueRefund"
	AutonomyActionApplyDiscount = "applyDiscount"
	AutonomyActionSendMarketing = "sendMarketing"
)

// DefaultAutonomySettings returns the documented default policy table:
// guest communication and task creation run autonomously, financially
// consequential actions require approval with zero caps.
func DefaultAutonomySettings() AutonomySettings {
	zero := 0.0
	return AutonomySettings{
		DefaultLevel: AutonomyL1,
		Actions: map[string]ActionAutonomyConfig{
			AutonomyActionSendMessage:   {Level: AutonomyL2},
			AutonomyActionAnswerFAQ:     {Level: AutonomyL2},
			AutonomyActionCreateTask:    {Level: AutonomyL2},
			AutonomyActionIssueRefund:   {Level: AutonomyL1, MaxAutoAmount: &zero},
			AutonomyActionApplyDiscount: {Level: AutonomyL1, MaxAutoPercent: &zero},
			AutonomyActionSendMarketing: {Level: AutonomyL1},
		},
		ConfidenceThresholds: ConfidenceThresholds{
			Approval: 0.8,
			Urgent:   0.4,
		},
	}
}
