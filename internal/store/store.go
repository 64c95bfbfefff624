// Package store provides storage backends for StayPilot.
//
// It defines the Store interface consumed by the automation core and ships
// three implementations: in-memory (tests), SQLite (default), and PostgreSQL.
package store

import (
	"strings"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType determines whether a DSN targets PostgreSQL or SQLite.
// PostgreSQL DSNs use URL or key=value form; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// RuleUpdate carries a partial field set for rule updates. Nil fields are
// left untouched; only provided fields plus updated_at are rewritten.
type RuleUpdate struct {
	Name          *string
	Description   *string
	TriggerType   *models.TriggerType
	TriggerConfig *models.TriggerConfig
	Actions       *[]models.ActionDefinition
	Enabled       *bool
	RetryConfig   *models.RetryConfig
}

// Store is the persistence contract for the automation core.
type Store interface {
	// Automation rules. Legacy single-action rows are normalized to a
	// one-element chain on every read.
	CreateRule(rule models.AutomationRule) error
	GetRule(id string) (*models.AutomationRule, error)
	ListRules() ([]models.AutomationRule, error)
	ListEnabledRules() ([]models.AutomationRule, error)
	UpdateRule(id string, upd RuleUpdate) error
	DeleteRule(id string) error
	SetRuleEnabled(id string, enabled bool) error
	// RecordRuleRun applies rule stats in a single atomic update: increments
	// run_count, stamps last_run_at, and sets last_error only when errMsg is
	// non-empty.
	RecordRuleRun(id string, at time.Time, errMsg string) error
	// SetRuleLastError overwrites the rule's last_error (terminal retry failure).
	SetRuleLastError(id string, errMsg string) error

	// Durable execution records backing retries.
	CreateExecution(exec models.Execution) error
	GetExecution(id string) (*models.Execution, error)
	CompleteExecution(id string, resultsJSON string) error
	ScheduleExecutionRetry(id string, attempt int, errMsg string, nextRetryAt time.Time) error
	FailExecution(id string, errMsg string) error
	// ListDueExecutions returns pending executions whose next_retry_at <= now.
	ListDueExecutions(now time.Time, limit int) ([]models.Execution, error)

	// Execution logs. ClaimScheduledRun performs an atomic check-and-insert
	// keyed by (rule, reservation, run date); claimed is false when the pair
	// already ran that day.
	AddExecutionLog(log models.ExecutionLog) error
	ClaimScheduledRun(ruleID, reservationID, runDate string) (logID string, claimed bool, err error)
	UpdateExecutionLog(id string, status models.ChainStatus, resultsJSON, errMsg string) error
	ListExecutionLogs(ruleID string, limit int) ([]models.ExecutionLog, error)

	// Approval queue. Items transition status at most once; DecideApprovalItem
	// fails with models.ErrApprovalNotPending unless the item is pending.
	CreateApprovalItem(item models.ApprovalQueueItem) error
	GetApprovalItem(id string) (*models.ApprovalQueueItem, error)
	ListApprovalItems(status models.ApprovalStatus, limit int) ([]models.ApprovalQueueItem, error)
	DecideApprovalItem(id string, status models.ApprovalStatus, decidedBy, reason string, decidedAt time.Time) error
	CountApprovalPending() (int, error)
	CountApprovalDecidedBetween(status models.ApprovalStatus, from, to time.Time) (int, error)

	// Settings key-value rows (autonomy configuration lives under "autonomy").
	GetSetting(key string) (string, error)
	SaveSetting(key, value string) error

	// Conversations and message history. The core owns conversation state and
	// its collaborators append to message history.
	CreateConversation(c models.Conversation) error
	GetConversation(id string) (*models.Conversation, error)
	GetConversationsByIDs(ids []string) (map[string]models.Conversation, error)
	UpdateConversationState(id string, state models.ConversationState) error
	AddMessage(m models.Message) error
	// RecentMessages returns the n most recent messages at or before the
	// given time, oldest first.
	RecentMessages(conversationID string, before time.Time, n int) ([]models.Message, error)

	// Guests and reservations (read-mostly, owned by the PMS side).
	SaveGuest(g models.Guest) error
	GetGuest(id string) (*models.Guest, error)
	GetGuestsByIDs(ids []string) (map[string]models.Guest, error)
	SaveReservation(r models.Reservation) error
	GetReservation(id string) (*models.Reservation, error)
	GetActiveReservationForGuest(guestID string) (*models.Reservation, error)
	ListReservationsByArrival(date string, status string) ([]models.Reservation, error)
	ListReservationsByDeparture(date string, status string) ([]models.Reservation, error)

	// Staff and tasks.
	SaveStaff(s models.StaffMember) error
	GetStaffByIDs(ids []string) (map[string]models.StaffMember, error)
	CreateTask(t models.Task) error
	GetTask(id string) (*models.Task, error)

	// Close releases backend resources.
	Close() error
}
