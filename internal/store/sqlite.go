// Package store provides storage backends for StayPilot.
//
// This file implements the SQLite-backed store, the default persistence for
// single-property deployments.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/util"
	"github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on top of a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

const ruleColumns = `id, name, description, trigger_type, trigger_config, actions,
	action_type, action_config, retry_config, enabled, run_count, last_run_at,
	last_error, created_at, updated_at`

func (s *SQLiteStore) CreateRule(rule models.AutomationRule) error {
	triggerConfig, err := encodeTriggerConfig(rule.TriggerConfig)
	if err != nil {
		return err
	}
	actionsJSON, err := encodeActionChain(rule.Actions)
	if err != nil {
		return err
	}
	retryConfig, err := encodeRetryConfig(rule.RetryConfig)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO automation_rules (id, name, description, trigger_type, trigger_config, actions, retry_config, enabled, run_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		rule.ID, rule.Name, nilIfEmpty(rule.Description), rule.TriggerType,
		triggerConfig, actionsJSON, nilIfEmpty(retryConfig), rule.Enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
	}
	slog.Debug("SQLiteStore.CreateRule", "id", rule.ID, "name", rule.Name)
	return nil
}

func (s *SQLiteStore) GetRule(id string) (*models.AutomationRule, error) {
	row := s.db.QueryRow(`SELECT `+ruleColumns+` FROM automation_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return &rule, nil
}

func (s *SQLiteStore) listRules(where string, args ...any) ([]models.AutomationRule, error) {
	rows, err := s.db.Query(`SELECT `+ruleColumns+` FROM automation_rules `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			// A malformed rule row must not block the remaining rules.
			slog.Error("SQLiteStore.listRules: skipping malformed rule row", "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule rows: %w", err)
	}
	return rules, nil
}

func (s *SQLiteStore) ListRules() ([]models.AutomationRule, error) {
	return s.listRules("")
}

func (s *SQLiteStore) ListEnabledRules() ([]models.AutomationRule, error) {
	return s.listRules("WHERE enabled = 1")
}

func (s *SQLiteStore) UpdateRule(id string, upd RuleUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nilIfEmpty(*upd.Description))
	}
	if upd.TriggerType != nil {
		sets = append(sets, "trigger_type = ?")
		args = append(args, *upd.TriggerType)
	}
	if upd.TriggerConfig != nil {
		encoded, err := encodeTriggerConfig(*upd.TriggerConfig)
		if err != nil {
			return err
		}
		sets = append(sets, "trigger_config = ?")
		args = append(args, encoded)
	}
	if upd.Actions != nil {
		encoded, err := encodeActionChain(*upd.Actions)
		if err != nil {
			return err
		}
		// Writing a chain clears any legacy single-action columns.
		sets = append(sets, "actions = ?", "action_type = NULL", "action_config = NULL")
		args = append(args, encoded)
	}
	if upd.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *upd.Enabled)
	}
	if upd.RetryConfig != nil {
		encoded, err := encodeRetryConfig(upd.RetryConfig)
		if err != nil {
			return err
		}
		sets = append(sets, "retry_config = ?")
		args = append(args, nilIfEmpty(encoded))
	}

	args = append(args, id)
	result, err := s.db.Exec(`UPDATE automation_rules SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update rule %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteRule(id string) error {
	result, err := s.db.Exec(`DELETE FROM automation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

func (s *SQLiteStore) SetRuleEnabled(id string, enabled bool) error {
	result, err := s.db.Exec(
		`UPDATE automation_rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle rule %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

// RecordRuleRun applies stats in one statement so concurrent firings of the
// same rule cannot lose updates.
func (s *SQLiteStore) RecordRuleRun(id string, at time.Time, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_rules
		 SET run_count = run_count + 1,
		     last_run_at = ?,
		     last_error = CASE WHEN ? != '' THEN ? ELSE last_error END,
		     updated_at = ?
		 WHERE id = ?`,
		at, errMsg, nilIfEmpty(errMsg), at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record rule run %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SetRuleLastError(id string, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_rules SET last_error = ?, updated_at = ? WHERE id = ?`,
		nilIfEmpty(errMsg), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set rule last error %s: %w", id, err)
	}
	return nil
}

const executionColumns = `id, rule_id, status, context_json, results_json, error, attempt, next_retry_at, created_at, updated_at`

func (s *SQLiteStore) CreateExecution(exec models.Execution) error {
	_, err := s.db.Exec(
		`INSERT INTO automation_executions (id, rule_id, status, context_json, attempt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.RuleID, exec.Status, nilIfEmpty(exec.ContextJSON),
		exec.Attempt, exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", exec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetExecution(id string) (*models.Execution, error) {
	row := s.db.QueryRow(`SELECT `+executionColumns+` FROM automation_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	return &exec, nil
}

func (s *SQLiteStore) CompleteExecution(id string, resultsJSON string) error {
	_, err := s.db.Exec(
		`UPDATE automation_executions SET status = 'completed', results_json = ?, next_retry_at = NULL, updated_at = ? WHERE id = ?`,
		nilIfEmpty(resultsJSON), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ScheduleExecutionRetry(id string, attempt int, errMsg string, nextRetryAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE automation_executions SET status = 'pending', attempt = ?, error = ?, next_retry_at = ?, updated_at = ? WHERE id = ?`,
		attempt, nilIfEmpty(errMsg), nextRetryAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retry for execution %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) FailExecution(id string, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_executions SET status = 'failed', error = ?, next_retry_at = NULL, updated_at = ? WHERE id = ?`,
		nilIfEmpty(errMsg), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ListDueExecutions(now time.Time, limit int) ([]models.Execution, error) {
	rows, err := s.db.Query(
		`SELECT `+executionColumns+` FROM automation_executions
		 WHERE status = 'pending' AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		 ORDER BY next_retry_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due executions: %w", err)
	}
	defer rows.Close()

	var execs []models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution rows: %w", err)
	}
	return execs, nil
}

func (s *SQLiteStore) AddExecutionLog(log models.ExecutionLog) error {
	_, err := s.db.Exec(
		`INSERT INTO automation_logs (id, rule_id, reservation_id, run_date, scheduled, status, results_json, error, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		log.ID, log.RuleID, nilIfEmpty(log.ReservationID), log.RunDate,
		log.Status, nilIfEmpty(log.ResultsJSON), nilIfEmpty(log.Error), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution log %s: %w", log.ID, err)
	}
	return nil
}

// ClaimScheduledRun inserts the daily run marker for a rule+reservation. The
// partial unique index makes concurrent claims race-safe: the loser observes
// a constraint violation and reports claimed=false.
func (s *SQLiteStore) ClaimScheduledRun(ruleID, reservationID, runDate string) (string, bool, error) {
	id := util.GenerateRandomID("log_", 32)
	_, err := s.db.Exec(
		`INSERT INTO automation_logs (id, rule_id, reservation_id, run_date, scheduled, status, created_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		id, ruleID, reservationID, runDate, models.ChainStatusPending, time.Now(),
	)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
			slog.Debug("SQLiteStore.ClaimScheduledRun: already ran today", "ruleID", ruleID, "reservationID", reservationID, "runDate", runDate)
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to claim scheduled run: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteStore) UpdateExecutionLog(id string, status models.ChainStatus, resultsJSON, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_logs SET status = ?, results_json = ?, error = ? WHERE id = ?`,
		status, nilIfEmpty(resultsJSON), nilIfEmpty(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution log %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ListExecutionLogs(ruleID string, limit int) ([]models.ExecutionLog, error) {
	rows, err := s.db.Query(
		`SELECT id, rule_id, reservation_id, run_date, status, results_json, error, created_at
		 FROM automation_logs WHERE rule_id = ? ORDER BY created_at DESC LIMIT ?`,
		ruleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ExecutionLog
	for rows.Next() {
		l, err := scanExecutionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

const approvalColumns = `id, type, action_type, action_data, conversation_id, guest_id, confidence, status, created_at, decided_at, decided_by, rejection_reason`

func (s *SQLiteStore) CreateApprovalItem(item models.ApprovalQueueItem) error {
	actionData, err := marshalActionData(item.ActionData)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO approval_queue (id, type, action_type, action_data, conversation_id, guest_id, confidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Type, item.ActionType, nilIfEmpty(actionData),
		nilIfEmpty(item.ConversationID), nilIfEmpty(item.GuestID),
		item.Confidence, item.Status, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval item %s: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetApprovalItem(id string) (*models.ApprovalQueueItem, error) {
	row := s.db.QueryRow(`SELECT `+approvalColumns+` FROM approval_queue WHERE id = ?`, id)
	item, err := scanApprovalItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval item %s: %w", id, err)
	}
	return &item, nil
}

func (s *SQLiteStore) ListApprovalItems(status models.ApprovalStatus, limit int) ([]models.ApprovalQueueItem, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval items: %w", err)
	}
	defer rows.Close()

	var items []models.ApprovalQueueItem
	for rows.Next() {
		item, err := scanApprovalItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DecideApprovalItem transitions a pending item exactly once. The status
// guard lives in the WHERE clause so concurrent decisions cannot both win.
func (s *SQLiteStore) DecideApprovalItem(id string, status models.ApprovalStatus, decidedBy, reason string, decidedAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE approval_queue SET status = ?, decided_at = ?, decided_by = ?, rejection_reason = ?
		 WHERE id = ? AND status = 'pending'`,
		status, decidedAt, decidedBy, nilIfEmpty(reason), id,
	)
	if err != nil {
		return fmt.Errorf("failed to decide approval item %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		existing, err := s.GetApprovalItem(id)
		if err != nil {
			return err
		}
		if existing == nil {
			return models.ErrApprovalNotFound
		}
		return fmt.Errorf("%w: item %s is %s", models.ErrApprovalNotPending, id, existing.Status)
	}
	return nil
}

func (s *SQLiteStore) CountApprovalPending() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM approval_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountApprovalDecidedBetween(status models.ApprovalStatus, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM approval_queue WHERE status = ? AND decided_at >= ? AND decided_at < ?`,
		status, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count decided approvals: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SaveSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(c models.Conversation) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, guest_id, channel, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.GuestID, nilIfEmpty(c.Channel), c.State, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	var c models.Conversation
	var channel sql.NullString
	err := s.db.QueryRow(
		`SELECT id, guest_id, channel, state, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.GuestID, &channel, &c.State, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	c.Channel = channel.String
	return &c, nil
}

func (s *SQLiteStore) GetConversationsByIDs(ids []string) (map[string]models.Conversation, error) {
	result := make(map[string]models.Conversation, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query := `SELECT id, guest_id, channel, state, created_at, updated_at FROM conversations WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.db.Query(query, toAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Conversation
		var channel sql.NullString
		if err := rows.Scan(&c.ID, &c.GuestID, &channel, &c.State, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		c.Channel = channel.String
		result[c.ID] = c
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateConversationState(id string, state models.ConversationState) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation state %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (id, conversation_id, direction, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Direction, m.Body, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
	}
	return nil
}

// RecentMessages returns the n most recent messages at or before the given
// time, oldest first.
func (s *SQLiteStore) RecentMessages(conversationID string, before time.Time, n int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_id, direction, body, created_at FROM messages
		 WHERE conversation_id = ? AND created_at <= ?
		 ORDER BY created_at DESC LIMIT ?`,
		conversationID, before, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) SaveGuest(g models.Guest) error {
	_, err := s.db.Exec(
		`INSERT INTO guests (id, name, phone, email, language) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, phone = excluded.phone, email = excluded.email, language = excluded.language`,
		g.ID, g.Name, nilIfEmpty(g.Phone), nilIfEmpty(g.Email), nilIfEmpty(g.Language),
	)
	if err != nil {
		return fmt.Errorf("failed to save guest %s: %w", g.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetGuest(id string) (*models.Guest, error) {
	var g models.Guest
	var phone, email, language sql.NullString
	err := s.db.QueryRow(`SELECT id, name, phone, email, language FROM guests WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &phone, &email, &language)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest %s: %w", id, err)
	}
	g.Phone = phone.String
	g.Email = email.String
	g.Language = language.String
	return &g, nil
}

func (s *SQLiteStore) GetGuestsByIDs(ids []string) (map[string]models.Guest, error) {
	result := make(map[string]models.Guest, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.Query(
		`SELECT id, name, phone, email, language FROM guests WHERE id IN (`+placeholders(len(ids))+`)`,
		toAnySlice(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query guests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g models.Guest
		var phone, email, language sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &phone, &email, &language); err != nil {
			return nil, fmt.Errorf("failed to scan guest row: %w", err)
		}
		g.Phone = phone.String
		g.Email = email.String
		g.Language = language.String
		result[g.ID] = g
	}
	return result, rows.Err()
}

func (s *SQLiteStore) SaveReservation(r models.Reservation) error {
	_, err := s.db.Exec(
		`INSERT INTO reservations (id, guest_id, room_number, arrival_date, departure_date, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET guest_id = excluded.guest_id, room_number = excluded.room_number,
		   arrival_date = excluded.arrival_date, departure_date = excluded.departure_date, status = excluded.status`,
		r.ID, r.GuestID, nilIfEmpty(r.RoomNumber), r.ArrivalDate, r.DepartureDate, r.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetReservation(id string) (*models.Reservation, error) {
	row := s.db.QueryRow(`SELECT id, guest_id, room_number, arrival_date, departure_date, status FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %s: %w", id, err)
	}
	return &r, nil
}

func (s *SQLiteStore) GetActiveReservationForGuest(guestID string) (*models.Reservation, error) {
	row := s.db.QueryRow(
		`SELECT id, guest_id, room_number, arrival_date, departure_date, status FROM reservations
		 WHERE guest_id = ? AND status IN ('confirmed', 'checked_in')
		 ORDER BY CASE status WHEN 'checked_in' THEN 0 ELSE 1 END, arrival_date ASC LIMIT 1`,
		guestID,
	)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active reservation for guest %s: %w", guestID, err)
	}
	return &r, nil
}

func (s *SQLiteStore) listReservationsByDate(column, date, status string) ([]models.Reservation, error) {
	rows, err := s.db.Query(
		`SELECT id, guest_id, room_number, arrival_date, departure_date, status FROM reservations
		 WHERE date(`+column+`) = ? AND status = ?`,
		date, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations by %s: %w", column, err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation row: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func (s *SQLiteStore) ListReservationsByArrival(date string, status string) ([]models.Reservation, error) {
	return s.listReservationsByDate("arrival_date", date, status)
}

func (s *SQLiteStore) ListReservationsByDeparture(date string, status string) ([]models.Reservation, error) {
	return s.listReservationsByDate("departure_date", date, status)
}

func (s *SQLiteStore) SaveStaff(st models.StaffMember) error {
	_, err := s.db.Exec(
		`INSERT INTO staff (id, name, role) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role`,
		st.ID, st.Name, nilIfEmpty(st.Role),
	)
	if err != nil {
		return fmt.Errorf("failed to save staff %s: %w", st.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetStaffByIDs(ids []string) (map[string]models.StaffMember, error) {
	result := make(map[string]models.StaffMember, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.Query(
		`SELECT id, name, role FROM staff WHERE id IN (`+placeholders(len(ids))+`)`,
		toAnySlice(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st models.StaffMember
		var role sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &role); err != nil {
			return nil, fmt.Errorf("failed to scan staff row: %w", err)
		}
		st.Role = role.String
		result[st.ID] = st
	}
	return result, rows.Err()
}

func (s *SQLiteStore) CreateTask(t models.Task) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, title, description, department, priority, status, guest_id, reservation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, nilIfEmpty(t.Description), nilIfEmpty(t.Department),
		nilIfEmpty(t.Priority), t.Status, nilIfEmpty(t.GuestID),
		nilIfEmpty(t.ReservationID), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(id string) (*models.Task, error) {
	var t models.Task
	var description, department, priority, guestID, reservationID sql.NullString
	err := s.db.QueryRow(
		`SELECT id, title, description, department, priority, status, guest_id, reservation_id, created_at FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &description, &department, &priority, &t.Status, &guestID, &reservationID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	t.Description = description.String
	t.Department = department.String
	t.Priority = priority.String
	t.GuestID = guestID.String
	t.ReservationID = reservationID.String
	return &t, nil
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// toAnySlice converts string arguments for variadic query calls.
func toAnySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
