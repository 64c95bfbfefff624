// Package store provides storage backends for StayPilot.
//
// This file implements the PostgreSQL-backed store for multi-property
// deployments.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/util"
	"github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

func (s *PostgresStore) CreateRule(rule models.AutomationRule) error {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)`,
		rule.ID, rule.Name, nilIfEmpty(rule.Description), rule.TriggerType,
		triggerConfig, actionsJSON, nilIfEmpty(retryConfig), rule.Enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetRule(id string) (*models.AutomationRule, error) {
	row := s.db.QueryRow(`SELECT `+ruleColumns+` FROM automation_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return &rule, nil
}

func (s *PostgresStore) listRules(where string) ([]models.AutomationRule, error) {
	rows, err := s.db.Query(`SELECT ` + ruleColumns + ` FROM automation_rules ` + where + ` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			slog.Error("PostgresStore.listRules: skipping malformed rule row", "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule rows: %w", err)
	}
	return rules, nil
}

func (s *PostgresStore) ListRules() ([]models.AutomationRule, error) {
	return s.listRules("")
}

func (s *PostgresStore) ListEnabledRules() ([]models.AutomationRule, error) {
	return s.listRules("WHERE enabled")
}

func (s *PostgresStore) UpdateRule(id string, upd RuleUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now()}
	next := 2

	add := func(column string, value any) {
		sets = append(sets, column+" = $"+strconv.Itoa(next))
		args = append(args, value)
		next++
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Description != nil {
		add("description", nilIfEmpty(*upd.Description))
	}
	if upd.TriggerType != nil {
		add("trigger_type", *upd.TriggerType)
	}
	if upd.TriggerConfig != nil {
		encoded, err := encodeTriggerConfig(*upd.TriggerConfig)
		if err != nil {
			return err
		}
		add("trigger_config", encoded)
	}
	if upd.Actions != nil {
		encoded, err := encodeActionChain(*upd.Actions)
		if err != nil {
			return err
		}
		add("actions", encoded)
		sets = append(sets, "action_type = NULL", "action_config = NULL")
	}
	if upd.Enabled != nil {
		add("enabled", *upd.Enabled)
	}
	if upd.RetryConfig != nil {
		encoded, err := encodeRetryConfig(upd.RetryConfig)
		if err != nil {
			return err
		}
		add("retry_config", nilIfEmpty(encoded))
	}

	args = append(args, id)
	result, err := s.db.Exec(
		`UPDATE automation_rules SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(next),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRule(id string) error {
	result, err := s.db.Exec(`DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

func (s *PostgresStore) SetRuleEnabled(id string, enabled bool) error {
	result, err := s.db.Exec(
		`UPDATE automation_rules SET enabled = $1, updated_at = $2 WHERE id = $3`,
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

func (s *PostgresStore) RecordRuleRun(id string, at time.Time, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_rules
		 SET run_count = run_count + 1,
		     last_run_at = $1,
		     last_error = CASE WHEN $2 != '' THEN $2 ELSE last_error END,
		     updated_at = $1
		 WHERE id = $3`,
		at, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record rule run %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) SetRuleLastError(id string, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_rules SET last_error = $1, updated_at = $2 WHERE id = $3`,
		nilIfEmpty(errMsg), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set rule last error %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) CreateExecution(exec models.Execution) error {
	_, err := s.db.Exec(
		`INSERT INTO automation_executions (id, rule_id, status, context_json, attempt, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		exec.ID, exec.RuleID, exec.Status, nilIfEmpty(exec.ContextJSON),
		exec.Attempt, exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", exec.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetExecution(id string) (*models.Execution, error) {
	row := s.db.QueryRow(`SELECT `+executionColumns+` FROM automation_executions WHERE id = $1`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	return &exec, nil
}

func (s *PostgresStore) CompleteExecution(id string, resultsJSON string) error {
	_, err := s.db.Exec(
		`UPDATE automation_executions SET status = 'completed', results_json = $1, next_retry_at = NULL, updated_at = $2 WHERE id = $3`,
		nilIfEmpty(resultsJSON), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ScheduleExecutionRetry(id string, attempt int, errMsg string, nextRetryAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE automation_executions SET status = 'pending', attempt = $1, error = $2, next_retry_at = $3, updated_at = $4 WHERE id = $5`,
		attempt, nilIfEmpty(errMsg), nextRetryAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retry for execution %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) FailExecution(id string, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_executions SET status = 'failed', error = $1, next_retry_at = NULL, updated_at = $2 WHERE id = $3`,
		nilIfEmpty(errMsg), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListDueExecutions(now time.Time, limit int) ([]models.Execution, error) {
	rows, err := s.db.Query(
		`SELECT `+executionColumns+` FROM automation_executions
		 WHERE status = 'pending' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		 ORDER BY next_retry_at ASC LIMIT $2`,
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
	return execs, rows.Err()
}

func (s *PostgresStore) AddExecutionLog(log models.ExecutionLog) error {
	_, err := s.db.Exec(
		`INSERT INTO automation_logs (id, rule_id, reservation_id, run_date, scheduled, status, results_json, error, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8)`,
		log.ID, log.RuleID, nilIfEmpty(log.ReservationID), log.RunDate,
		log.Status, nilIfEmpty(log.ResultsJSON), nilIfEmpty(log.Error), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution log %s: %w", log.ID, err)
	}
	return nil
}

func (s *PostgresStore) ClaimScheduledRun(ruleID, reservationID, runDate string) (string, bool, error) {
	id := util.GenerateRandomID("log_", 32)
	_, err := s.db.Exec(
		`INSERT INTO automation_logs (id, rule_id, reservation_id, run_date, scheduled, status, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		id, ruleID, reservationID, runDate, models.ChainStatusPending, time.Now(),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			slog.Debug("PostgresStore.ClaimScheduledRun: already ran today", "ruleID", ruleID, "reservationID", reservationID, "runDate", runDate)
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to claim scheduled run: %w", err)
	}
	return id, true, nil
}

func (s *PostgresStore) UpdateExecutionLog(id string, status models.ChainStatus, resultsJSON, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE automation_logs SET status = $1, results_json = $2, error = $3 WHERE id = $4`,
		status, nilIfEmpty(resultsJSON), nilIfEmpty(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution log %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListExecutionLogs(ruleID string, limit int) ([]models.ExecutionLog, error) {
	rows, err := s.db.Query(
		`SELECT id, rule_id, reservation_id, run_date, status, results_json, error, created_at
		 FROM automation_logs WHERE rule_id = $1 ORDER BY created_at DESC LIMIT $2`,
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

func (s *PostgresStore) CreateApprovalItem(item models.ApprovalQueueItem) error {
	actionData, err := marshalActionData(item.ActionData)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO approval_queue (id, type, action_type, action_data, conversation_id, guest_id, confidence, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.Type, item.ActionType, nilIfEmpty(actionData),
		nilIfEmpty(item.ConversationID), nilIfEmpty(item.GuestID),
		item.Confidence, item.Status, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval item %s: %w", item.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetApprovalItem(id string) (*models.ApprovalQueueItem, error) {
	row := s.db.QueryRow(`SELECT `+approvalColumns+` FROM approval_queue WHERE id = $1`, id)
	item, err := scanApprovalItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval item %s: %w", id, err)
	}
	return &item, nil
}

func (s *PostgresStore) ListApprovalItems(status models.ApprovalStatus, limit int) ([]models.ApprovalQueueItem, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

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

func (s *PostgresStore) DecideApprovalItem(id string, status models.ApprovalStatus, decidedBy, reason string, decidedAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE approval_queue SET status = $1, decided_at = $2, decided_by = $3, rejection_reason = $4
		 WHERE id = $5 AND status = 'pending'`,
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

func (s *PostgresStore) CountApprovalPending() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM approval_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountApprovalDecidedBetween(status models.ApprovalStatus, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM approval_queue WHERE status = $1 AND decided_at >= $2 AND decided_at < $3`,
		status, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count decided approvals: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) SaveSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) CreateConversation(c models.Conversation) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, guest_id, channel, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.GuestID, nilIfEmpty(c.Channel), c.State, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(id string) (*models.Conversation, error) {
	var c models.Conversation
	var channel sql.NullString
	err := s.db.QueryRow(
		`SELECT id, guest_id, channel, state, created_at, updated_at FROM conversations WHERE id = $1`, id,
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

func (s *PostgresStore) GetConversationsByIDs(ids []string) (map[string]models.Conversation, error) {
	result := make(map[string]models.Conversation, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.Query(
		`SELECT id, guest_id, channel, state, created_at, updated_at FROM conversations WHERE id = ANY($1)`,
		pq.Array(ids),
	)
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

func (s *PostgresStore) UpdateConversationState(id string, state models.ConversationState) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET state = $1, updated_at = $2 WHERE id = $3`,
		state, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation state %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (id, conversation_id, direction, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.Direction, m.Body, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(conversationID string, before time.Time, n int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_id, direction, body, created_at FROM messages
		 WHERE conversation_id = $1 AND created_at <= $2
		 ORDER BY created_at DESC LIMIT $3`,
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
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) SaveGuest(g models.Guest) error {
	_, err := s.db.Exec(
		`INSERT INTO guests (id, name, phone, email, language) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email, language = EXCLUDED.language`,
		g.ID, g.Name, nilIfEmpty(g.Phone), nilIfEmpty(g.Email), nilIfEmpty(g.Language),
	)
	if err != nil {
		return fmt.Errorf("failed to save guest %s: %w", g.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetGuest(id string) (*models.Guest, error) {
	var g models.Guest
	var phone, email, language sql.NullString
	err := s.db.QueryRow(`SELECT id, name, phone, email, language FROM guests WHERE id = $1`, id).
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

func (s *PostgresStore) GetGuestsByIDs(ids []string) (map[string]models.Guest, error) {
	result := make(map[string]models.Guest, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.Query(`SELECT id, name, phone, email, language FROM guests WHERE id = ANY($1)`, pq.Array(ids))
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

func (s *PostgresStore) SaveReservation(r models.Reservation) error {
	_, err := s.db.Exec(
		`INSERT INTO reservations (id, guest_id, room_number, arrival_date, departure_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET guest_id = EXCLUDED.guest_id, room_number = EXCLUDED.room_number,
		   arrival_date = EXCLUDED.arrival_date, departure_date = EXCLUDED.departure_date, status = EXCLUDED.status`,
		r.ID, r.GuestID, nilIfEmpty(r.RoomNumber), r.ArrivalDate, r.DepartureDate, r.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetReservation(id string) (*models.Reservation, error) {
	row := s.db.QueryRow(`SELECT id, guest_id, room_number, arrival_date, departure_date, status FROM reservations WHERE id = $1`, id)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %s: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) GetActiveReservationForGuest(guestID string) (*models.Reservation, error) {
	row := s.db.QueryRow(
		`SELECT id, guest_id, room_number, arrival_date, departure_date, status FROM reservations
		 WHERE guest_id = $1 AND status IN ('confirmed', 'checked_in')
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

func (s *PostgresStore) listReservationsByDate(column, date, status string) ([]models.Reservation, error) {
	rows, err := s.db.Query(
		`SELECT id, guest_id, room_number, arrival_date, departure_date, status FROM reservations
		 WHERE `+column+`::date = $1::date AND status = $2`,
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

func (s *PostgresStore) ListReservationsByArrival(date string, status string) ([]models.Reservation, error) {
	return s.listReservationsByDate("arrival_date", date, status)
}

func (s *PostgresStore) ListReservationsByDeparture(date string, status string) ([]models.Reservation, error) {
	return s.listReservationsByDate("departure_date", date, status)
}

func (s *PostgresStore) SaveStaff(st models.StaffMember) error {
	_, err := s.db.Exec(
		`INSERT INTO staff (id, name, role) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role`,
		st.ID, st.Name, nilIfEmpty(st.Role),
	)
	if err != nil {
		return fmt.Errorf("failed to save staff %s: %w", st.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetStaffByIDs(ids []string) (map[string]models.StaffMember, error) {
	result := make(map[string]models.StaffMember, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.Query(`SELECT id, name, role FROM staff WHERE id = ANY($1)`, pq.Array(ids))
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

func (s *PostgresStore) CreateTask(t models.Task) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, title, description, department, priority, status, guest_id, reservation_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Title, nilIfEmpty(t.Description), nilIfEmpty(t.Department),
		nilIfEmpty(t.Priority), t.Status, nilIfEmpty(t.GuestID),
		nilIfEmpty(t.ReservationID), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetTask(id string) (*models.Task, error) {
	var t models.Task
	var description, department, priority, guestID, reservationID sql.NullString
	err := s.db.QueryRow(
		`SELECT id, title, description, department, priority, status, guest_id, reservation_id, created_at FROM tasks WHERE id = $1`, id,
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
