package store

import (
	"database/sql"
	"fmt"

	"github.com/StayPilot/StayPilot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ruleScanner abstracts sql.Row and sql.Rows for shared rule scanning.
type ruleScanner interface {
	Scan(dest ...any) error
}

// scanRule scans and normalizes an automation rule row. Column order:
// id, name, description, trigger_type, trigger_config, actions, action_type,
// action_config, retry_config, enabled, run_count, last_run_at, last_error,
// created_at, updated_at.
func scanRule(sc ruleScanner) (models.AutomationRule, error) {
	var r models.AutomationRule
	var description, triggerConfig, actionsJSON, legacyType, legacyConfig, retryConfig, lastError sql.NullString
	var lastRunAt sql.NullTime
	err := sc.Scan(
		&r.ID, &r.Name, &description, &r.TriggerType, &triggerConfig, &actionsJSON,
		&legacyType, &legacyConfig, &retryConfig, &r.Enabled, &r.RunCount,
		&lastRunAt, &lastError, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	r.Description = description.String
	r.LastError = lastError.String
	if lastRunAt.Valid {
		r.LastRunAt = &lastRunAt.Time
	}

	r.TriggerConfig, err = decodeTriggerConfig(triggerConfig.String)
	if err != nil {
		return r, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.Actions, err = DecodeActionChain(actionsJSON.String, legacyType.String, legacyConfig.String)
	if err != nil {
		return r, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.RetryConfig, err = decodeRetryConfig(retryConfig.String)
	if err != nil {
		return r, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return r, nil
}

// scanExecution scans an execution record row. Column order: id, rule_id,
// status, context_json, results_json, error, attempt, next_retry_at,
// created_at, updated_at.
func scanExecution(sc ruleScanner) (models.Execution, error) {
	var e models.Execution
	var contextJSON, resultsJSON, errMsg sql.NullString
	var nextRetryAt sql.NullTime
	err := sc.Scan(
		&e.ID, &e.RuleID, &e.Status, &contextJSON, &resultsJSON, &errMsg,
		&e.Attempt, &nextRetryAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	e.ContextJSON = contextJSON.String
	e.ResultsJSON = resultsJSON.String
	e.Error = errMsg.String
	if nextRetryAt.Valid {
		e.NextRetryAt = &nextRetryAt.Time
	}
	return e, nil
}

// scanApprovalItem scans an approval queue row. Column order: id, type,
// action_type, action_data, conversation_id, guest_id, confidence, status,
// created_at, decided_at, decided_by, rejection_reason.
func scanApprovalItem(sc ruleScanner) (models.ApprovalQueueItem, error) {
	var item models.ApprovalQueueItem
	var actionData, conversationID, guestID, decidedBy, reason sql.NullString
	var decidedAt sql.NullTime
	err := sc.Scan(
		&item.ID, &item.Type, &item.ActionType, &actionData, &conversationID,
		&guestID, &item.Confidence, &item.Status, &item.CreatedAt,
		&decidedAt, &decidedBy, &reason,
	)
	if err != nil {
		return item, err
	}
	item.ConversationID = conversationID.String
	item.GuestID = guestID.String
	item.DecidedBy = decidedBy.String
	item.RejectionReason = reason.String
	if decidedAt.Valid {
		item.DecidedAt = &decidedAt.Time
	}
	if actionData.String != "" {
		if err := unmarshalActionData(actionData.String, &item.ActionData); err != nil {
			return item, fmt.Errorf("approval item %s: %w", item.ID, err)
		}
	}
	return item, nil
}

// scanExecutionLog scans a log row. Column order: id, rule_id,
// reservation_id, run_date, status, results_json, error, created_at.
func scanExecutionLog(sc ruleScanner) (models.ExecutionLog, error) {
	var l models.ExecutionLog
	var reservationID, status, resultsJSON, errMsg sql.NullString
	err := sc.Scan(
		&l.ID, &l.RuleID, &reservationID, &l.RunDate, &status,
		&resultsJSON, &errMsg, &l.CreatedAt,
	)
	if err != nil {
		return l, err
	}
	l.ReservationID = reservationID.String
	// Claimed rows written before the status column carried a placeholder
	// may still hold NULL; treat those as pending.
	l.Status = models.ChainStatus(status.String)
	if !status.Valid {
		l.Status = models.ChainStatusPending
	}
	l.ResultsJSON = resultsJSON.String
	l.Error = errMsg.String
	return l, nil
}

// scanReservation scans a reservation row. Column order: id, guest_id,
// room_number, arrival_date, departure_date, status.
func scanReservation(sc ruleScanner) (models.Reservation, error) {
	var r models.Reservation
	var roomNumber sql.NullString
	err := sc.Scan(&r.ID, &r.GuestID, &roomNumber, &r.ArrivalDate, &r.DepartureDate, &r.Status)
	if err != nil {
		return r, err
	}
	r.RoomNumber = roomNumber.String
	return r, nil
}
