// Package store provides storage backends for StayPilot.
//
// This file implements an in-memory store used by unit tests and by
// deployments that do not need durability.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/util"
)

// InMemoryStore is a mutex-guarded Store implementation.
type InMemoryStore struct {
	mu            sync.Mutex
	rules         map[string]models.AutomationRule
	executions    map[string]models.Execution
	logs          []models.ExecutionLog
	scheduledRuns map[string]bool // "ruleID|reservationID|runDate"
	approvals     map[string]models.ApprovalQueueItem
	settings      map[string]string
	conversations map[string]models.Conversation
	messages      []models.Message
	guests        map[string]models.Guest
	reservations  map[string]models.Reservation
	staff         map[string]models.StaffMember
	tasks         map[string]models.Task
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules:         make(map[string]models.AutomationRule),
		executions:    make(map[string]models.Execution),
		scheduledRuns: make(map[string]bool),
		approvals:     make(map[string]models.ApprovalQueueItem),
		settings:      make(map[string]string),
		conversations: make(map[string]models.Conversation),
		guests:        make(map[string]models.Guest),
		reservations:  make(map[string]models.Reservation),
		staff:         make(map[string]models.StaffMember),
		tasks:         make(map[string]models.Task),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) CreateRule(rule models.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

func (s *InMemoryStore) GetRule(id string) (*models.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

func (s *InMemoryStore) listRulesLocked(enabledOnly bool) []models.AutomationRule {
	var rules []models.AutomationRule
	for _, r := range s.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules
}

func (s *InMemoryStore) ListRules() ([]models.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRulesLocked(false), nil
}

func (s *InMemoryStore) ListEnabledRules() ([]models.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRulesLocked(true), nil
}

func (s *InMemoryStore) UpdateRule(id string, upd RuleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return models.ErrRuleNotFound
	}
	if upd.Name != nil {
		rule.Name = *upd.Name
	}
	if upd.Description != nil {
		rule.Description = *upd.Description
	}
	if upd.TriggerType != nil {
		rule.TriggerType = *upd.TriggerType
	}
	if upd.TriggerConfig != nil {
		rule.TriggerConfig = *upd.TriggerConfig
	}
	if upd.Actions != nil {
		rule.Actions = *upd.Actions
	}
	if upd.Enabled != nil {
		rule.Enabled = *upd.Enabled
	}
	if upd.RetryConfig != nil {
		rule.RetryConfig = upd.RetryConfig
	}
	rule.UpdatedAt = time.Now()
	s.rules[id] = rule
	return nil
}

func (s *InMemoryStore) DeleteRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return models.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *InMemoryStore) SetRuleEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return models.ErrRuleNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now()
	s.rules[id] = rule
	return nil
}

func (s *InMemoryStore) RecordRuleRun(id string, at time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return models.ErrRuleNotFound
	}
	rule.RunCount++
	rule.LastRunAt = &at
	if errMsg != "" {
		rule.LastError = errMsg
	}
	rule.UpdatedAt = at
	s.rules[id] = rule
	return nil
}

func (s *InMemoryStore) SetRuleLastError(id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return models.ErrRuleNotFound
	}
	rule.LastError = errMsg
	rule.UpdatedAt = time.Now()
	s.rules[id] = rule
	return nil
}

func (s *InMemoryStore) CreateExecution(exec models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = exec
	return nil
}

func (s *InMemoryStore) GetExecution(id string) (*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, nil
	}
	return &exec, nil
}

func (s *InMemoryStore) CompleteExecution(id string, resultsJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return models.ErrExecutionNotFound
	}
	exec.Status = models.ExecutionStatusCompleted
	exec.ResultsJSON = resultsJSON
	exec.NextRetryAt = nil
	exec.UpdatedAt = time.Now()
	s.executions[id] = exec
	return nil
}

func (s *InMemoryStore) ScheduleExecutionRetry(id string, attempt int, errMsg string, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return models.ErrExecutionNotFound
	}
	exec.Status = models.ExecutionStatusPending
	exec.Attempt = attempt
	exec.Error = errMsg
	exec.NextRetryAt = &nextRetryAt
	exec.UpdatedAt = time.Now()
	s.executions[id] = exec
	return nil
}

func (s *InMemoryStore) FailExecution(id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return models.ErrExecutionNotFound
	}
	exec.Status = models.ExecutionStatusFailed
	exec.Error = errMsg
	exec.NextRetryAt = nil
	exec.UpdatedAt = time.Now()
	s.executions[id] = exec
	return nil
}

func (s *InMemoryStore) ListDueExecutions(now time.Time, limit int) ([]models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Execution
	for _, exec := range s.executions {
		if exec.Status == models.ExecutionStatusPending && exec.NextRetryAt != nil && !exec.NextRetryAt.After(now) {
			due = append(due, exec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *InMemoryStore) AddExecutionLog(log models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *InMemoryStore) ClaimScheduledRun(ruleID, reservationID, runDate string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleID + "|" + reservationID + "|" + runDate
	if s.scheduledRuns[key] {
		return "", false, nil
	}
	s.scheduledRuns[key] = true
	id := util.GenerateRandomID("log_", 32)
	s.logs = append(s.logs, models.ExecutionLog{
		ID:            id,
		RuleID:        ruleID,
		ReservationID: reservationID,
		RunDate:       runDate,
		Status:        models.ChainStatusPending,
		CreatedAt:     time.Now(),
	})
	return id, true, nil
}

func (s *InMemoryStore) UpdateExecutionLog(id string, status models.ChainStatus, resultsJSON, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.logs {
		if s.logs[i].ID == id {
			s.logs[i].Status = status
			s.logs[i].ResultsJSON = resultsJSON
			s.logs[i].Error = errMsg
			return nil
		}
	}
	return fmt.Errorf("execution log %s not found", id)
}

func (s *InMemoryStore) ListExecutionLogs(ruleID string, limit int) ([]models.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var logs []models.ExecutionLog
	for i := len(s.logs) - 1; i >= 0 && len(logs) < limit; i-- {
		if s.logs[i].RuleID == ruleID {
			logs = append(logs, s.logs[i])
		}
	}
	return logs, nil
}

func (s *InMemoryStore) CreateApprovalItem(item models.ApprovalQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[item.ID] = item
	return nil
}

func (s *InMemoryStore) GetApprovalItem(id string) (*models.ApprovalQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.approvals[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *InMemoryStore) ListApprovalItems(status models.ApprovalStatus, limit int) ([]models.ApprovalQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.ApprovalQueueItem
	for _, item := range s.approvals {
		if status == "" || item.Status == status {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *InMemoryStore) DecideApprovalItem(id string, status models.ApprovalStatus, decidedBy, reason string, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.approvals[id]
	if !ok {
		return models.ErrApprovalNotFound
	}
	if item.Status != models.ApprovalStatusPending {
		return fmt.Errorf("%w: item %s is %s", models.ErrApprovalNotPending, id, item.Status)
	}
	item.Status = status
	item.DecidedAt = &decidedAt
	item.DecidedBy = decidedBy
	item.RejectionReason = reason
	s.approvals[id] = item
	return nil
}

func (s *InMemoryStore) CountApprovalPending() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.approvals {
		if item.Status == models.ApprovalStatusPending {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CountApprovalDecidedBetween(status models.ApprovalStatus, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.approvals {
		if item.Status == status && item.DecidedAt != nil &&
			!item.DecidedAt.Before(from) && item.DecidedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetSetting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[key], nil
}

func (s *InMemoryStore) SaveSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *InMemoryStore) CreateConversation(c models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
	return nil
}

func (s *InMemoryStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) GetConversationsByIDs(ids []string) (map[string]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]models.Conversation, len(ids))
	for _, id := range ids {
		if c, ok := s.conversations[id]; ok {
			result[id] = c
		}
	}
	return result, nil
}

func (s *InMemoryStore) UpdateConversationState(id string, state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	c.State = state
	c.UpdatedAt = time.Now()
	s.conversations[id] = c
	return nil
}

func (s *InMemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *InMemoryStore) RecentMessages(conversationID string, before time.Time, n int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID && !m.CreatedAt.After(before) {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (s *InMemoryStore) SaveGuest(g models.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guests[g.ID] = g
	return nil
}

func (s *InMemoryStore) GetGuest(id string) (*models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *InMemoryStore) GetGuestsByIDs(ids []string) (map[string]models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]models.Guest, len(ids))
	for _, id := range ids {
		if g, ok := s.guests[id]; ok {
			result[id] = g
		}
	}
	return result, nil
}

func (s *InMemoryStore) SaveReservation(r models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = r
	return nil
}

func (s *InMemoryStore) GetReservation(id string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *InMemoryStore) GetActiveReservationForGuest(guestID string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Reservation
	for _, r := range s.reservations {
		if r.GuestID != guestID {
			continue
		}
		if r.Status != models.ReservationConfirmed && r.Status != models.ReservationCheckedIn {
			continue
		}
		r := r
		if best == nil || (r.Status == models.ReservationCheckedIn && best.Status != models.ReservationCheckedIn) {
			best = &r
		}
	}
	return best, nil
}

func (s *InMemoryStore) listReservationsByDate(byArrival bool, date, status string) []models.Reservation {
	var out []models.Reservation
	for _, r := range s.reservations {
		d := r.DepartureDate
		if byArrival {
			d = r.ArrivalDate
		}
		if d.Format("2006-01-02") == date && r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].ID, out[j].ID) < 0 })
	return out
}

func (s *InMemoryStore) ListReservationsByArrival(date string, status string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listReservationsByDate(true, date, status), nil
}

func (s *InMemoryStore) ListReservationsByDeparture(date string, status string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listReservationsByDate(false, date, status), nil
}

func (s *InMemoryStore) SaveStaff(st models.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[st.ID] = st
	return nil
}

func (s *InMemoryStore) GetStaffByIDs(ids []string) (map[string]models.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]models.StaffMember, len(ids))
	for _, id := range ids {
		if st, ok := s.staff[id]; ok {
			result[id] = st
		}
	}
	return result, nil
}

func (s *InMemoryStore) CreateTask(t models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *InMemoryStore) GetTask(id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Tasks returns all tasks (test helper).
func (s *InMemoryStore) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Logs returns all execution logs (test helper).
func (s *InMemoryStore) Logs() []models.ExecutionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ExecutionLog(nil), s.logs...)
}

// Messages returns all messages (test helper).
func (s *InMemoryStore) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}
