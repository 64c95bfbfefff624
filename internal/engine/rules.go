package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/util"
)

// CreateRule validates and persists a new rule. Missing action IDs and
// orders are filled in from the slice position.
func (e *Engine) CreateRule(rule models.AutomationRule) (*models.AutomationRule, error) {
	for i := range rule.Actions {
		if rule.Actions[i].Order == 0 {
			rule.Actions[i].Order = i + 1
		}
		if rule.Actions[i].ID == "" {
			rule.Actions[i].ID = fmt.Sprintf("action_%d", rule.Actions[i].Order)
		}
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if rule.ID == "" {
		rule.ID = util.GenerateRuleID()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.RunCount = 0
	rule.LastRunAt = nil
	rule.LastError = ""

	if err := e.store.CreateRule(rule); err != nil {
		return nil, err
	}
	slog.Info("Engine.CreateRule: rule created", "ruleID", rule.ID, "name", rule.Name, "triggerType", rule.TriggerType)
	return &rule, nil
}

// GetRule returns one rule.
func (e *Engine) GetRule(id string) (*models.AutomationRule, error) {
	rule, err := e.store.GetRule(id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, models.ErrRuleNotFound
	}
	return rule, nil
}

// ListRules returns all rules.
func (e *Engine) ListRules() ([]models.AutomationRule, error) {
	return e.store.ListRules()
}

// UpdateRule applies a partial update. Only provided fields are rewritten,
// plus the update timestamp.
func (e *Engine) UpdateRule(id string, upd store.RuleUpdate) (*models.AutomationRule, error) {
	if upd.Actions != nil {
		actions := *upd.Actions
		for i := range actions {
			if actions[i].Order == 0 {
				actions[i].Order = i + 1
			}
			if actions[i].ID == "" {
				actions[i].ID = fmt.Sprintf("action_%d", actions[i].Order)
			}
		}
		if len(actions) == 0 {
			return nil, models.ErrEmptyActionChain
		}
		upd.Actions = &actions
	}

	if err := e.store.UpdateRule(id, upd); err != nil {
		return nil, err
	}
	slog.Info("Engine.UpdateRule: rule updated", "ruleID", id)
	return e.GetRule(id)
}

// DeleteRule removes a rule. Its execution logs are retained.
func (e *Engine) DeleteRule(id string) error {
	if err := e.store.DeleteRule(id); err != nil {
		return err
	}
	slog.Info("Engine.DeleteRule: rule deleted", "ruleID", id)
	return nil
}

// ToggleRule enables or disables a rule.
func (e *Engine) ToggleRule(id string, enabled bool) error {
	if err := e.store.SetRuleEnabled(id, enabled); err != nil {
		return err
	}
	slog.Info("Engine.ToggleRule: rule toggled", "ruleID", id, "enabled", enabled)
	return nil
}

// ListLogs returns the most recent execution logs for a rule.
func (e *Engine) ListLogs(ruleID string, limit int) ([]models.ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.ListExecutionLogs(ruleID, limit)
}
