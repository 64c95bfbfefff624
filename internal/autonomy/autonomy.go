// Package autonomy implements the policy engine deciding whether automation
// actions execute on their own or go through staff approval.
package autonomy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

// settingsKey is the settings-table key holding the autonomy configuration.
const settingsKey = "autonomy"

// Engine evaluates autonomy policy. Settings load lazily from persistence on
// first use and are cached; SaveSettings and ResetToDefaults refresh the
// cache.
type Engine struct {
	store store.Store

	mu       sync.RWMutex
	settings *models.AutonomySettings
}

// NewEngine creates an autonomy engine backed by the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Settings returns the effective autonomy settings, loading and migrating
// from persistence on first call. A missing or unreadable stored value falls
// back to the defaults without writing anything.
func (e *Engine) Settings() (models.AutonomySettings, error) {
	e.mu.RLock()
	if e.settings != nil {
		cached := *e.settings
		e.mu.RUnlock()
		return cached, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settings != nil {
		return *e.settings, nil
	}

	raw, err := e.store.GetSetting(settingsKey)
	if err != nil {
		return models.AutonomySettings{}, fmt.Errorf("failed to load autonomy settings: %w", err)
	}

	loaded := models.DefaultAutonomySettings()
	if raw != "" {
		migrated, err := migrateSettings([]byte(raw))
		if err != nil {
			slog.Error("Engine.Settings: stored settings unreadable, using defaults", "error", err)
		} else {
			loaded = migrated
		}
	}
	e.settings = &loaded
	return loaded, nil
}

// SaveSettings persists new settings and refreshes the cache.
func (e *Engine) SaveSettings(settings models.AutonomySettings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode autonomy settings: %w", err)
	}
	if err := e.store.SaveSetting(settingsKey, string(encoded)); err != nil {
		return fmt.Errorf("failed to save autonomy settings: %w", err)
	}

	e.mu.Lock()
	e.settings = &settings
	e.mu.Unlock()
	slog.Info("Engine.SaveSettings: autonomy settings updated", "defaultLevel", settings.DefaultLevel)
	return nil
}

// ResetToDefaults persists the documented default policy table.
func (e *Engine) ResetToDefaults() error {
	return e.SaveSettings(models.DefaultAutonomySettings())
}

// Invalidate drops the cached settings so the next read reloads from
// persistence. Used by tests and by external settings writers.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.settings = nil
	e.mu.Unlock()
}

// effectiveLevel returns the action's configured level, falling back to the
// default level when unconfigured.
func effectiveLevel(settings models.AutonomySettings, actionType string) models.AutonomyLevel {
	if cfg, ok := settings.Actions[actionType]; ok && cfg.Level != "" {
		return cfg.Level
	}
	return settings.DefaultLevel
}

// CanAutoExecute reports whether the action type executes without approval.
func (e *Engine) CanAutoExecute(actionType string) (bool, error) {
	settings, err := e.Settings()
	if err != nil {
		return false, err
	}
	return effectiveLevel(settings, actionType) == models.AutonomyL2, nil
}

// DecideByConfidence gates AI-generated content by confidence. Values at or
// above the approval threshold are auto; everything below requires review.
func (e *Engine) DecideByConfidence(confidence float64) (models.AutonomyDecision, error) {
	settings, err := e.Settings()
	if err != nil {
		return "", err
	}
	if confidence >= settings.ConfidenceThresholds.Approval {
		return models.DecisionAuto, nil
	}
	return models.DecisionApprovalRequired, nil
}

// IsUrgent reports whether the confidence is at or below the urgent
// threshold, flagging the item for priority staff review.
func (e *Engine) IsUrgent(confidence float64) (bool, error) {
	settings, err := e.Settings()
	if err != nil {
		return false, err
	}
	return confidence <= settings.ConfidenceThresholds.Urgent, nil
}

// CanAutoApproveAmount reports whether a monetary amount is within the
// action's configured cap. No configured cap means no auto-approval at any
// amount.
func (e *Engine) CanAutoApproveAmount(actionType string, amount float64) (bool, error) {
	settings, err := e.Settings()
	if err != nil {
		return false, err
	}
	cfg, ok := settings.Actions[actionType]
	if !ok || cfg.MaxAutoAmount == nil {
		return false, nil
	}
	return amount <= *cfg.MaxAutoAmount, nil
}

// CanAutoApprovePercent reports whether a discount percentage is within the
// action's configured cap. No configured cap means no auto-approval.
func (e *Engine) CanAutoApprovePercent(actionType string, percent float64) (bool, error) {
	settings, err := e.Settings()
	if err != nil {
		return false, err
	}
	cfg, ok := settings.Actions[actionType]
	if !ok || cfg.MaxAutoPercent == nil {
		return false, nil
	}
	return percent <= *cfg.MaxAutoPercent, nil
}
