package autonomy

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/StayPilot/StayPilot/internal/models"
)

// rawSettings tolerates both the current settings shape and legacy rows
// written before the L3 level was removed and the threshold keys renamed.
type rawSettings struct {
	DefaultLevel string                     `json:"default_level"`
	Actions      map[string]rawActionConfig `json:"actions"`
	Thresholds   rawThresholds              `json:"confidence_thresholds"`
}

type rawActionConfig struct {
	Level          string   `json:"level"`
	RequiresReview *bool    `json:"requiresReview,omitempty"`
	MaxAutoAmount  *float64 `json:"max_auto_amount,omitempty"`
	MaxAutoPercent *float64 `json:"max_auto_percent,omitempty"`
}

type rawThresholds struct {
	Approval *float64 `json:"approval,omitempty"`
	Urgent   *float64 `json:"urgent,omitempty"`

	// Legacy key names, read only when the current keys are absent.
	SuggestToStaff *float64 `json:"suggestToStaff,omitempty"`
	Escalate       *float64 `json:"escalate,omitempty"`
}

// migrateSettings decodes stored settings and migrates legacy shapes forward
// in memory. The removed L3 level collapses to L2, a legacy requiresReview
// flag downgrades an L2 action to L1, and renamed threshold keys are read
// when the current keys are absent. Stored data is never rewritten here.
func migrateSettings(raw []byte) (models.AutonomySettings, error) {
	var decoded rawSettings
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return models.AutonomySettings{}, fmt.Errorf("failed to decode autonomy settings: %w", err)
	}

	defaults := models.DefaultAutonomySettings()
	settings := models.AutonomySettings{
		DefaultLevel: migrateLevel(decoded.DefaultLevel, defaults.DefaultLevel),
		Actions:      make(map[string]models.ActionAutonomyConfig, len(decoded.Actions)),
	}

	for actionType, cfg := range decoded.Actions {
		level := migrateLevel(cfg.Level, settings.DefaultLevel)
		if level == models.AutonomyL2 && cfg.RequiresReview != nil && *cfg.RequiresReview {
			slog.Debug("autonomy: legacy requiresReview downgrades action to L1", "actionType", actionType)
			level = models.AutonomyL1
		}
		settings.Actions[actionType] = models.ActionAutonomyConfig{
			Level:          level,
			MaxAutoAmount:  cfg.MaxAutoAmount,
			MaxAutoPercent: cfg.MaxAutoPercent,
		}
	}

	settings.ConfidenceThresholds = models.ConfidenceThresholds{
		Approval: pickThreshold(decoded.Thresholds.Approval, decoded.Thresholds.SuggestToStaff, defaults.ConfidenceThresholds.Approval),
		Urgent:   pickThreshold(decoded.Thresholds.Urgent, decoded.Thresholds.Escalate, defaults.ConfidenceThresholds.Urgent),
	}
	return settings, nil
}

// migrateLevel maps a stored level to a current one. The removed L3 level
// collapses to L2; anything unrecognized falls back.
func migrateLevel(level string, fallback models.AutonomyLevel) models.AutonomyLevel {
	switch level {
	case string(models.AutonomyL1):
		return models.AutonomyL1
	case string(models.AutonomyL2), "L3":
		return models.AutonomyL2
	case "":
		return fallback
	default:
		slog.Warn("autonomy: unknown autonomy level, using fallback", "level", level)
		return fallback
	}
}

func pickThreshold(current, legacy *float64, fallback float64) float64 {
	if current != nil {
		return *current
	}
	if legacy != nil {
		return *legacy
	}
	return fallback
}
