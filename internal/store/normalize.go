// Package store provides legacy-shape normalization at the persistence boundary.
package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/StayPilot/StayPilot/internal/models"
)

// DecodeActionChain turns the persisted action columns into the current
// in-memory chain shape. Rows written by older releases carry a single
// action_type/action_config pair instead of an actions array; those are
// converted to a one-element chain on every read, never via a one-time
// migration.
func DecodeActionChain(actionsJSON, legacyType, legacyConfigJSON string) ([]models.ActionDefinition, error) {
	if actionsJSON != "" {
		var actions []models.ActionDefinition
		if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
			return nil, fmt.Errorf("failed to decode actions JSON: %w", err)
		}
		sort.SliceStable(actions, func(i, j int) bool { return actions[i].Order < actions[j].Order })
		return actions, nil
	}

	if legacyType == "" {
		return nil, nil
	}

	var config map[string]any
	if legacyConfigJSON != "" {
		if err := json.Unmarshal([]byte(legacyConfigJSON), &config); err != nil {
			return nil, fmt.Errorf("failed to decode legacy action config JSON: %w", err)
		}
	}
	return []models.ActionDefinition{{
		ID:        "action_1",
		Type:      models.ActionType(legacyType),
		Config:    config,
		Order:     1,
		Condition: models.ConditionAlways,
	}}, nil
}

// encodeActionChain serializes a chain for storage.
func encodeActionChain(actions []models.ActionDefinition) (string, error) {
	data, err := json.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("failed to encode actions JSON: %w", err)
	}
	return string(data), nil
}

// encodeTriggerConfig serializes a trigger config for storage.
func encodeTriggerConfig(cfg models.TriggerConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode trigger config JSON: %w", err)
	}
	return string(data), nil
}

// decodeTriggerConfig parses a persisted trigger config.
func decodeTriggerConfig(raw string) (models.TriggerConfig, error) {
	var cfg models.TriggerConfig
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode trigger config JSON: %w", err)
	}
	return cfg, nil
}

// encodeRetryConfig serializes a retry config, returning "" for nil.
func encodeRetryConfig(cfg *models.RetryConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode retry config JSON: %w", err)
	}
	return string(data), nil
}

// marshalActionData serializes opaque approval action data, returning "" for nil.
func marshalActionData(data map[string]any) (string, error) {
	if data == nil {
		return "", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode action data JSON: %w", err)
	}
	return string(raw), nil
}

// unmarshalActionData parses opaque approval action data.
func unmarshalActionData(raw string, dst *map[string]any) error {
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode action data JSON: %w", err)
	}
	return nil
}

// decodeRetryConfig parses a persisted retry config, returning nil for "".
func decodeRetryConfig(raw string) (*models.RetryConfig, error) {
	if raw == "" {
		return nil, nil
	}
	var cfg models.RetryConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode retry config JSON: %w", err)
	}
	return &cfg, nil
}
