// Package api provides HTTP handlers for automation rule endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

// ruleUpdateRequest carries a partial rule update. Absent fields are left
// untouched.
type ruleUpdateRequest struct {
	Name          *string                    `json:"name,omitempty"`
	Description   *string                    `json:"description,omitempty"`
	TriggerType   *models.TriggerType        `json:"trigger_type,omitempty"`
	TriggerConfig *models.TriggerConfig      `json:"trigger_config,omitempty"`
	Actions       *[]models.ActionDefinition `json:"actions,omitempty"`
	Enabled       *bool                      `json:"enabled,omitempty"`
	RetryConfig   *models.RetryConfig        `json:"retry_config,omitempty"`
}

// rulesHandler handles collection-level rule operations (GET, POST /rules).
func (s *Server) rulesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.rulesHandler: processing request", "method", r.Method, "path", r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		rules, err := s.eng.ListRules()
		if err != nil {
			slog.Error("Server.rulesHandler: failed to list rules", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list rules"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(rules))
	case http.MethodPost:
		var rule models.AutomationRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			slog.Warn("Server.rulesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		created, err := s.eng.CreateRule(rule)
		if err != nil {
			slog.Warn("Server.rulesHandler: rule validation failed", "error", err, "name", rule.Name)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Info("Server.rulesHandler: rule created", "rule_id", created.ID, "name", created.Name)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Rule created successfully", created))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// ruleHandler handles item-level rule operations (/rules/{id} and subpaths).
func (s *Server) ruleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.ruleHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/rules/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Missing rule ID"))
		return
	}
	ruleID := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getRuleHandler(w, ruleID)
		case http.MethodPut:
			s.updateRuleHandler(w, r, ruleID)
		case http.MethodDelete:
			s.deleteRuleHandler(w, ruleID)
		default:
			w.Header().Set("Allow", "GET, PUT, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 {
		switch segments[1] {
		case "toggle":
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", http.MethodPost)
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
				return
			}
			s.toggleRuleHandler(w, r, ruleID)
			return
		case "logs":
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
				return
			}
			s.ruleLogsHandler(w, r, ruleID)
			return
		}
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown rule endpoint"))
}

func (s *Server) getRuleHandler(w http.ResponseWriter, ruleID string) {
	rule, err := s.eng.GetRule(ruleID)
	if err != nil {
		if errors.Is(err, models.ErrRuleNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Rule not found"))
			return
		}
		slog.Error("Server.getRuleHandler: failed to fetch rule", "error", err, "rule_id", ruleID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch rule"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rule))
}

func (s *Server) updateRuleHandler(w http.ResponseWriter, r *http.Request, ruleID string) {
	var req ruleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.updateRuleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	upd := store.RuleUpdate{
		Name:          req.Name,
		Description:   req.Description,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		Actions:       req.Actions,
		Enabled:       req.Enabled,
		RetryConfig:   req.RetryConfig,
	}
	updated, err := s.eng.UpdateRule(ruleID, upd)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRuleNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Rule not found"))
		case errors.Is(err, models.ErrEmptyActionChain):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.updateRuleHandler: failed to update rule", "error", err, "rule_id", ruleID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update rule"))
		}
		return
	}
	slog.Info("Server.updateRuleHandler: rule updated", "rule_id", ruleID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Rule updated successfully", updated))
}

func (s *Server) deleteRuleHandler(w http.ResponseWriter, ruleID string) {
	if err := s.eng.DeleteRule(ruleID); err != nil {
		if errors.Is(err, models.ErrRuleNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Rule not found"))
			return
		}
		slog.Error("Server.deleteRuleHandler: failed to delete rule", "error", err, "rule_id", ruleID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete rule"))
		return
	}
	slog.Info("Server.deleteRuleHandler: rule deleted", "rule_id", ruleID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Rule deleted successfully", nil))
}

func (s *Server) toggleRuleHandler(w http.ResponseWriter, r *http.Request, ruleID string) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.toggleRuleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.eng.ToggleRule(ruleID, req.Enabled); err != nil {
		if errors.Is(err, models.ErrRuleNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Rule not found"))
			return
		}
		slog.Error("Server.toggleRuleHandler: failed to toggle rule", "error", err, "rule_id", ruleID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to toggle rule"))
		return
	}
	slog.Info("Server.toggleRuleHandler: rule toggled", "rule_id", ruleID, "enabled", req.Enabled)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Rule toggled successfully", nil))
}

func (s *Server) ruleLogsHandler(w http.ResponseWriter, r *http.Request, ruleID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = parsed
	}
	logs, err := s.eng.ListLogs(ruleID, limit)
	if err != nil {
		slog.Error("Server.ruleLogsHandler: failed to list logs", "error", err, "rule_id", ruleID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list execution logs"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(logs))
}

// eventsHandler accepts an automation event and evaluates it against the
// enabled rules (POST /events).
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.eventsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var event models.AutomationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		slog.Warn("Server.eventsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if event.Type == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: type"))
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	results, err := s.eng.Evaluate(r.Context(), event)
	if err != nil {
		slog.Error("Server.eventsHandler: evaluation failed", "error", err, "event_type", event.Type)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to evaluate event"))
		return
	}
	slog.Info("Server.eventsHandler: event evaluated", "event_type", event.Type, "matched_rules", len(results))
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}
