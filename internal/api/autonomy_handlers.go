// Package api provides HTTP handlers for autonomy settings endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/StayPilot/StayPilot/internal/models"
)

// autonomyHandler handles autonomy settings operations (GET, PUT /autonomy).
func (s *Server) autonomyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.autonomyHandler: processing request", "method", r.Method, "path", r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		settings, err := s.policy.Settings()
		if err != nil {
			slog.Error("Server.autonomyHandler: failed to load settings", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load autonomy settings"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(settings))
	case http.MethodPut:
		var settings models.AutonomySettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			slog.Warn("Server.autonomyHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := s.policy.SaveSettings(settings); err != nil {
			slog.Error("Server.autonomyHandler: failed to save settings", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save autonomy settings"))
			return
		}
		slog.Info("Server.autonomyHandler: autonomy settings saved")
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Autonomy settings saved", settings))
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// autonomyResetHandler restores the default autonomy settings (POST /autonomy/reset).
func (s *Server) autonomyResetHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.autonomyResetHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if err := s.policy.ResetToDefaults(); err != nil {
		slog.Error("Server.autonomyResetHandler: failed to reset settings", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset autonomy settings"))
		return
	}
	settings, err := s.policy.Settings()
	if err != nil {
		slog.Error("Server.autonomyResetHandler: failed to reload settings", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reload autonomy settings"))
		return
	}
	slog.Info("Server.autonomyResetHandler: autonomy settings reset to defaults")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Autonomy settings reset to defaults", settings))
}
