// Package api provides HTTP handlers for approval queue endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/StayPilot/StayPilot/internal/models"
)

// approvalsHandler handles collection-level approval operations (GET /approvals).
func (s *Server) approvalsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.approvalsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	status := models.ApprovalStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.ApprovalStatusPending:
		items, err := s.queue.ListPending()
		if err != nil {
			slog.Error("Server.approvalsHandler: failed to list pending items", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list approval items"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(items))
	case models.ApprovalStatusApproved, models.ApprovalStatusRejected:
		items, err := s.queue.List(status)
		if err != nil {
			slog.Error("Server.approvalsHandler: failed to list items", "error", err, "status", status)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list approval items"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(items))
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status parameter"))
	}
}

// approvalHandler handles item-level approval operations (/approvals/{id} and subpaths).
func (s *Server) approvalHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.approvalHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/approvals/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Missing approval ID"))
		return
	}

	if segments[0] == "stats" && len(segments) == 1 {
		s.approvalStatsHandler(w, r)
		return
	}

	itemID := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.getApprovalHandler(w, itemID)
		return
	}

	if len(segments) == 2 {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		switch segments[1] {
		case "approve":
			s.approveHandler(w, r, itemID)
			return
		case "reject":
			s.rejectHandler(w, r, itemID)
			return
		case "execute":
			s.executeApprovalHandler(w, r, itemID)
			return
		}
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown approval endpoint"))
}

func (s *Server) getApprovalHandler(w http.ResponseWriter, itemID string) {
	details, err := s.queue.GetDetails(itemID)
	if err != nil {
		if errors.Is(err, models.ErrApprovalNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Approval item not found"))
			return
		}
		slog.Error("Server.getApprovalHandler: failed to fetch item", "error", err, "item_id", itemID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch approval item"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(details))
}

// decisionRequest carries the reviewing staff member and an optional reason.
type decisionRequest struct {
	StaffID string `json:"staff_id"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) approveHandler(w http.ResponseWriter, r *http.Request, itemID string) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.approveHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	item, err := s.queue.Approve(itemID, req.StaffID)
	if err != nil {
		s.writeDecisionError(w, err, itemID)
		return
	}
	slog.Info("Server.approveHandler: item approved", "item_id", itemID, "staff_id", req.StaffID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Approval item approved", item))
}

func (s *Server) rejectHandler(w http.ResponseWriter, r *http.Request, itemID string) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.rejectHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	item, err := s.queue.Reject(itemID, req.StaffID, req.Reason)
	if err != nil {
		s.writeDecisionError(w, err, itemID)
		return
	}
	slog.Info("Server.rejectHandler: item rejected", "item_id", itemID, "staff_id", req.StaffID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Approval item rejected", item))
}

func (s *Server) writeDecisionError(w http.ResponseWriter, err error, itemID string) {
	switch {
	case errors.Is(err, models.ErrApprovalNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Approval item not found"))
	case errors.Is(err, models.ErrApprovalNotPending):
		writeJSONResponse(w, http.StatusConflict, models.Error("Approval item already decided"))
	default:
		slog.Error("Server.writeDecisionError: decision failed", "error", err, "item_id", itemID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to decide approval item"))
	}
}

func (s *Server) executeApprovalHandler(w http.ResponseWriter, r *http.Request, itemID string) {
	err := s.queue.ExecuteApproved(r.Context(), itemID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrApprovalNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Approval item not found"))
		case errors.Is(err, models.ErrApprovalNotApproved):
			writeJSONResponse(w, http.StatusConflict, models.Error("Approval item is not approved"))
		default:
			slog.Error("Server.executeApprovalHandler: execution failed", "error", err, "item_id", itemID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to execute approval item"))
		}
		return
	}
	slog.Info("Server.executeApprovalHandler: item executed", "item_id", itemID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Approval item executed", nil))
}

func (s *Server) approvalStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	stats, err := s.queue.Stats()
	if err != nil {
		slog.Error("Server.approvalStatsHandler: failed to compute stats", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute approval stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}
