// Package api provides HTTP handlers for conversation endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
)

const defaultMessageLimit = 50

// conversationsHandler handles collection-level conversation operations
// (POST /conversations).
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.conversationsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req struct {
		GuestID string `json:"guest_id"`
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.conversationsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.GuestID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: guest_id"))
		return
	}
	if req.Channel == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: channel"))
		return
	}

	conv, err := s.tracker.Open(req.GuestID, req.Channel)
	if err != nil {
		slog.Error("Server.conversationsHandler: failed to open conversation", "error", err, "guest_id", req.GuestID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to open conversation"))
		return
	}
	slog.Info("Server.conversationsHandler: conversation opened", "conversation_id", conv.ID, "guest_id", req.GuestID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Conversation opened", conv))
}

// conversationHandler handles item-level conversation operations
// (/conversations/{id} and subpaths).
func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.conversationHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/conversations/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Missing conversation ID"))
		return
	}
	conversationID := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.getConversationHandler(w, conversationID)
		return
	}

	if len(segments) == 2 {
		switch segments[1] {
		case "messages":
			switch r.Method {
			case http.MethodGet:
				s.listMessagesHandler(w, r, conversationID)
			case http.MethodPost:
				s.inboundMessageHandler(w, r, conversationID)
			default:
				w.Header().Set("Allow", "GET, POST")
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			}
			return
		case "events":
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", http.MethodPost)
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
				return
			}
			s.conversationEventHandler(w, r, conversationID)
			return
		}
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown conversation endpoint"))
}

func (s *Server) getConversationHandler(w http.ResponseWriter, conversationID string) {
	conv, err := s.st.GetConversation(conversationID)
	if err != nil {
		slog.Error("Server.getConversationHandler: failed to fetch conversation", "error", err, "conversation_id", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch conversation"))
		return
	}
	if conv == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request, conversationID string) {
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = parsed
	}
	messages, err := s.st.RecentMessages(conversationID, time.Now(), limit)
	if err != nil {
		slog.Error("Server.listMessagesHandler: failed to list messages", "error", err, "conversation_id", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(messages))
}

// inboundMessageHandler records a guest message and, when a responder is
// configured, drafts an AI reply that is either auto-sent or queued for
// staff approval depending on the autonomy policy.
func (s *Server) inboundMessageHandler(w http.ResponseWriter, r *http.Request, conversationID string) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.inboundMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: body"))
		return
	}

	result, err := s.tracker.RecordInbound(conversationID, req.Body)
	if err != nil {
		slog.Error("Server.inboundMessageHandler: failed to record message", "error", err, "conversation_id", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record message"))
		return
	}

	response := map[string]interface{}{
		"transition": result,
	}
	if s.responder != nil {
		decision, respErr := s.responder.HandleInbound(r.Context(), conversationID)
		if respErr != nil {
			slog.Warn("Server.inboundMessageHandler: responder failed", "error", respErr, "conversation_id", conversationID)
			response["responder_error"] = respErr.Error()
		} else {
			response["responder_decision"] = decision
		}
	}

	slog.Info("Server.inboundMessageHandler: message recorded", "conversation_id", conversationID, "state", result.To)
	writeJSONResponse(w, http.StatusCreated, models.Success(response))
}

// conversationEventHandler applies a lifecycle event to a conversation
// (POST /conversations/{id}/events).
func (s *Server) conversationEventHandler(w http.ResponseWriter, r *http.Request, conversationID string) {
	var req struct {
		Event models.ConversationEvent `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.conversationEventHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Event == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: event"))
		return
	}

	result, err := s.tracker.Apply(conversationID, req.Event)
	if err != nil {
		slog.Error("Server.conversationEventHandler: failed to apply event", "error", err, "conversation_id", conversationID, "event", req.Event)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to apply conversation event"))
		return
	}
	if !result.Success {
		writeJSONResponse(w, http.StatusConflict, models.Error(result.Reason))
		return
	}
	slog.Info("Server.conversationEventHandler: event applied", "conversation_id", conversationID, "event", req.Event, "to", result.To)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}
