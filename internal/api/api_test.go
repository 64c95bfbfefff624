package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/StayPilot/StayPilot/internal/approval"
	"github.com/StayPilot/StayPilot/internal/autonomy"
	"github.com/StayPilot/StayPilot/internal/conversation"
	"github.com/StayPilot/StayPilot/internal/engine"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	eng := engine.NewEngine(st)
	queue := approval.NewQueue(st)
	policy := autonomy.NewEngine(st)
	tracker := conversation.NewTracker(st)
	return NewServer(st, eng, queue, policy, tracker), st
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
	}
}

func TestRuleCRUDEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rule := models.AutomationRule{
		Name:        "welcome message on check-in",
		TriggerType: models.TriggerTypeEventBased,
		TriggerConfig: models.TriggerConfig{
			EventType: "reservation.checked_in",
		},
		Actions: []models.ActionDefinition{
			{Type: models.ActionNotifyStaff, Config: map[string]any{"message": "guest arrived"}},
		},
		Enabled: true,
	}

	rec := doRequest(t, s, http.MethodPost, "/rules", rule)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.AutomationRule
	decodeResult(t, rec, &created)
	if created.ID == "" {
		t.Fatal("expected created rule to have an ID")
	}

	rec = doRequest(t, s, http.MethodGet, "/rules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var fetched models.AutomationRule
	decodeResult(t, rec, &fetched)
	if fetched.Name != rule.Name {
		t.Errorf("expected name %q, got %q", rule.Name, fetched.Name)
	}

	rec = doRequest(t, s, http.MethodGet, "/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var listed []models.AutomationRule
	decodeResult(t, rec, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(listed))
	}

	newName := "renamed rule"
	rec = doRequest(t, s, http.MethodPut, "/rules/"+created.ID, map[string]any{"name": newName})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.AutomationRule
	decodeResult(t, rec, &updated)
	if updated.Name != newName {
		t.Errorf("expected name %q after update, got %q", newName, updated.Name)
	}

	rec = doRequest(t, s, http.MethodPost, "/rules/"+created.ID+"/toggle", map[string]any{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/rules/"+created.ID+"/logs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for logs, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/rules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/rules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", rec.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/rules", models.AutomationRule{
		TriggerType: models.TriggerTypeEventBased,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for invalid rule, got %d", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	if err := st.SaveGuest(models.Guest{ID: "guest_1", Name: "Ada", Phone: "+15550001111"}); err != nil {
		t.Fatalf("SaveGuest failed: %v", err)
	}

	rule := models.AutomationRule{
		Name:        "housekeeping on check-in",
		TriggerType: models.TriggerTypeEventBased,
		TriggerConfig: models.TriggerConfig{
			EventType: "reservation.checked_in",
		},
		Actions: []models.ActionDefinition{
			{Type: models.ActionCreateTask, Config: map[string]any{"title": "Turn-down service"}},
		},
		Enabled: true,
	}
	rec := doRequest(t, s, http.MethodPost, "/rules", rule)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/events", map[string]any{
		"type": "reservation.checked_in",
		"data": map[string]any{"guest_id": "guest_1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var results []models.ExecutionResult
	decodeResult(t, rec, &results)
	if len(results) != 1 {
		t.Fatalf("expected 1 execution result, got %d", len(results))
	}
	if len(st.Tasks()) != 1 {
		t.Fatalf("expected 1 task created, got %d", len(st.Tasks()))
	}

	rec = doRequest(t, s, http.MethodPost, "/events", map[string]any{"data": map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing type, got %d", rec.Code)
	}
}

func TestApprovalEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	if err := st.SaveGuest(models.Guest{ID: "guest_1", Name: "Ada", Phone: "+15550001111"}); err != nil {
		t.Fatalf("SaveGuest failed: %v", err)
	}

	item, err := s.queue.QueueForApproval(models.ApprovalTypeTask, "createTask", map[string]any{"title": "Fix AC"}, "", "guest_1", 0.4)
	if err != nil {
		t.Fatalf("QueueForApproval failed: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/approvals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var pending []models.ApprovalDetails
	decodeResult(t, rec, &pending)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending item, got %d", len(pending))
	}

	rec = doRequest(t, s, http.MethodGet, "/approvals/"+item.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/approvals/"+item.ID+"/approve", map[string]any{"staff_id": "staff_1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second decision must conflict
	rec = doRequest(t, s, http.MethodPost, "/approvals/"+item.ID+"/reject", map[string]any{"staff_id": "staff_2"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for second decision, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/approvals/"+item.ID+"/execute", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for execute, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(st.Tasks()) != 1 {
		t.Fatalf("expected 1 task after execution, got %d", len(st.Tasks()))
	}

	rec = doRequest(t, s, http.MethodGet, "/approvals/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for stats, got %d", rec.Code)
	}
	var stats models.ApprovalStats
	decodeResult(t, rec, &stats)
	if stats.ApprovedToday != 1 {
		t.Errorf("expected 1 approved today, got %d", stats.ApprovedToday)
	}

	rec = doRequest(t, s, http.MethodGet, "/approvals/missing_item", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown item, got %d", rec.Code)
	}
}

func TestAutonomyEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/autonomy", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var settings models.AutonomySettings
	decodeResult(t, rec, &settings)
	if settings.DefaultLevel != models.AutonomyL1 {
		t.Errorf("expected default level L1, got %s", settings.DefaultLevel)
	}

	settings.DefaultLevel = models.AutonomyL2
	rec = doRequest(t, s, http.MethodPut, "/autonomy", settings)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/autonomy", nil)
	decodeResult(t, rec, &settings)
	if settings.DefaultLevel != models.AutonomyL2 {
		t.Errorf("expected level L2 after save, got %s", settings.DefaultLevel)
	}

	rec = doRequest(t, s, http.MethodPost, "/autonomy/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for reset, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/autonomy", nil)
	decodeResult(t, rec, &settings)
	if settings.DefaultLevel != models.AutonomyL1 {
		t.Errorf("expected level L1 after reset, got %s", settings.DefaultLevel)
	}
}

func TestConversationEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/conversations", map[string]any{
		"guest_id": "guest_1",
		"channel":  "whatsapp",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var conv models.Conversation
	decodeResult(t, rec, &conv)
	if conv.State != models.ConversationNew {
		t.Errorf("expected new conversation, got state %s", conv.State)
	}

	rec = doRequest(t, s, http.MethodPost, "/conversations/"+conv.ID+"/messages", map[string]any{"body": "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	decodeResult(t, rec, &conv)
	if conv.State != models.ConversationActive {
		t.Errorf("expected active conversation after inbound message, got %s", conv.State)
	}

	rec = doRequest(t, s, http.MethodGet, "/conversations/"+conv.ID+"/messages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var messages []models.Message
	decodeResult(t, rec, &messages)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	rec = doRequest(t, s, http.MethodPost, "/conversations/"+conv.ID+"/events", map[string]any{"event": "guest_satisfied"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Resolved conversations reject staff_resolved
	rec = doRequest(t, s, http.MethodPost, "/conversations/"+conv.ID+"/events", map[string]any{"event": "staff_resolved"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for invalid transition, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/conversations/missing_conv", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown conversation, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", health["status"])
	}

	rec = doRequest(t, s, http.MethodPost, "/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}
