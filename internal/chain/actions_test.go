package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/StayPilot/StayPilot/internal/channel"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

func guestContext() *models.ExecutionContext {
	return &models.ExecutionContext{
		RuleID:   "rule_1",
		RuleName: "welcome",
		Guest:    &models.GuestSnapshot{ID: "guest_1", Name: "Ada Lovelace", Phone: "+15550001111"},
		Reservation: &models.ReservationSnapshot{
			ID:            "res_1",
			GuestID:       "guest_1",
			RoomNumber:    "204",
			ArrivalDate:   time.Date(2026, time.April, 1, 0, 0, 0, 0, time.Local),
			DepartureDate: time.Date(2026, time.April, 5, 0, 0, 0, 0, time.Local),
			Status:        models.ReservationCheckedIn,
		},
	}
}

func TestSendMessageInterpolatesTemplate(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := channel.NewMockSender()
	actions := NewActions(st, WithSender(sender))

	action := models.ActionDefinition{
		ID:   "a",
		Type: models.ActionSendMessage,
		Config: map[string]any{
			"message": "Welcome {{guest_name}}, your room is {{room_number}}.",
		},
	}

	output, err := actions.SendMessage(context.Background(), action, guestContext())
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if output["sent"] != true {
		t.Errorf("unexpected output: %v", output)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if sent[0].To != "+15550001111" {
		t.Errorf("sent to %s", sent[0].To)
	}
	if sent[0].Body != "Welcome Ada Lovelace, your room is 204." {
		t.Errorf("sent body %q", sent[0].Body)
	}
}

func TestSendMessageAppendsConversationHistory(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := channel.NewMockSender()
	actions := NewActions(st, WithSender(sender))

	execCtx := guestContext()
	execCtx.ConversationID = "conv_1"

	action := models.ActionDefinition{
		ID:     "a",
		Type:   models.ActionSendMessage,
		Config: map[string]any{"message": "hello"},
	}
	if _, err := actions.SendMessage(context.Background(), action, execCtx); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	msgs := st.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 history message, got %d", len(msgs))
	}
	if msgs[0].Direction != models.MessageOutbound || msgs[0].Body != "hello" {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestSendMessageRequiresPhone(t *testing.T) {
	actions := NewActions(store.NewInMemoryStore(), WithSender(channel.NewMockSender()))
	execCtx := guestContext()
	execCtx.Guest.Phone = ""

	action := models.ActionDefinition{ID: "a", Config: map[string]any{"message": "hi"}}
	if _, err := actions.SendMessage(context.Background(), action, execCtx); err == nil {
		t.Fatal("expected error without guest phone")
	}
}

func TestCreateTask(t *testing.T) {
	st := store.NewInMemoryStore()
	actions := NewActions(st)

	action := models.ActionDefinition{
		ID:   "a",
		Type: models.ActionCreateTask,
		Config: map[string]any{
			"title":      "Prepare room {{room_number}}",
			"department": "housekeeping",
			"priority":   "standard",
		},
	}

	output, err := actions.CreateTask(context.Background(), action, guestContext())
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	taskID, _ := output["task_id"].(string)
	if taskID == "" {
		t.Fatal("expected task_id in output")
	}

	task, err := st.GetTask(taskID)
	if err != nil || task == nil {
		t.Fatalf("task not persisted: %v", err)
	}
	if task.Title != "Prepare room 204" {
		t.Errorf("task title %q", task.Title)
	}
	if task.Department != "housekeeping" || task.Status != models.TaskStatusOpen {
		t.Errorf("unexpected task: %+v", task)
	}
	if task.GuestID != "guest_1" || task.ReservationID != "res_1" {
		t.Errorf("task not linked to context: %+v", task)
	}
}

func TestNotifyStaffRequiresBus(t *testing.T) {
	actions := NewActions(store.NewInMemoryStore())
	action := models.ActionDefinition{ID: "a", Config: map[string]any{"message": "hi"}}
	if _, err := actions.NotifyStaff(context.Background(), action, guestContext()); err == nil {
		t.Fatal("expected error without bus")
	}
}

func TestWebhookPostsContext(t *testing.T) {
	var gotMethod, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	actions := NewActions(store.NewInMemoryStore())
	action := models.ActionDefinition{
		ID:     "a",
		Type:   models.ActionWebhook,
		Config: map[string]any{"url": server.URL},
	}

	output, err := actions.Webhook(context.Background(), action, guestContext())
	if err != nil {
		t.Fatalf("Webhook failed: %v", err)
	}
	if gotMethod != http.MethodPost || gotContentType != "application/json" {
		t.Errorf("request method=%s content-type=%s", gotMethod, gotContentType)
	}
	if output["status_code"] != http.StatusOK {
		t.Errorf("output %v", output)
	}
}

func TestWebhookNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	actions := NewActions(store.NewInMemoryStore())
	action := models.ActionDefinition{ID: "a", Config: map[string]any{"url": server.URL}}

	if _, err := actions.Webhook(context.Background(), action, guestContext()); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestInterpolateLeavesUnknownPlaceholders(t *testing.T) {
	got := Interpolate("Hi {{guest_name}}, see {{typo_field}}", guestContext())
	if got != "Hi Ada Lovelace, see {{typo_field}}" {
		t.Errorf("Interpolate = %q", got)
	}
}
