package engine

import (
	"context"
	"testing"
	"time"

	"github.com/StayPilot/StayPilot/internal/channel"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

func intPtr(n int) *int { return &n }

func checkedInRule() models.AutomationRule {
	return models.AutomationRule{
		Name:        "housekeeping on check-in",
		TriggerType: models.TriggerTypeEventBased,
		TriggerConfig: models.TriggerConfig{
			EventType: "reservation.checked_in",
		},
		Actions: []models.ActionDefinition{
			{Type: models.ActionCreateTask, Config: map[string]any{
				"title":      "Turn-down service",
				"department": "housekeeping",
				"priority":   "standard",
			}},
		},
		Enabled: true,
	}
}

func seedGuestAndReservation(t *testing.T, st store.Store, departure time.Time) {
	t.Helper()
	if err := st.SaveGuest(models.Guest{ID: "guest_1", Name: "Ada", Phone: "+15550001111"}); err != nil {
		t.Fatalf("SaveGuest failed: %v", err)
	}
	if err := st.SaveReservation(models.Reservation{
		ID:            "res_1",
		GuestID:       "guest_1",
		RoomNumber:    "204",
		ArrivalDate:   departure.AddDate(0, 0, -3),
		DepartureDate: departure,
		Status:        models.ReservationCheckedIn,
	}); err != nil {
		t.Fatalf("SaveReservation failed: %v", err)
	}
}

func TestEvaluateCheckedInScenario(t *testing.T) {
	st := store.NewInMemoryStore()
	seedGuestAndReservation(t, st, time.Now().AddDate(0, 0, 2))

	eng := NewEngine(st)
	rule, err := eng.CreateRule(checkedInRule())
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	event := models.AutomationEvent{
		Type:      "reservation.checked_in",
		Timestamp: time.Now(),
		Data:      map[string]any{"guest_id": "guest_1", "reservation_id": "res_1"},
	}
	results, err := eng.Evaluate(context.Background(), event)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("unexpected results: %+v", results)
	}

	tasks := st.Tasks()
	if len(tasks) != 1 || tasks[0].Department != "housekeeping" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	updated, _ := eng.GetRule(rule.ID)
	if updated.RunCount != 1 {
		t.Errorf("run count = %d, want 1", updated.RunCount)
	}
	if updated.LastError != "" {
		t.Errorf("last error = %q, want unset", updated.LastError)
	}
	if updated.LastRunAt == nil {
		t.Error("last run at not set")
	}
}

func TestEvaluateNonMatchingEvent(t *testing.T) {
	st := store.NewInMemoryStore()
	eng := NewEngine(st)
	if _, err := eng.CreateRule(checkedInRule()); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	results, err := eng.Evaluate(context.Background(), models.AutomationEvent{Type: "reservation.cancelled"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestEvaluateFailureSchedulesRetry(t *testing.T) {
	st := store.NewInMemoryStore()
	seedGuestAndReservation(t, st, time.Now().AddDate(0, 0, 2))

	sender := channel.NewMockSender()
	sender.Err = context.DeadlineExceeded
	eng := NewEngine(st, WithSender(sender))

	rule := checkedInRule()
	rule.Actions = []models.ActionDefinition{
		{Type: models.ActionSendMessage, Config: map[string]any{"message": "hi {{guest_name}}"}},
	}
	created, err := eng.CreateRule(rule)
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	event := models.AutomationEvent{
		Type: "reservation.checked_in",
		Data: map[string]any{"guest_id": "guest_1"},
	}
	results, err := eng.Evaluate(context.Background(), event)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected one failed result, got %+v", results)
	}

	exec, err := st.GetExecution(results[0].ExecutionID)
	if err != nil || exec == nil {
		t.Fatalf("execution not found: %v", err)
	}
	if exec.Status != models.ExecutionStatusPending || exec.Attempt != 2 {
		t.Errorf("expected retry scheduled for attempt 2, got %+v", exec)
	}

	updated, _ := eng.GetRule(created.ID)
	if updated.LastError == "" {
		t.Error("failure must surface to rule lastError")
	}
}

func TestEvaluateOneRuleFailureDoesNotStopOthers(t *testing.T) {
	st := store.NewInMemoryStore()
	seedGuestAndReservation(t, st, time.Now().AddDate(0, 0, 2))

	sender := channel.NewMockSender()
	sender.Err = context.DeadlineExceeded
	eng := NewEngine(st, WithSender(sender))

	broken := checkedInRule()
	broken.Name = "broken"
	broken.Actions = []models.ActionDefinition{
		{Type: models.ActionSendMessage, Config: map[string]any{"message": "hi"}},
	}
	if _, err := eng.CreateRule(broken); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if _, err := eng.CreateRule(checkedInRule()); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	event := models.AutomationEvent{
		Type: "reservation.checked_in",
		Data: map[string]any{"guest_id": "guest_1"},
	}
	results, err := eng.Evaluate(context.Background(), event)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both rules evaluated, got %d results", len(results))
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one success: %+v", results)
	}
	if len(st.Tasks()) != 1 {
		t.Errorf("healthy rule must still create its task")
	}
}

func TestRunScheduledTriggersOncePerDay(t *testing.T) {
	st := store.NewInMemoryStore()
	today := time.Now()
	seedGuestAndReservation(t, st, time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()))

	eng := NewEngine(st)
	rule := models.AutomationRule{
		Name:        "departure reminder",
		TriggerType: models.TriggerTypeTimeBased,
		TriggerConfig: models.TriggerConfig{
			Kind:       models.TimeTriggerBeforeDeparture,
			OffsetDays: intPtr(0),
			// No configured time, so every tick is eligible and only the
			// once-per-day claim prevents re-firing.
		},
		Actions: []models.ActionDefinition{
			{Type: models.ActionCreateTask, Config: map[string]any{"title": "Prepare bill", "department": "front_desk"}},
		},
		Enabled: true,
	}
	if _, err := eng.CreateRule(rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	first, err := eng.RunScheduledTriggers(context.Background())
	if err != nil {
		t.Fatalf("RunScheduledTriggers failed: %v", err)
	}
	if len(first) != 1 || !first[0].Success {
		t.Fatalf("unexpected first run: %+v", first)
	}

	second, err := eng.RunScheduledTriggers(context.Background())
	if err != nil {
		t.Fatalf("second RunScheduledTriggers failed: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second run must be idempotent, got %+v", second)
	}

	if len(st.Tasks()) != 1 {
		t.Errorf("expected exactly 1 task, got %d", len(st.Tasks()))
	}
	logs := st.Logs()
	if len(logs) != 1 {
		t.Fatalf("expected exactly 1 log row, got %d", len(logs))
	}
	if logs[0].Status != models.ChainStatusCompleted || logs[0].ReservationID != "res_1" {
		t.Errorf("unexpected log row: %+v", logs[0])
	}
}

func TestRunScheduledTriggersSkipsMissingOffset(t *testing.T) {
	st := store.NewInMemoryStore()
	eng := NewEngine(st)

	rule := models.AutomationRule{
		Name:        "misconfigured",
		TriggerType: models.TriggerTypeTimeBased,
		TriggerConfig: models.TriggerConfig{
			Kind: models.TimeTriggerBeforeArrival, // no offset
		},
		Actions: []models.ActionDefinition{
			{Type: models.ActionCreateTask, Config: map[string]any{"title": "x"}},
		},
		Enabled: true,
	}
	if _, err := eng.CreateRule(rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	results, err := eng.RunScheduledTriggers(context.Background())
	if err != nil {
		t.Fatalf("RunScheduledTriggers failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("rule without offset must be skipped, got %+v", results)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	eng := NewEngine(store.NewInMemoryStore(), WithSchedulerTick("@every 1h"), WithRetryTick("@every 1h"))

	if err := eng.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Double start is a warning, not an error.
	if err := eng.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	eng.Stop()
	eng.Stop()
}

func TestCreateRuleValidation(t *testing.T) {
	eng := NewEngine(store.NewInMemoryStore())

	rule := checkedInRule()
	rule.Name = ""
	if _, err := eng.CreateRule(rule); err != models.ErrEmptyRuleName {
		t.Errorf("error = %v, want ErrEmptyRuleName", err)
	}

	rule = checkedInRule()
	rule.Actions = nil
	if _, err := eng.CreateRule(rule); err != models.ErrEmptyActionChain {
		t.Errorf("error = %v, want ErrEmptyActionChain", err)
	}
}

func TestCreateRuleFillsActionDefaults(t *testing.T) {
	eng := NewEngine(store.NewInMemoryStore())

	created, err := eng.CreateRule(checkedInRule())
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if created.Actions[0].ID != "action_1" || created.Actions[0].Order != 1 {
		t.Errorf("action defaults not filled: %+v", created.Actions[0])
	}
}

func TestUpdateRulePartial(t *testing.T) {
	st := store.NewInMemoryStore()
	eng := NewEngine(st)

	created, err := eng.CreateRule(checkedInRule())
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	name := "renamed"
	updated, err := eng.UpdateRule(created.ID, store.RuleUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("name = %q", updated.Name)
	}
	if updated.TriggerConfig.EventType != "reservation.checked_in" {
		t.Errorf("untouched fields must survive partial update: %+v", updated.TriggerConfig)
	}
}

func TestToggleAndDeleteRule(t *testing.T) {
	eng := NewEngine(store.NewInMemoryStore())

	created, err := eng.CreateRule(checkedInRule())
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	if err := eng.ToggleRule(created.ID, false); err != nil {
		t.Fatalf("ToggleRule failed: %v", err)
	}
	rule, _ := eng.GetRule(created.ID)
	if rule.Enabled {
		t.Error("rule must be disabled")
	}

	// Disabled rules never match.
	results, _ := eng.Evaluate(context.Background(), models.AutomationEvent{Type: "reservation.checked_in"})
	if len(results) != 0 {
		t.Errorf("disabled rule fired: %+v", results)
	}

	if err := eng.DeleteRule(created.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if _, err := eng.GetRule(created.ID); err != models.ErrRuleNotFound {
		t.Errorf("error = %v, want ErrRuleNotFound", err)
	}
	if err := eng.DeleteRule(created.ID); err != models.ErrRuleNotFound {
		t.Errorf("double delete error = %v, want ErrRuleNotFound", err)
	}
}
