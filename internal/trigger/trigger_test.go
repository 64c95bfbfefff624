package trigger

import (
	"testing"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
)

func eventRule(eventType string, conditions map[string]string) models.AutomationRule {
	return models.AutomationRule{
		TriggerType: models.TriggerTypeEventBased,
		TriggerConfig: models.TriggerConfig{
			EventType:  eventType,
			Conditions: conditions,
		},
	}
}

func TestMatchesEventType(t *testing.T) {
	rule := eventRule("reservation.checked_in", nil)
	event := models.AutomationEvent{Type: "reservation.checked_in"}

	if !Matches(rule, event) {
		t.Fatal("expected match on equal event type")
	}

	event.Type = "reservation.checked_out"
	if Matches(rule, event) {
		t.Fatal("expected no match on different event type")
	}
}

func TestMatchesConditions(t *testing.T) {
	rule := eventRule("reservation.created", map[string]string{"channel": "direct", "vip": "true"})

	matching := models.AutomationEvent{
		Type: "reservation.created",
		Data: map[string]any{"channel": "direct", "vip": true},
	}
	if !Matches(rule, matching) {
		t.Fatal("expected match when all conditions equal")
	}

	wrongValue := models.AutomationEvent{
		Type: "reservation.created",
		Data: map[string]any{"channel": "ota", "vip": true},
	}
	if Matches(rule, wrongValue) {
		t.Fatal("expected no match on unequal condition value")
	}

	missingField := models.AutomationEvent{
		Type: "reservation.created",
		Data: map[string]any{"channel": "direct"},
	}
	if Matches(rule, missingField) {
		t.Fatal("expected no match when a condition field is absent")
	}
}

func TestMatchesRejectsTimeBasedRules(t *testing.T) {
	rule := models.AutomationRule{
		TriggerType:   models.TriggerTypeTimeBased,
		TriggerConfig: models.TriggerConfig{Kind: models.TimeTriggerScheduled},
	}
	if Matches(rule, models.AutomationEvent{Type: "reservation.created"}) {
		t.Fatal("time-based rules must never match events")
	}
}

func intPtr(n int) *int { return &n }

func TestTargetDate(t *testing.T) {
	today := time.Date(2026, time.March, 10, 14, 30, 0, 0, time.Local)
	midnight := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)

	cases := []struct {
		name string
		cfg  models.TriggerConfig
		want time.Time
		ok   bool
	}{
		{"scheduled", models.TriggerConfig{Kind: models.TimeTriggerScheduled}, midnight, true},
		{"before_arrival+2", models.TriggerConfig{Kind: models.TimeTriggerBeforeArrival, OffsetDays: intPtr(2)}, midnight.AddDate(0, 0, 2), true},
		{"before_departure+0", models.TriggerConfig{Kind: models.TimeTriggerBeforeDeparture, OffsetDays: intPtr(0)}, midnight, true},
		{"after_arrival-1", models.TriggerConfig{Kind: models.TimeTriggerAfterArrival, OffsetDays: intPtr(1)}, midnight.AddDate(0, 0, -1), true},
		{"after_departure-3", models.TriggerConfig{Kind: models.TimeTriggerAfterDeparture, OffsetDays: intPtr(3)}, midnight.AddDate(0, 0, -3), true},
		{"missing offset", models.TriggerConfig{Kind: models.TimeTriggerBeforeArrival}, time.Time{}, false},
		{"unknown kind", models.TriggerConfig{Kind: "weird"}, time.Time{}, false},
	}

	for _, tc := range cases {
		got, ok := TargetDate(tc.cfg, today)
		if ok != tc.ok {
			t.Errorf("%s: ok = %v, want %v", tc.name, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(tc.want) {
			t.Errorf("%s: target = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMatchesTimeWindow(t *testing.T) {
	cfg := models.TriggerConfig{Time: "10:00"}

	cases := []struct {
		clock string
		want  bool
	}{
		{"09:54", false},
		{"09:55", true},
		{"10:00", true},
		{"10:02", true},
		{"10:05", true},
		{"10:06", false},
	}
	for _, tc := range cases {
		now := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)
		parsed, err := time.Parse("15:04", tc.clock)
		if err != nil {
			t.Fatalf("bad test clock %s: %v", tc.clock, err)
		}
		now = now.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute)
		if got := MatchesTime(cfg, now); got != tc.want {
			t.Errorf("clock %s: MatchesTime = %v, want %v", tc.clock, got, tc.want)
		}
	}
}

func TestMatchesTimeUnsetAlwaysMatches(t *testing.T) {
	if !MatchesTime(models.TriggerConfig{}, time.Now()) {
		t.Fatal("unset time must match every tick")
	}
}

func TestMatchesTimeMalformed(t *testing.T) {
	if MatchesTime(models.TriggerConfig{Time: "25:99"}, time.Now()) {
		t.Fatal("malformed time must not match")
	}
}

func TestQueryFor(t *testing.T) {
	cases := []struct {
		kind        models.TimeTriggerKind
		byDeparture bool
		status      string
		ok          bool
	}{
		{models.TimeTriggerBeforeArrival, false, models.ReservationConfirmed, true},
		{models.TimeTriggerAfterArrival, false, models.ReservationConfirmed, true},
		{models.TimeTriggerBeforeDeparture, true, models.ReservationCheckedIn, true},
		{models.TimeTriggerAfterDeparture, true, models.ReservationCheckedIn, true},
		{models.TimeTriggerScheduled, false, "", false},
	}
	for _, tc := range cases {
		q, ok := QueryFor(tc.kind)
		if ok != tc.ok {
			t.Errorf("%s: ok = %v, want %v", tc.kind, ok, tc.ok)
			continue
		}
		if ok && (q.ByDeparture != tc.byDeparture || q.Status != tc.status) {
			t.Errorf("%s: query = %+v", tc.kind, q)
		}
	}
}
