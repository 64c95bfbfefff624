package autonomy

import (
	"encoding/json"
	"testing"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

func TestCanAutoExecuteDefaults(t *testing.T) {
	engine := NewEngine(store.NewInMemoryStore())

	cases := []struct {
		actionType string
		want       bool
	}{
		{models.AutonomyActionSendMessage, true},
		{models.AutonomyActionAnswerFAQ, true},
		{models.AutonomyActionCreateTask, true},
		{models.AutonomyActionIssueRefund, false},
		{models.AutonomyActionApplyDiscount, false},
		{models.AutonomyActionSendMarketing, false},
		{"unknownAction", false}, // falls back to default level L1
	}
	for _, tc := range cases {
		got, err := engine.CanAutoExecute(tc.actionType)
		if err != nil {
			t.Fatalf("CanAutoExecute(%s) error: %v", tc.actionType, err)
		}
		if got != tc.want {
			t.Errorf("CanAutoExecute(%s) = %v, want %v", tc.actionType, got, tc.want)
		}
	}
}

func TestCanAutoApproveAmountDefaults(t *testing.T) {
	engine := NewEngine(store.NewInMemoryStore())

	if ok, _ := engine.CanAutoApproveAmount(models.AutonomyActionIssueRefund, 0.01); ok {
		t.Error("refund of 0.01 must not auto-approve with zero cap")
	}
	// No cap configured at all means never auto-approve.
	if ok, _ := engine.CanAutoApproveAmount(models.AutonomyActionSendMessage, 0); ok {
		t.Error("action without a cap must never auto-approve")
	}
}

func TestCanAutoApproveAmountWithCap(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewEngine(st)

	maxAmount := 50.0
	settings := models.DefaultAutonomySettings()
	settings.Actions[models.AutonomyActionIssueRefund] = models.ActionAutonomyConfig{
		Level:         models.AutonomyL1,
		MaxAutoAmount: &maxAmount,
	}
	if err := engine.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	if ok, _ := engine.CanAutoApproveAmount(models.AutonomyActionIssueRefund, 50); !ok {
		t.Error("amount equal to cap must auto-approve (inclusive)")
	}
	if ok, _ := engine.CanAutoApproveAmount(models.AutonomyActionIssueRefund, 50.01); ok {
		t.Error("amount above cap must not auto-approve")
	}
}

func TestCanAutoApprovePercent(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewEngine(st)

	maxPercent := 10.0
	settings := models.DefaultAutonomySettings()
	settings.Actions[models.AutonomyActionApplyDiscount] = models.ActionAutonomyConfig{
		Level:          models.AutonomyL1,
		MaxAutoPercent: &maxPercent,
	}
	if err := engine.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	if ok, _ := engine.CanAutoApprovePercent(models.AutonomyActionApplyDiscount, 10); !ok {
		t.Error("percent equal to cap must auto-approve")
	}
	if ok, _ := engine.CanAutoApprovePercent(models.AutonomyActionApplyDiscount, 11); ok {
		t.Error("percent above cap must not auto-approve")
	}
}

func TestDecideByConfidence(t *testing.T) {
	engine := NewEngine(store.NewInMemoryStore())

	cases := []struct {
		confidence float64
		want       models.AutonomyDecision
	}{
		{0.95, models.DecisionAuto},
		{0.8, models.DecisionAuto}, // at threshold
		{0.79, models.DecisionApprovalRequired},
		{0.1, models.DecisionApprovalRequired},
	}
	for _, tc := range cases {
		got, err := engine.DecideByConfidence(tc.confidence)
		if err != nil {
			t.Fatalf("DecideByConfidence(%v) error: %v", tc.confidence, err)
		}
		if got != tc.want {
			t.Errorf("DecideByConfidence(%v) = %s, want %s", tc.confidence, got, tc.want)
		}
	}
}

func TestIsUrgent(t *testing.T) {
	engine := NewEngine(store.NewInMemoryStore())

	if urgent, _ := engine.IsUrgent(0.4); !urgent {
		t.Error("confidence at urgent threshold must be urgent")
	}
	if urgent, _ := engine.IsUrgent(0.41); urgent {
		t.Error("confidence above urgent threshold must not be urgent")
	}
}

func TestSettingsPersistAndReload(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewEngine(st)

	settings := models.DefaultAutonomySettings()
	settings.DefaultLevel = models.AutonomyL2
	if err := engine.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	// A fresh engine must see the persisted value.
	fresh := NewEngine(st)
	loaded, err := fresh.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if loaded.DefaultLevel != models.AutonomyL2 {
		t.Errorf("reloaded default level = %s", loaded.DefaultLevel)
	}
}

func TestResetToDefaults(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewEngine(st)

	custom := models.DefaultAutonomySettings()
	custom.DefaultLevel = models.AutonomyL2
	if err := engine.SaveSettings(custom); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if err := engine.ResetToDefaults(); err != nil {
		t.Fatalf("ResetToDefaults failed: %v", err)
	}

	settings, _ := engine.Settings()
	if settings.DefaultLevel != models.AutonomyL1 {
		t.Errorf("default level after reset = %s", settings.DefaultLevel)
	}
	refund := settings.Actions[models.AutonomyActionIssueRefund]
	if refund.Level != models.AutonomyL1 || refund.MaxAutoAmount == nil || *refund.MaxAutoAmount != 0 {
		t.Errorf("refund config after reset = %+v", refund)
	}
}

func TestLegacyMigrationOnLoad(t *testing.T) {
	st := store.NewInMemoryStore()

	legacy := `{
		"default_level": "L1",
		"actions": {
			"sendMessage": {"level": "L3"},
			"createTask": {"level": "L2", "requiresReview": true},
			"answerFAQ": {"level": "L2"}
		},
		"confidence_thresholds": {"suggestToStaff": 0.7, "escalate": 0.3}
	}`
	if err := st.SaveSetting("autonomy", legacy); err != nil {
		t.Fatalf("SaveSetting failed: %v", err)
	}

	engine := NewEngine(st)
	settings, err := engine.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}

	if settings.Actions["sendMessage"].Level != models.AutonomyL2 {
		t.Errorf("L3 must collapse to L2, got %s", settings.Actions["sendMessage"].Level)
	}
	if settings.Actions["createTask"].Level != models.AutonomyL1 {
		t.Errorf("requiresReview must downgrade L2 to L1, got %s", settings.Actions["createTask"].Level)
	}
	if settings.Actions["answerFAQ"].Level != models.AutonomyL2 {
		t.Errorf("plain L2 must survive migration, got %s", settings.Actions["answerFAQ"].Level)
	}
	if settings.ConfidenceThresholds.Approval != 0.7 {
		t.Errorf("legacy suggestToStaff must map to approval, got %v", settings.ConfidenceThresholds.Approval)
	}
	if settings.ConfidenceThresholds.Urgent != 0.3 {
		t.Errorf("legacy escalate must map to urgent, got %v", settings.ConfidenceThresholds.Urgent)
	}

	// Migration happens in memory only; the stored row is untouched.
	raw, _ := st.GetSetting("autonomy")
	if raw != legacy {
		t.Error("migration must not rewrite stored settings")
	}
}

func TestLegacyThresholdKeysIgnoredWhenCurrentPresent(t *testing.T) {
	st := store.NewInMemoryStore()
	stored := `{
		"default_level": "L1",
		"actions": {},
		"confidence_thresholds": {"approval": 0.9, "urgent": 0.2, "suggestToStaff": 0.5, "escalate": 0.5}
	}`
	if err := st.SaveSetting("autonomy", stored); err != nil {
		t.Fatalf("SaveSetting failed: %v", err)
	}

	settings, err := NewEngine(st).Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if settings.ConfidenceThresholds.Approval != 0.9 || settings.ConfidenceThresholds.Urgent != 0.2 {
		t.Errorf("current keys must win over legacy: %+v", settings.ConfidenceThresholds)
	}
}

func TestCorruptSettingsFallBackToDefaults(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveSetting("autonomy", "not json"); err != nil {
		t.Fatalf("SaveSetting failed: %v", err)
	}

	settings, err := NewEngine(st).Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	defaults := models.DefaultAutonomySettings()
	gotJSON, _ := json.Marshal(settings)
	wantJSON, _ := json.Marshal(defaults)
	if string(gotJSON) != string(wantJSON) {
		t.Errorf("expected defaults on corrupt settings, got %s", gotJSON)
	}
}
