package store

import (
	"path/filepath"
	"testing"

	"github.com/StayPilot/StayPilot/internal/models"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "staypilot-test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteClaimedRunListsAsPending(t *testing.T) {
	st := newSQLiteTestStore(t)

	logID, claimed, err := st.ClaimScheduledRun("rule_1", "res_1", "2026-08-30")
	if err != nil {
		t.Fatalf("ClaimScheduledRun failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	// A claimed row must be readable before the chain result lands.
	logs, err := st.ListExecutionLogs("rule_1", 10)
	if err != nil {
		t.Fatalf("ListExecutionLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log row, got %d", len(logs))
	}
	if logs[0].ID != logID {
		t.Errorf("expected log ID %s, got %s", logID, logs[0].ID)
	}
	if logs[0].Status != models.ChainStatusPending {
		t.Errorf("expected pending status on claimed row, got %q", logs[0].Status)
	}

	if err := st.UpdateExecutionLog(logID, models.ChainStatusCompleted, `[]`, ""); err != nil {
		t.Fatalf("UpdateExecutionLog failed: %v", err)
	}
	logs, err = st.ListExecutionLogs("rule_1", 10)
	if err != nil {
		t.Fatalf("ListExecutionLogs after update failed: %v", err)
	}
	if logs[0].Status != models.ChainStatusCompleted {
		t.Errorf("expected completed status after update, got %q", logs[0].Status)
	}
}

func TestSQLiteClaimScheduledRunOncePerDay(t *testing.T) {
	st := newSQLiteTestStore(t)

	_, claimed, err := st.ClaimScheduledRun("rule_1", "res_1", "2026-08-30")
	if err != nil || !claimed {
		t.Fatalf("expected first claim to succeed, claimed=%v err=%v", claimed, err)
	}

	_, claimed, err = st.ClaimScheduledRun("rule_1", "res_1", "2026-08-30")
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim for the same day to be rejected")
	}

	_, claimed, err = st.ClaimScheduledRun("rule_1", "res_1", "2026-08-31")
	if err != nil || !claimed {
		t.Fatalf("expected claim for a new day to succeed, claimed=%v err=%v", claimed, err)
	}
}

func TestSQLiteNullStatusRowScansAsPending(t *testing.T) {
	st := newSQLiteTestStore(t)

	// Rows claimed before the placeholder status existed carry NULL.
	_, err := st.db.Exec(
		`INSERT INTO automation_logs (id, rule_id, reservation_id, run_date, scheduled, created_at)
		 VALUES ('log_legacy', 'rule_1', 'res_1', '2026-08-29', 1, CURRENT_TIMESTAMP)`,
	)
	if err != nil {
		t.Fatalf("failed to insert legacy row: %v", err)
	}

	logs, err := st.ListExecutionLogs("rule_1", 10)
	if err != nil {
		t.Fatalf("ListExecutionLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log row, got %d", len(logs))
	}
	if logs[0].Status != models.ChainStatusPending {
		t.Errorf("expected NULL status to scan as pending, got %q", logs[0].Status)
	}
}
