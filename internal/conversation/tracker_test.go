package conversation

import (
	"testing"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

func TestTrackerOpenAndApply(t *testing.T) {
	st := store.NewInMemoryStore()
	tracker := NewTracker(st)

	conv, err := tracker.Open("guest_1", "whatsapp")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if conv.State != models.ConversationNew {
		t.Fatalf("expected new conversation, got %s", conv.State)
	}

	result, err := tracker.Apply(conv.ID, models.ConvEventMessageReceived)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Success || result.To != models.ConversationActive {
		t.Fatalf("expected transition to active, got %+v", result)
	}

	stored, err := st.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if stored.State != models.ConversationActive {
		t.Fatalf("expected persisted state active, got %s", stored.State)
	}
}

func TestTrackerApplyInvalidTransitionDoesNotPersist(t *testing.T) {
	st := store.NewInMemoryStore()
	tracker := NewTracker(st)

	conv, err := tracker.Open("guest_1", "sms")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// response_sent has no row from state new.
	result, err := tracker.Apply(conv.ID, models.ConvEventResponseSent)
	if err != nil {
		t.Fatalf("Apply returned error for invalid transition: %v", err)
	}
	if result.Success {
		t.Fatal("expected failed transition result")
	}
	if result.Reason == "" {
		t.Fatal("expected non-empty reason")
	}

	stored, _ := st.GetConversation(conv.ID)
	if stored.State != models.ConversationNew {
		t.Fatalf("invalid transition mutated persisted state to %s", stored.State)
	}
}

func TestTrackerApplyUnknownConversation(t *testing.T) {
	st := store.NewInMemoryStore()
	tracker := NewTracker(st)

	if _, err := tracker.Apply("conv_missing", models.ConvEventMessageReceived); err == nil {
		t.Fatal("expected error for unknown conversation")
	}
}

func TestTrackerRecordMessages(t *testing.T) {
	st := store.NewInMemoryStore()
	tracker := NewTracker(st)

	conv, err := tracker.Open("guest_1", "whatsapp")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := tracker.RecordInbound(conv.ID, "is late checkout possible?"); err != nil {
		t.Fatalf("RecordInbound failed: %v", err)
	}
	if _, err := tracker.RecordOutbound(conv.ID, "Yes, until 1pm."); err != nil {
		t.Fatalf("RecordOutbound failed: %v", err)
	}

	msgs := st.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	stored, _ := st.GetConversation(conv.ID)
	if stored.State != models.ConversationWaiting {
		t.Fatalf("expected waiting after inbound+outbound, got %s", stored.State)
	}
}
