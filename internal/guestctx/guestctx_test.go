package guestctx

import (
	"testing"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

func seedStore(t *testing.T) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore()

	if err := st.SaveGuest(models.Guest{ID: "guest_1", Name: "Ada Lovelace", Phone: "+15550001111"}); err != nil {
		t.Fatalf("SaveGuest failed: %v", err)
	}
	if err := st.SaveReservation(models.Reservation{
		ID:            "res_1",
		GuestID:       "guest_1",
		RoomNumber:    "204",
		ArrivalDate:   time.Date(2026, time.April, 1, 0, 0, 0, 0, time.Local),
		DepartureDate: time.Date(2026, time.April, 5, 0, 0, 0, 0, time.Local),
		Status:        models.ReservationCheckedIn,
	}); err != nil {
		t.Fatalf("SaveReservation failed: %v", err)
	}
	return st
}

func testRule() models.AutomationRule {
	return models.AutomationRule{ID: "rule_1", Name: "welcome"}
}

func TestFromEventResolvesGuestAndReservation(t *testing.T) {
	builder := NewBuilder(seedStore(t))

	event := models.AutomationEvent{
		Type: "reservation.checked_in",
		Data: map[string]any{"guest_id": "guest_1", "reservation_id": "res_1", "conversation_id": "conv_1"},
	}
	execCtx, err := builder.FromEvent(testRule(), event)
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}

	if execCtx.Guest == nil || execCtx.Guest.Name != "Ada Lovelace" {
		t.Errorf("guest snapshot %+v", execCtx.Guest)
	}
	if execCtx.Reservation == nil || execCtx.Reservation.RoomNumber != "204" {
		t.Errorf("reservation snapshot %+v", execCtx.Reservation)
	}
	if execCtx.ConversationID != "conv_1" {
		t.Errorf("conversation id %q", execCtx.ConversationID)
	}
	if execCtx.RuleID != "rule_1" || execCtx.RuleName != "welcome" {
		t.Errorf("rule fields %+v", execCtx)
	}
}

func TestFromEventGuestFromReservation(t *testing.T) {
	builder := NewBuilder(seedStore(t))

	event := models.AutomationEvent{
		Type: "reservation.checked_in",
		Data: map[string]any{"reservation_id": "res_1"},
	}
	execCtx, err := builder.FromEvent(testRule(), event)
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}
	if execCtx.Guest == nil || execCtx.Guest.ID != "guest_1" {
		t.Errorf("guest must come from the reservation, got %+v", execCtx.Guest)
	}
}

func TestFromEventActiveReservationFallback(t *testing.T) {
	builder := NewBuilder(seedStore(t))

	event := models.AutomationEvent{
		Type: "message.received",
		Data: map[string]any{"guest_id": "guest_1"},
	}
	execCtx, err := builder.FromEvent(testRule(), event)
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}
	if execCtx.Reservation == nil || execCtx.Reservation.ID != "res_1" {
		t.Errorf("expected active reservation fallback, got %+v", execCtx.Reservation)
	}
}

func TestFromEventToleratesUnknownRecords(t *testing.T) {
	builder := NewBuilder(store.NewInMemoryStore())

	event := models.AutomationEvent{
		Type: "message.received",
		Data: map[string]any{"guest_id": "ghost"},
	}
	execCtx, err := builder.FromEvent(testRule(), event)
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}
	if execCtx.Guest != nil || execCtx.Reservation != nil {
		t.Errorf("expected empty snapshots, got %+v", execCtx)
	}
}

func TestFromReservation(t *testing.T) {
	st := seedStore(t)
	builder := NewBuilder(st)

	reservation, _ := st.GetReservation("res_1")
	execCtx, err := builder.FromReservation(testRule(), *reservation)
	if err != nil {
		t.Fatalf("FromReservation failed: %v", err)
	}
	if execCtx.Guest == nil || execCtx.Guest.Phone != "+15550001111" {
		t.Errorf("guest snapshot %+v", execCtx.Guest)
	}
	if execCtx.Reservation == nil || execCtx.Reservation.Status != models.ReservationCheckedIn {
		t.Errorf("reservation snapshot %+v", execCtx.Reservation)
	}
	if execCtx.Event != nil {
		t.Error("reservation context must not carry an event")
	}
}
