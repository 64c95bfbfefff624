// Package guestctx assembles read-only execution context snapshots from
// guest, reservation, and conversation records.
package guestctx

import (
	"fmt"
	"log/slog"

	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
)

// Builder loads context snapshots from the store. Missing records are
// tolerated: actions that need a field the context lacks fail individually.
type Builder struct {
	store store.Store
}

// NewBuilder creates a context builder backed by the given store.
func NewBuilder(st store.Store) *Builder {
	return &Builder{store: st}
}

// FromEvent builds the execution context for an event-fired rule. Guest and
// reservation records referenced by the event are resolved; when the event
// names a reservation but no guest, the guest comes from the reservation, and
// when it names a guest but no reservation, the guest's active stay is used.
func (b *Builder) FromEvent(rule models.AutomationRule, event models.AutomationEvent) (*models.ExecutionContext, error) {
	execCtx := &models.ExecutionContext{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		Event:          &event,
		ConversationID: event.ConversationID(),
	}

	guestID := event.GuestID()
	reservationID := event.ReservationID()

	if reservationID != "" {
		reservation, err := b.store.GetReservation(reservationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load reservation %s: %w", reservationID, err)
		}
		if reservation != nil {
			execCtx.Reservation = reservationSnapshot(*reservation)
			if guestID == "" {
				guestID = reservation.GuestID
			}
		}
	}

	if guestID != "" {
		guest, err := b.store.GetGuest(guestID)
		if err != nil {
			return nil, fmt.Errorf("failed to load guest %s: %w", guestID, err)
		}
		if guest != nil {
			execCtx.Guest = guestSnapshot(*guest)
		} else {
			slog.Debug("Builder.FromEvent: event references unknown guest", "guestID", guestID)
		}

		if execCtx.Reservation == nil {
			active, err := b.store.GetActiveReservationForGuest(guestID)
			if err != nil {
				return nil, fmt.Errorf("failed to load active reservation for guest %s: %w", guestID, err)
			}
			if active != nil {
				execCtx.Reservation = reservationSnapshot(*active)
			}
		}
	}

	return execCtx, nil
}

// FromReservation builds the reservation-only context used by time-based
// triggers.
func (b *Builder) FromReservation(rule models.AutomationRule, reservation models.Reservation) (*models.ExecutionContext, error) {
	execCtx := &models.ExecutionContext{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Reservation: reservationSnapshot(reservation),
	}

	if reservation.GuestID != "" {
		guest, err := b.store.GetGuest(reservation.GuestID)
		if err != nil {
			return nil, fmt.Errorf("failed to load guest %s: %w", reservation.GuestID, err)
		}
		if guest != nil {
			execCtx.Guest = guestSnapshot(*guest)
		}
	}

	return execCtx, nil
}

func guestSnapshot(g models.Guest) *models.GuestSnapshot {
	return &models.GuestSnapshot{
		ID:       g.ID,
		Name:     g.Name,
		Phone:    g.Phone,
		Email:    g.Email,
		Language: g.Language,
	}
}

func reservationSnapshot(r models.Reservation) *models.ReservationSnapshot {
	return &models.ReservationSnapshot{
		ID:            r.ID,
		GuestID:       r.GuestID,
		RoomNumber:    r.RoomNumber,
		ArrivalDate:   r.ArrivalDate,
		DepartureDate: r.DepartureDate,
		Status:        r.Status,
	}
}
