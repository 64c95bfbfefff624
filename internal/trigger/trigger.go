// Package trigger evaluates whether automation rules fire for a given domain
// event or scheduler tick.
package trigger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
)

// timeWindowMinutes is the matching window around a configured HH:mm time.
// Wide enough that a one-minute scheduler tick cannot miss a configured time.
const timeWindowMinutes = 5

// Matches reports whether an event-based rule fires for the given event.
// Matching requires exact event-type equality plus equality of every declared
// condition against the corresponding event-data field. Conditions support
// simple equality only.
func Matches(rule models.AutomationRule, event models.AutomationEvent) bool {
	if rule.TriggerType != models.TriggerTypeEventBased {
		return false
	}
	cfg := rule.TriggerConfig
	if cfg.EventType == "" || cfg.EventType != event.Type {
		return false
	}
	for key, want := range cfg.Conditions {
		got, ok := event.Data[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// TargetDate computes the reservation date a time-based trigger targets,
// relative to today (local midnight). Returns ok=false when the trigger has a
// relative subtype but no offset configured; such a rule is skipped for the
// tick.
func TargetDate(cfg models.TriggerConfig, today time.Time) (time.Time, bool) {
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	switch cfg.Kind {
	case models.TimeTriggerScheduled:
		return midnight, true
	case models.TimeTriggerBeforeArrival, models.TimeTriggerBeforeDeparture:
		if cfg.OffsetDays == nil {
			return time.Time{}, false
		}
		return midnight.AddDate(0, 0, *cfg.OffsetDays), true
	case models.TimeTriggerAfterArrival, models.TimeTriggerAfterDeparture:
		if cfg.OffsetDays == nil {
			return time.Time{}, false
		}
		return midnight.AddDate(0, 0, -*cfg.OffsetDays), true
	default:
		slog.Warn("trigger.TargetDate: unknown time trigger kind", "kind", cfg.Kind)
		return time.Time{}, false
	}
}

// MatchesTime reports whether the configured HH:mm time matches the current
// wall clock within the matching window. An unset time always matches; the
// caller applies the once-per-day guard.
func MatchesTime(cfg models.TriggerConfig, now time.Time) bool {
	if cfg.Time == "" {
		return true
	}
	parsed, err := time.Parse("15:04", cfg.Time)
	if err != nil {
		slog.Warn("trigger.MatchesTime: malformed trigger time", "time", cfg.Time, "error", err)
		return false
	}
	want := parsed.Hour()*60 + parsed.Minute()
	got := now.Hour()*60 + now.Minute()
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= timeWindowMinutes
}

// ReservationQuery describes which reservations a matched time trigger
// targets: the date column to compare against the target date and the
// required reservation status.
type ReservationQuery struct {
	ByDeparture bool
	Status      string
}

// QueryFor maps a time trigger subtype to its reservation lookup.
// Arrival-relative subtypes target confirmed reservations by arrival date;
// departure-relative subtypes target checked-in reservations by departure
// date. The scheduled subtype has no reservation lookup.
func QueryFor(kind models.TimeTriggerKind) (ReservationQuery, bool) {
	switch kind {
	case models.TimeTriggerBeforeArrival, models.TimeTriggerAfterArrival:
		return ReservationQuery{ByDeparture: false, Status: models.ReservationConfirmed}, true
	case models.TimeTriggerBeforeDeparture, models.TimeTriggerAfterDeparture:
		return ReservationQuery{ByDeparture: true, Status: models.ReservationCheckedIn}, true
	default:
		return ReservationQuery{}, false
	}
}
