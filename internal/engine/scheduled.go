package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/StayPilot/StayPilot/internal/events"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/trigger"
	"github.com/StayPilot/StayPilot/internal/util"
)

// RunScheduledTriggers evaluates every enabled time-based rule against the
// current clock. A (rule, reservation) pair fires at most once per calendar
// day; the claim on the execution-log row is what enforces that, so
// concurrent ticks cannot double-fire. Per-rule failures are caught and
// logged.
func (e *Engine) RunScheduledTriggers(ctx context.Context) ([]models.ExecutionResult, error) {
	rules, err := e.store.ListEnabledRules()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var results []models.ExecutionResult
	for _, rule := range rules {
		if rule.TriggerType != models.TriggerTypeTimeBased {
			continue
		}
		if !trigger.MatchesTime(rule.TriggerConfig, now) {
			continue
		}
		targetDate, ok := trigger.TargetDate(rule.TriggerConfig, now)
		if !ok {
			slog.Debug("Engine.RunScheduledTriggers: rule has no target date this tick", "ruleID", rule.ID)
			continue
		}
		results = append(results, e.runTimeRule(ctx, rule, targetDate, now)...)
	}
	return results, nil
}

func (e *Engine) runTimeRule(ctx context.Context, rule models.AutomationRule, targetDate, now time.Time) []models.ExecutionResult {
	runDate := now.Format("2006-01-02")

	query, hasLookup := trigger.QueryFor(rule.TriggerConfig.Kind)
	if !hasLookup {
		// A plain scheduled rule runs once per day without a reservation.
		result, ran := e.runClaimed(ctx, rule, nil, runDate)
		if !ran {
			return nil
		}
		return []models.ExecutionResult{result}
	}

	date := targetDate.Format("2006-01-02")
	var reservations []models.Reservation
	var err error
	if query.ByDeparture {
		reservations, err = e.store.ListReservationsByDeparture(date, query.Status)
	} else {
		reservations, err = e.store.ListReservationsByArrival(date, query.Status)
	}
	if err != nil {
		slog.Error("Engine.RunScheduledTriggers: reservation lookup failed", "ruleID", rule.ID, "error", err)
		e.recordRun(rule.ID, err.Error())
		return []models.ExecutionResult{{RuleID: rule.ID, RuleName: rule.Name, Error: err.Error()}}
	}

	var results []models.ExecutionResult
	for i := range reservations {
		result, ran := e.runClaimed(ctx, rule, &reservations[i], runDate)
		if ran {
			results = append(results, result)
		}
	}
	return results
}

// runClaimed atomically claims the once-per-day slot for the pair and, when
// the claim succeeds, runs the rule's chain and fills in the claimed log row.
func (e *Engine) runClaimed(ctx context.Context, rule models.AutomationRule, reservation *models.Reservation, runDate string) (models.ExecutionResult, bool) {
	reservationID := ""
	if reservation != nil {
		reservationID = reservation.ID
	}

	logID, claimed, err := e.store.ClaimScheduledRun(rule.ID, reservationID, runDate)
	if err != nil {
		slog.Error("Engine.RunScheduledTriggers: claim failed", "ruleID", rule.ID, "reservationID", reservationID, "error", err)
		return models.ExecutionResult{RuleID: rule.ID, RuleName: rule.Name, Error: err.Error()}, true
	}
	if !claimed {
		return models.ExecutionResult{}, false
	}

	result := models.ExecutionResult{RuleID: rule.ID, RuleName: rule.Name}

	var execCtx *models.ExecutionContext
	if reservation != nil {
		execCtx, err = e.builder.FromReservation(rule, *reservation)
	} else {
		execCtx = &models.ExecutionContext{RuleID: rule.ID, RuleName: rule.Name}
	}
	if err != nil {
		result.Error = err.Error()
		e.recordRun(rule.ID, result.Error)
		e.updateLog(logID, models.ChainStatusFailed, models.ChainResult{}, result.Error)
		return result, true
	}

	slog.Info("Engine.RunScheduledTriggers: rule fired", "ruleID", rule.ID, "reservationID", reservationID, "runDate", runDate)
	chainResult := e.executor.Run(ctx, rule.Actions, execCtx)
	result.Chain = &chainResult

	if chainResult.Status == models.ChainStatusFailed {
		result.Error = chainResult.Error
		e.recordRun(rule.ID, chainResult.Error)
	} else {
		result.Success = true
		e.recordRun(rule.ID, "")
	}
	e.updateLog(logID, chainResult.Status, chainResult, chainResult.Error)

	if e.bus != nil {
		e.bus.Publish(events.EventAutomationExecuted, map[string]any{
			"rule_id":        rule.ID,
			"reservation_id": reservationID,
			"success":        result.Success,
		})
	}
	return result, true
}

func (e *Engine) updateLog(logID string, status models.ChainStatus, chainResult models.ChainResult, errMsg string) {
	if err := e.store.UpdateExecutionLog(logID, status, encodeResults(chainResult), errMsg); err != nil {
		slog.Error("Engine: failed to update execution log", "logID", logID, "error", err)
	}
}

func newLogID() string {
	return util.GenerateRandomID("log_", 32)
}

// encodeResults serializes a chain result for the log row. Encoding failures
// degrade to an empty string rather than losing the run.
func encodeResults(chainResult models.ChainResult) string {
	if len(chainResult.Results) == 0 {
		return ""
	}
	encoded, err := json.Marshal(chainResult)
	if err != nil {
		slog.Error("Engine: failed to encode chain results", "error", err)
		return ""
	}
	return string(encoded)
}
