package chain

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/StayPilot/StayPilot/internal/models"
)

// shouldRun evaluates an action's condition against the results accumulated
// so far. prev is the result of the immediately preceding action in chain
// order, nil when this is the first action.
func shouldRun(action models.ActionDefinition, prev *models.ActionResult, results map[string]models.ActionResult) bool {
	switch action.Condition {
	case models.ConditionAlways, "":
		return true
	case models.ConditionPreviousSuccess:
		return prev != nil && prev.Status == models.ActionStatusSuccess
	case models.ConditionPreviousFailed:
		return prev != nil && prev.Status == models.ActionStatusFailed
	case models.ConditionExpression:
		return evalExpression(action.Expression, results)
	default:
		slog.Warn("chain: unknown action condition, skipping", "condition", action.Condition, "actionID", action.ID)
		return false
	}
}

// evalExpression evaluates a small boolean expression against prior action
// outputs. Supported forms:
//
//	actions.<id>.output.<field>
//	actions.<id>.output.<field> == <literal>
//	actions.<id>.output.<field> != <literal>
//
// A bare reference is true when the field resolves to a truthy value.
// Unresolvable references evaluate false, never error.
func evalExpression(expr string, results map[string]models.ActionResult) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}

	if left, right, ok := splitOperator(expr, "=="); ok {
		value, resolved := resolveRef(left, results)
		return resolved && value == right
	}
	if left, right, ok := splitOperator(expr, "!="); ok {
		value, resolved := resolveRef(left, results)
		return resolved && value != right
	}

	value, resolved := resolveRef(expr, results)
	return resolved && isTruthy(value)
}

func splitOperator(expr, op string) (left, right string, ok bool) {
	idx := strings.Index(expr, op)
	if idx < 0 {
		return "", "", false
	}
	left = strings.TrimSpace(expr[:idx])
	right = strings.Trim(strings.TrimSpace(expr[idx+len(op):]), `'"`)
	return left, right, true
}

// resolveRef resolves an actions.<id>.output.<field> reference to its string
// form.
func resolveRef(ref string, results map[string]models.ActionResult) (string, bool) {
	parts := strings.Split(ref, ".")
	if len(parts) != 4 || parts[0] != "actions" || parts[2] != "output" {
		return "", false
	}
	result, ok := results[parts[1]]
	if !ok || result.Output == nil {
		return "", false
	}
	value, ok := result.Output[parts[3]]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%v", value), true
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "", "false", "0", "<nil>":
		return false
	}
	return true
}
