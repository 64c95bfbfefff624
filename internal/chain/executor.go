package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
)

// Executor runs action chains against a handler registry.
type Executor struct {
	registry *Registry
}

// NewExecutor creates a chain executor using the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Run executes the actions strictly in order. A false condition marks the
// action skipped and the chain continues. A failure halts the chain unless
// the action opted into continue-on-error; actions after a fatal failure are
// absent from the results entirely. The chain status is derived purely from
// the per-action results.
func (e *Executor) Run(ctx context.Context, actions []models.ActionDefinition, execCtx *models.ExecutionContext) models.ChainResult {
	started := time.Now()
	chain := models.ChainResult{StartedAt: started}

	ordered := make([]models.ActionDefinition, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	if execCtx.PreviousResults == nil {
		execCtx.PreviousResults = make(map[string]models.ActionResult)
	}

	var prev *models.ActionResult
	for _, action := range ordered {
		if !shouldRun(action, prev, execCtx.PreviousResults) {
			result := models.ActionResult{
				ActionID:    action.ID,
				Status:      models.ActionStatusSkipped,
				StartedAt:   time.Now(),
				CompletedAt: time.Now(),
			}
			chain.Results = append(chain.Results, result)
			execCtx.PreviousResults[action.ID] = result
			prev = &chain.Results[len(chain.Results)-1]
			slog.Debug("Executor.Run: action skipped", "ruleID", execCtx.RuleID, "actionID", action.ID, "condition", action.Condition)
			continue
		}

		result := e.runAction(ctx, action, execCtx)
		chain.Results = append(chain.Results, result)
		execCtx.PreviousResults[action.ID] = result
		prev = &chain.Results[len(chain.Results)-1]

		if result.Status == models.ActionStatusFailed && !action.ContinueOnError {
			chain.Error = result.Error
			break
		}
	}

	chain.Status = deriveStatus(chain.Results, chain.Error != "")
	if chain.Status == models.ChainStatusFailed && chain.Error == "" {
		chain.Error = firstFailure(chain.Results)
	}
	chain.CompletedAt = time.Now()
	chain.DurationMs = chain.CompletedAt.Sub(started).Milliseconds()
	return chain
}

func (e *Executor) runAction(ctx context.Context, action models.ActionDefinition, execCtx *models.ExecutionContext) models.ActionResult {
	result := models.ActionResult{ActionID: action.ID, StartedAt: time.Now()}

	handler, err := e.registry.Get(action.Type)
	if err != nil {
		result.Status = models.ActionStatusFailed
		result.Error = err.Error()
	} else {
		output, err := e.safeInvoke(ctx, handler, action, execCtx)
		if err != nil {
			result.Status = models.ActionStatusFailed
			result.Error = err.Error()
			slog.Warn("Executor.Run: action failed", "ruleID", execCtx.RuleID, "actionID", action.ID, "type", action.Type, "error", err)
		} else {
			result.Status = models.ActionStatusSuccess
			result.Output = output
		}
	}

	result.CompletedAt = time.Now()
	result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()
	return result
}

// safeInvoke converts a handler panic into a failed result so one broken
// handler cannot take down an evaluation cycle.
func (e *Executor) safeInvoke(ctx context.Context, handler Handler, action models.ActionDefinition, execCtx *models.ExecutionContext) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Executor.Run: action handler panicked", "actionID", action.ID, "type", action.Type, "panic", r)
			output = nil
			err = fmt.Errorf("action handler panicked: %v", r)
		}
	}()
	return handler(ctx, action, execCtx)
}

// deriveStatus computes the chain status from the action results alone.
func deriveStatus(results []models.ActionResult, halted bool) models.ChainStatus {
	if halted {
		return models.ChainStatusFailed
	}
	anyFailed := false
	for _, r := range results {
		if r.Status == models.ActionStatusFailed {
			anyFailed = true
		}
	}
	if anyFailed {
		return models.ChainStatusPartial
	}
	return models.ChainStatusCompleted
}

func firstFailure(results []models.ActionResult) string {
	for _, r := range results {
		if r.Status == models.ActionStatusFailed {
			return r.Error
		}
	}
	return ""
}
