// Package retry persists failed rule executions and re-runs them with
// exponential backoff.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/StayPilot/StayPilot/internal/chain"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/util"
)

// sweepBatchSize bounds how many due executions one sweep picks up.
const sweepBatchSize = 50

// Manager owns durable execution records and the retry sweep.
type Manager struct {
	store    store.Store
	executor *chain.Executor
}

// NewManager creates a retry manager re-running chains through the given
// executor.
func NewManager(st store.Store, executor *chain.Executor) *Manager {
	return &Manager{store: st, executor: executor}
}

// CreateExecution persists a new pending execution with a context snapshot
// and returns its ID. The snapshot is everything a later retry needs to
// re-run the chain without the original event.
func (m *Manager) CreateExecution(ruleID string, execCtx *models.ExecutionContext) (string, error) {
	snapshot, err := json.Marshal(execCtx)
	if err != nil {
		return "", fmt.Errorf("failed to encode execution context: %w", err)
	}

	now := time.Now()
	exec := models.Execution{
		ID:          util.GenerateExecutionID(),
		RuleID:      ruleID,
		Status:      models.ExecutionStatusPending,
		ContextJSON: string(snapshot),
		Attempt:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateExecution(exec); err != nil {
		return "", fmt.Errorf("failed to create execution for rule %s: %w", ruleID, err)
	}
	return exec.ID, nil
}

// Complete marks an execution finished with its chain results.
func (m *Manager) Complete(executionID string, chainResult models.ChainResult) error {
	results, err := json.Marshal(chainResult)
	if err != nil {
		return fmt.Errorf("failed to encode chain results: %w", err)
	}
	return m.store.CompleteExecution(executionID, string(results))
}

// ScheduleRetry schedules the given attempt of an execution after the
// configured backoff delay. Returns false when the error is not retryable or
// the attempt limit is exhausted; the caller then marks the execution
// permanently failed.
func (m *Manager) ScheduleRetry(executionID, ruleID string, attempt int, errMsg string) (bool, error) {
	cfg := m.retryConfigFor(ruleID)
	if !cfg.Enabled {
		return false, nil
	}
	if !cfg.IsRetryable(errMsg) {
		slog.Debug("Manager.ScheduleRetry: error not retryable", "executionID", executionID, "error", errMsg)
		return false, nil
	}
	if attempt > cfg.EffectiveMaxAttempts() {
		return false, nil
	}

	// Attempt 2 is the first retry, so its delay is the first backoff step.
	delay := cfg.BackoffDelay(attempt - 1)
	nextRetryAt := time.Now().Add(delay)
	if err := m.store.ScheduleExecutionRetry(executionID, attempt, errMsg, nextRetryAt); err != nil {
		return false, fmt.Errorf("failed to schedule retry: %w", err)
	}
	slog.Info("Manager.ScheduleRetry: retry scheduled", "executionID", executionID, "ruleID", ruleID, "attempt", attempt, "delay", delay)
	return true, nil
}

// Fail marks an execution permanently failed and surfaces the terminal error
// onto the owning rule.
func (m *Manager) Fail(executionID, ruleID, errMsg string) error {
	if err := m.store.FailExecution(executionID, errMsg); err != nil {
		return fmt.Errorf("failed to mark execution failed: %w", err)
	}
	if err := m.store.SetRuleLastError(ruleID, errMsg); err != nil {
		slog.Error("Manager.Fail: failed to surface terminal error onto rule", "ruleID", ruleID, "error", err)
	}
	slog.Warn("Manager.Fail: execution permanently failed", "executionID", executionID, "ruleID", ruleID, "error", errMsg)
	return nil
}

// ProcessPendingRetries re-runs every due execution. A failure in one
// execution never aborts the sweep. Invoked by the retry tick.
func (m *Manager) ProcessPendingRetries(ctx context.Context) ([]models.ExecutionResult, error) {
	due, err := m.store.ListDueExecutions(time.Now(), sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due executions: %w", err)
	}

	var results []models.ExecutionResult
	for _, exec := range due {
		results = append(results, m.retryOne(ctx, exec))
	}
	return results, nil
}

func (m *Manager) retryOne(ctx context.Context, exec models.Execution) models.ExecutionResult {
	result := models.ExecutionResult{RuleID: exec.RuleID, ExecutionID: exec.ID}

	rule, err := m.store.GetRule(exec.RuleID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if rule == nil || !rule.Enabled {
		result.Error = "rule no longer active"
		if err := m.store.FailExecution(exec.ID, result.Error); err != nil {
			slog.Error("Manager.ProcessPendingRetries: failed to close orphaned execution", "executionID", exec.ID, "error", err)
		}
		return result
	}
	result.RuleName = rule.Name

	var execCtx models.ExecutionContext
	if err := json.Unmarshal([]byte(exec.ContextJSON), &execCtx); err != nil {
		errMsg := fmt.Sprintf("corrupt context snapshot: %v", err)
		result.Error = errMsg
		if err := m.Fail(exec.ID, exec.RuleID, errMsg); err != nil {
			slog.Error("Manager.ProcessPendingRetries: failed to fail execution", "executionID", exec.ID, "error", err)
		}
		return result
	}
	// Each retry starts the chain from scratch.
	execCtx.PreviousResults = nil

	slog.Info("Manager.ProcessPendingRetries: re-running execution", "executionID", exec.ID, "ruleID", exec.RuleID, "attempt", exec.Attempt)
	chainResult := m.executor.Run(ctx, rule.Actions, &execCtx)
	result.Chain = &chainResult

	if chainResult.Status != models.ChainStatusFailed {
		result.Success = true
		if err := m.Complete(exec.ID, chainResult); err != nil {
			slog.Error("Manager.ProcessPendingRetries: failed to complete execution", "executionID", exec.ID, "error", err)
		}
		if err := m.store.RecordRuleRun(exec.RuleID, time.Now(), ""); err != nil {
			slog.Error("Manager.ProcessPendingRetries: failed to record rule run", "ruleID", exec.RuleID, "error", err)
		}
		return result
	}

	result.Error = chainResult.Error
	if err := m.store.RecordRuleRun(exec.RuleID, time.Now(), chainResult.Error); err != nil {
		slog.Error("Manager.ProcessPendingRetries: failed to record rule run", "ruleID", exec.RuleID, "error", err)
	}

	scheduled, err := m.ScheduleRetry(exec.ID, exec.RuleID, exec.Attempt+1, chainResult.Error)
	if err != nil {
		slog.Error("Manager.ProcessPendingRetries: failed to schedule retry", "executionID", exec.ID, "error", err)
		return result
	}
	if !scheduled {
		if err := m.Fail(exec.ID, exec.RuleID, chainResult.Error); err != nil {
			slog.Error("Manager.ProcessPendingRetries: failed to fail execution", "executionID", exec.ID, "error", err)
		}
	}
	return result
}

// retryConfigFor loads the rule's retry configuration, falling back to the
// defaults when the rule is gone or carries none.
func (m *Manager) retryConfigFor(ruleID string) models.RetryConfig {
	rule, err := m.store.GetRule(ruleID)
	if err != nil || rule == nil || rule.RetryConfig == nil {
		return models.DefaultRetryConfig()
	}
	return *rule.RetryConfig
}
