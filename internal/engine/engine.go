// Package engine orchestrates StayPilot's automation core: it reacts to
// domain events, drives time-based triggers, and owns the retry sweep.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/StayPilot/StayPilot/internal/chain"
	"github.com/StayPilot/StayPilot/internal/channel"
	"github.com/StayPilot/StayPilot/internal/events"
	"github.com/StayPilot/StayPilot/internal/guestctx"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/retry"
	"github.com/StayPilot/StayPilot/internal/scheduler"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/trigger"
)

// Default timer intervals.
const (
	DefaultSchedulerTick = "@every 1m"
	DefaultRetryTick     = "@every 30s"
)

// consumedEvents are the bus event types the engine evaluates rules against.
var consumedEvents = []events.EventType{
	events.EventReservationCreated,
	events.EventReservationCheckedIn,
	events.EventReservationCheckedOut,
	events.EventReservationCancelled,
	events.EventConversationEscalated,
	events.EventConversationStateChanged,
	events.EventTaskCreated,
	events.EventTaskCompleted,
	events.EventMessageSent,
	events.EventMessageReceived,
}

// Engine is the automation orchestrator.
type Engine struct {
	store    store.Store
	bus      events.Bus
	builder  *guestctx.Builder
	executor *chain.Executor
	retries  *retry.Manager

	schedulerTick string
	retryTick     string

	mu           sync.Mutex
	sched        *scheduler.Scheduler
	unsubscribes []func()
}

// Opts holds optional configuration for the Engine.
type Opts struct {
	Bus           events.Bus
	Sender        channel.Sender
	HTTPClient    *http.Client
	SchedulerTick string
	RetryTick     string
}

// Option configures Opts.
type Option func(*Opts)

// WithBus sets the event bus the engine consumes and publishes on.
func WithBus(bus events.Bus) Option {
	return func(o *Opts) { o.Bus = bus }
}

// WithSender sets the outbound message sender for send_message actions.
func WithSender(s channel.Sender) Option {
	return func(o *Opts) { o.Sender = s }
}

// WithHTTPClient overrides the HTTP client used by webhook actions.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithSchedulerTick overrides the scheduled-trigger tick interval.
func WithSchedulerTick(expr string) Option {
	return func(o *Opts) { o.SchedulerTick = expr }
}

// WithRetryTick overrides the retry sweep tick interval.
func WithRetryTick(expr string) Option {
	return func(o *Opts) { o.RetryTick = expr }
}

// NewEngine creates an automation engine with the built-in action handlers
// registered.
func NewEngine(st store.Store, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SchedulerTick == "" {
		cfg.SchedulerTick = DefaultSchedulerTick
	}
	if cfg.RetryTick == "" {
		cfg.RetryTick = DefaultRetryTick
	}

	registry := chain.NewRegistry()
	actionOpts := []chain.ActionsOption{chain.WithBus(cfg.Bus)}
	if cfg.Sender != nil {
		actionOpts = append(actionOpts, chain.WithSender(cfg.Sender))
	}
	if cfg.HTTPClient != nil {
		actionOpts = append(actionOpts, chain.WithHTTPClient(cfg.HTTPClient))
	}
	chain.NewActions(st, actionOpts...).RegisterAll(registry)

	executor := chain.NewExecutor(registry)
	return &Engine{
		store:         st,
		bus:           cfg.Bus,
		builder:       guestctx.NewBuilder(st),
		executor:      executor,
		retries:       retry.NewManager(st, executor),
		schedulerTick: cfg.SchedulerTick,
		retryTick:     cfg.RetryTick,
	}
}

// Start subscribes to domain events and starts the scheduler and retry
// timers. Starting an already-running engine is a no-op with a warning.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sched != nil {
		slog.Warn("Engine.Start: engine already running")
		return nil
	}

	e.sched = scheduler.NewScheduler()
	if err := e.sched.AddJob(e.schedulerTick, func() {
		if _, err := e.RunScheduledTriggers(context.Background()); err != nil {
			slog.Error("Engine: scheduled trigger tick failed", "error", err)
		}
	}); err != nil {
		e.sched.Stop()
		e.sched = nil
		return err
	}
	if err := e.sched.AddJob(e.retryTick, func() {
		if _, err := e.retries.ProcessPendingRetries(context.Background()); err != nil {
			slog.Error("Engine: retry sweep failed", "error", err)
		}
	}); err != nil {
		e.sched.Stop()
		e.sched = nil
		return err
	}

	if e.bus != nil {
		for _, eventType := range consumedEvents {
			unsubscribe := e.bus.Subscribe(eventType, func(event models.AutomationEvent) {
				if _, err := e.Evaluate(context.Background(), event); err != nil {
					slog.Error("Engine: event evaluation failed", "eventType", event.Type, "error", err)
				}
			})
			e.unsubscribes = append(e.unsubscribes, unsubscribe)
		}
	}

	slog.Info("Engine.Start: automation engine started", "schedulerTick", e.schedulerTick, "retryTick", e.retryTick)
	return nil
}

// Stop clears the timers and event subscriptions. Safe to call repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sched == nil {
		return
	}
	e.sched.Stop()
	e.sched = nil

	for _, unsubscribe := range e.unsubscribes {
		unsubscribe()
	}
	e.unsubscribes = nil
	slog.Info("Engine.Stop: automation engine stopped")
}

// Retries exposes the retry manager, mainly for the retry sweep endpoint and
// tests.
func (e *Engine) Retries() *retry.Manager {
	return e.retries
}

// Evaluate runs every enabled event-based rule that matches the event. One
// rule's failure never prevents evaluation of the remaining rules; only an
// infrastructure failure loading the rules propagates.
func (e *Engine) Evaluate(ctx context.Context, event models.AutomationEvent) ([]models.ExecutionResult, error) {
	rules, err := e.store.ListEnabledRules()
	if err != nil {
		return nil, err
	}

	var results []models.ExecutionResult
	for _, rule := range rules {
		if !trigger.Matches(rule, event) {
			continue
		}
		slog.Info("Engine.Evaluate: rule matched", "ruleID", rule.ID, "ruleName", rule.Name, "eventType", event.Type)
		results = append(results, e.runRule(ctx, rule, event))
	}
	return results, nil
}

// runRule executes one matched rule end to end: context, durable execution
// record, chain, persistence, stats, and retry scheduling on failure.
func (e *Engine) runRule(ctx context.Context, rule models.AutomationRule, event models.AutomationEvent) models.ExecutionResult {
	result := models.ExecutionResult{RuleID: rule.ID, RuleName: rule.Name}

	execCtx, err := e.builder.FromEvent(rule, event)
	if err != nil {
		result.Error = err.Error()
		e.recordRun(rule.ID, result.Error)
		return result
	}

	executionID, err := e.retries.CreateExecution(rule.ID, execCtx)
	if err != nil {
		result.Error = err.Error()
		e.recordRun(rule.ID, result.Error)
		return result
	}
	result.ExecutionID = executionID

	chainResult := e.executor.Run(ctx, rule.Actions, execCtx)
	result.Chain = &chainResult

	reservationID := ""
	if execCtx.Reservation != nil {
		reservationID = execCtx.Reservation.ID
	}
	e.logRun(rule.ID, reservationID, chainResult)

	if chainResult.Status == models.ChainStatusFailed {
		result.Error = chainResult.Error
		e.recordRun(rule.ID, chainResult.Error)

		scheduled, err := e.retries.ScheduleRetry(executionID, rule.ID, 2, chainResult.Error)
		if err != nil {
			slog.Error("Engine.runRule: failed to schedule retry", "executionID", executionID, "error", err)
		} else if !scheduled {
			if err := e.retries.Fail(executionID, rule.ID, chainResult.Error); err != nil {
				slog.Error("Engine.runRule: failed to close execution", "executionID", executionID, "error", err)
			}
		}
	} else {
		result.Success = true
		e.recordRun(rule.ID, "")
		if err := e.retries.Complete(executionID, chainResult); err != nil {
			slog.Error("Engine.runRule: failed to complete execution", "executionID", executionID, "error", err)
		}
	}

	if e.bus != nil {
		e.bus.Publish(events.EventAutomationExecuted, map[string]any{
			"rule_id":      rule.ID,
			"execution_id": executionID,
			"success":      result.Success,
		})
	}
	return result
}

// recordRun updates the rule's stats atomically in the store.
func (e *Engine) recordRun(ruleID, errMsg string) {
	if err := e.store.RecordRuleRun(ruleID, time.Now(), errMsg); err != nil {
		slog.Error("Engine: failed to record rule run", "ruleID", ruleID, "error", err)
	}
}

func (e *Engine) logRun(ruleID, reservationID string, chainResult models.ChainResult) {
	log := models.ExecutionLog{
		ID:            newLogID(),
		RuleID:        ruleID,
		ReservationID: reservationID,
		RunDate:       time.Now().Format("2006-01-02"),
		Status:        chainResult.Status,
		ResultsJSON:   encodeResults(chainResult),
		Error:         chainResult.Error,
		CreatedAt:     time.Now(),
	}
	if err := e.store.AddExecutionLog(log); err != nil {
		slog.Error("Engine: failed to write execution log", "ruleID", ruleID, "error", err)
	}
}
