package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/StayPilot/StayPilot/internal/channel"
	"github.com/StayPilot/StayPilot/internal/events"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/util"
)

// webhookTimeout bounds a single webhook call.
const webhookTimeout = 10 * time.Second

// Actions bundles the dependencies of the built-in action handlers.
type Actions struct {
	store  store.Store
	sender channel.Sender
	bus    events.Bus
	client *http.Client
}

// ActionsOpts holds optional configuration for Actions.
type ActionsOpts struct {
	Sender     channel.Sender
	Bus        events.Bus
	HTTPClient *http.Client
}

// ActionsOption configures ActionsOpts.
type ActionsOption func(*ActionsOpts)

// WithSender sets the outbound message sender used by send_message actions.
func WithSender(s channel.Sender) ActionsOption {
	return func(o *ActionsOpts) { o.Sender = s }
}

// WithBus sets the event bus actions publish on.
func WithBus(b events.Bus) ActionsOption {
	return func(o *ActionsOpts) { o.Bus = b }
}

// WithHTTPClient overrides the HTTP client used by webhook actions.
func WithHTTPClient(c *http.Client) ActionsOption {
	return func(o *ActionsOpts) { o.HTTPClient = c }
}

// NewActions creates the built-in action handler set.
func NewActions(st store.Store, opts ...ActionsOption) *Actions {
	var cfg ActionsOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &Actions{store: st, sender: cfg.Sender, bus: cfg.Bus, client: client}
}

// RegisterAll registers every built-in handler on the registry.
func (a *Actions) RegisterAll(registry *Registry) {
	registry.Register(models.ActionSendMessage, a.SendMessage)
	registry.Register(models.ActionCreateTask, a.CreateTask)
	registry.Register(models.ActionNotifyStaff, a.NotifyStaff)
	registry.Register(models.ActionWebhook, a.Webhook)
}

func configString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

// SendMessage interpolates the configured template and delivers it to the
// guest through the channel sender. When the context carries a conversation,
// the outbound message is appended to its history.
func (a *Actions) SendMessage(ctx context.Context, action models.ActionDefinition, execCtx *models.ExecutionContext) (map[string]any, error) {
	if a.sender == nil {
		return nil, fmt.Errorf("no message sender configured")
	}
	template := configString(action.Config, "message")
	if template == "" {
		return nil, fmt.Errorf("send_message action %s has no message configured", action.ID)
	}
	if execCtx.Guest == nil || execCtx.Guest.Phone == "" {
		return nil, fmt.Errorf("send_message action %s: no guest phone in context", action.ID)
	}

	body := Interpolate(template, execCtx)
	if err := a.sender.Send(ctx, execCtx.Guest.Phone, body); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if execCtx.ConversationID != "" {
		msg := models.Message{
			ID:             util.GenerateMessageID(),
			ConversationID: execCtx.ConversationID,
			Direction:      models.MessageOutbound,
			Body:           body,
			CreatedAt:      time.Now(),
		}
		if err := a.store.AddMessage(msg); err != nil {
			slog.Warn("Actions.SendMessage: message sent but history append failed", "conversationID", execCtx.ConversationID, "error", err)
		}
	}

	if a.bus != nil {
		a.bus.Publish(events.EventMessageSent, map[string]any{
			"guest_id":        execCtx.Guest.ID,
			"conversation_id": execCtx.ConversationID,
			"rule_id":         execCtx.RuleID,
		})
	}
	return map[string]any{"sent": true, "to": execCtx.Guest.Phone}, nil
}

// CreateTask persists a staff task from the action config.
func (a *Actions) CreateTask(_ context.Context, action models.ActionDefinition, execCtx *models.ExecutionContext) (map[string]any, error) {
	title := configString(action.Config, "title")
	if title == "" {
		title = Interpolate("Automation task for {{guest_name}}", execCtx)
	}
	task := models.Task{
		ID:          util.GenerateTaskID(),
		Title:       Interpolate(title, execCtx),
		Description: Interpolate(configString(action.Config, "description"), execCtx),
		Department:  configString(action.Config, "department"),
		Priority:    configString(action.Config, "priority"),
		Status:      models.TaskStatusOpen,
		CreatedAt:   time.Now(),
	}
	if execCtx.Guest != nil {
		task.GuestID = execCtx.Guest.ID
	}
	if execCtx.Reservation != nil {
		task.ReservationID = execCtx.Reservation.ID
	}

	if err := a.store.CreateTask(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if a.bus != nil {
		a.bus.Publish(events.EventTaskCreated, map[string]any{
			"task_id":    task.ID,
			"guest_id":   task.GuestID,
			"department": task.Department,
			"rule_id":    execCtx.RuleID,
		})
	}
	return map[string]any{"task_id": task.ID}, nil
}

// NotifyStaff publishes a staff notification event. Delivery to staff devices
// is handled by subscribers outside the automation core.
func (a *Actions) NotifyStaff(_ context.Context, action models.ActionDefinition, execCtx *models.ExecutionContext) (map[string]any, error) {
	if a.bus == nil {
		return nil, fmt.Errorf("no event bus configured")
	}
	message := Interpolate(configString(action.Config, "message"), execCtx)
	if message == "" {
		return nil, fmt.Errorf("notify_staff action %s has no message configured", action.ID)
	}
	data := map[string]any{
		"message":    message,
		"department": configString(action.Config, "department"),
		"rule_id":    execCtx.RuleID,
	}
	if execCtx.Guest != nil {
		data["guest_id"] = execCtx.Guest.ID
	}
	a.bus.Publish(events.EventStaffNotification, data)
	return map[string]any{"notified": true}, nil
}

// webhookPayload is the JSON body sent to webhook targets.
type webhookPayload struct {
	RuleID      string                      `json:"rule_id"`
	RuleName    string                      `json:"rule_name"`
	Event       *models.AutomationEvent     `json:"event,omitempty"`
	Guest       *models.GuestSnapshot       `json:"guest,omitempty"`
	Reservation *models.ReservationSnapshot `json:"reservation,omitempty"`
	Timestamp   time.Time                   `json:"timestamp"`
}

// Webhook posts the execution context to the configured URL. Non-2xx
// responses are failures.
func (a *Actions) Webhook(ctx context.Context, action models.ActionDefinition, execCtx *models.ExecutionContext) (map[string]any, error) {
	url := configString(action.Config, "url")
	if url == "" {
		return nil, fmt.Errorf("webhook action %s has no url configured", action.ID)
	}

	payload := webhookPayload{
		RuleID:      execCtx.RuleID,
		RuleName:    execCtx.RuleName,
		Event:       execCtx.Event,
		Guest:       execCtx.Guest,
		Reservation: execCtx.Reservation,
		Timestamp:   time.Now(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return map[string]any{"status_code": resp.StatusCode}, nil
}
