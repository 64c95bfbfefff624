package conversation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/StayPilot/StayPilot/internal/events"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/util"
)

// Tracker applies lifecycle events to persisted conversations and publishes
// the resulting state changes on the event bus.
type Tracker struct {
	store store.Store
	bus   events.Bus
}

// TrackerOpts holds optional configuration for Tracker.
type TrackerOpts struct {
	Bus events.Bus
}

// TrackerOption configures TrackerOpts.
type TrackerOption func(*TrackerOpts)

// WithTrackerBus sets the event bus state changes are published on.
func WithTrackerBus(bus events.Bus) TrackerOption {
	return func(o *TrackerOpts) { o.Bus = bus }
}

// NewTracker creates a conversation tracker backed by the given store.
func NewTracker(st store.Store, opts ...TrackerOption) *Tracker {
	var cfg TrackerOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tracker{store: st, bus: cfg.Bus}
}

// Open creates a new conversation for a guest on a channel, starting in the
// "new" state.
func (t *Tracker) Open(guestID, channel string) (*models.Conversation, error) {
	now := time.Now()
	conv := models.Conversation{
		ID:        util.GenerateRandomID("conv_", 32),
		GuestID:   guestID,
		Channel:   channel,
		State:     models.ConversationNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.CreateConversation(conv); err != nil {
		return nil, fmt.Errorf("failed to open conversation: %w", err)
	}
	slog.Info("Tracker.Open: conversation created", "conversationID", conv.ID, "guestID", guestID, "channel", channel)
	return &conv, nil
}

// Apply loads the conversation, runs the event through the state machine, and
// persists the new state when the transition is valid. Invalid transitions
// leave the record untouched and are returned as a failed result, not an
// error.
func (t *Tracker) Apply(conversationID string, event models.ConversationEvent) (models.TransitionResult, error) {
	conv, err := t.store.GetConversation(conversationID)
	if err != nil {
		return models.TransitionResult{}, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return models.TransitionResult{}, fmt.Errorf("conversation %s not found", conversationID)
	}

	machine := NewMachine(conv.State)
	result := machine.Transition(event)
	if !result.Success {
		slog.Debug("Tracker.Apply: invalid transition", "conversationID", conversationID, "state", conv.State, "event", event, "reason", result.Reason)
		return result, nil
	}
	if result.To == result.From {
		// Self-loop, nothing to persist.
		return result, nil
	}

	if err := t.store.UpdateConversationState(conversationID, result.To); err != nil {
		return models.TransitionResult{}, fmt.Errorf("failed to persist conversation state: %w", err)
	}
	slog.Info("Tracker.Apply: conversation state changed", "conversationID", conversationID, "from", result.From, "to", result.To, "event", event)

	if t.bus != nil {
		t.bus.Publish(events.EventConversationStateChanged, map[string]any{
			"conversation_id": conversationID,
			"guest_id":        conv.GuestID,
			"from":            string(result.From),
			"to":              string(result.To),
		})
		if result.To == models.ConversationEscalated {
			t.bus.Publish(events.EventConversationEscalated, map[string]any{
				"conversation_id": conversationID,
				"guest_id":        conv.GuestID,
			})
		}
	}
	return result, nil
}

// RecordInbound appends a guest message and advances the conversation via the
// message-received event.
func (t *Tracker) RecordInbound(conversationID, body string) (models.TransitionResult, error) {
	return t.record(conversationID, body, models.MessageInbound, models.ConvEventMessageReceived)
}

// RecordOutbound appends a reply and advances the conversation via the
// response-sent event.
func (t *Tracker) RecordOutbound(conversationID, body string) (models.TransitionResult, error) {
	return t.record(conversationID, body, models.MessageOutbound, models.ConvEventResponseSent)
}

func (t *Tracker) record(conversationID, body string, direction models.MessageDirection, event models.ConversationEvent) (models.TransitionResult, error) {
	msg := models.Message{
		ID:             util.GenerateMessageID(),
		ConversationID: conversationID,
		Direction:      direction,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	if err := t.store.AddMessage(msg); err != nil {
		return models.TransitionResult{}, fmt.Errorf("failed to store message: %w", err)
	}
	return t.Apply(conversationID, event)
}
