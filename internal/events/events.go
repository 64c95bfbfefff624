// Package events provides the typed publish/subscribe bus connecting the
// automation core to the rest of the StayPilot platform.
//
// The automation engine is both a consumer (reservation, conversation, and
// task events) and a producer (approval and execution events), so one rule's
// action can trigger another rule.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/StayPilot/StayPilot/internal/models"
)

// EventType identifies a domain event on the bus.
type EventType string

// Enumerated event-type catalog. Handlers subscribe to these; publishing an
// unlisted type is allowed but nothing in the core emits one.
const (
	EventReservationCreated    EventType = "reservation.created"
	EventReservationCheckedIn  EventType = "reservation.checked_in"
	EventReservationCheckedOut EventType = "reservation.checked_out"
	EventReservationCancelled  EventType = "reservation.cancelled"

	EventConversationEscalated    EventType = "conversation.escalated"
	EventConversationStateChanged EventType = "conversation.state_changed"

	EventTaskCreated   EventType = "task.created"
	EventTaskCompleted EventType = "task.completed"

	EventMessageSent     EventType = "message.sent"
	EventMessageReceived EventType = "message.received"

	EventApprovalQueued   EventType = "approval.queued"
	EventApprovalDecided  EventType = "approval.decided"
	EventApprovalExecuted EventType = "approval.executed"

	EventStaffNotification  EventType = "staff.notification"
	EventAutomationExecuted EventType = "automation.executed"
)

// Subscriber is a function that receives events.
type Subscriber func(models.AutomationEvent)

// Bus is the publish/subscribe contract consumed by the automation core.
type Bus interface {
	// Subscribe registers a subscriber for an event type and returns an
	// unsubscribe function.
	Subscribe(eventType EventType, fn Subscriber) func()
	// Publish delivers an event to all subscribers of its type.
	Publish(eventType EventType, data map[string]any)
}

// InProcBus is a non-blocking in-process Bus. Events are delivered
// asynchronously via per-subscriber buffered channels; if a subscriber's
// channel is full the event is dropped for that subscriber.
type InProcBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan models.AutomationEvent
	bufferSize  int
}

// NewBus creates a new in-process event bus with the specified buffer size
// per subscriber.
func NewBus(bufferSize int) *InProcBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InProcBus{
		subscribers: make(map[EventType][]chan models.AutomationEvent),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for a specific event type. The subscriber
// function is called asynchronously in a goroutine. Returns an unsubscribe
// function.
func (b *InProcBus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.AutomationEvent, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("events: subscriber panicked", "eventType", eventType, "panic", r)
					}
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends an event to all subscribers of the given type. Uses a
// non-blocking send so a slow subscriber cannot stall the publisher.
func (b *InProcBus) Publish(eventType EventType, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := models.AutomationEvent{
		Type:      string(eventType),
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			slog.Warn("events: subscriber buffer full, dropping event", "eventType", eventType)
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *InProcBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
