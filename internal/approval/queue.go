// Package approval implements the durable queue of pending human decisions
// produced by the autonomy policy.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/StayPilot/StayPilot/internal/events"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/util"
)

// recentMessageCount is how many conversation messages enrichment attaches.
const recentMessageCount = 10

// defaultListLimit bounds list queries without an explicit limit.
const defaultListLimit = 100

// Queue owns the approval workflow. Items are created pending, decided
// exactly once, and executed only after approval. All display data is derived
// on read, never persisted.
type Queue struct {
	store store.Store
	bus   events.Bus
}

// Opts holds optional configuration for Queue.
type Opts struct {
	Bus events.Bus
}

// Option configures Opts.
type Option func(*Opts)

// WithBus sets the event bus queue notifications are published on.
func WithBus(bus events.Bus) Option {
	return func(o *Opts) { o.Bus = bus }
}

// NewQueue creates an approval queue backed by the given store.
func NewQueue(st store.Store, opts ...Option) *Queue {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue{store: st, bus: cfg.Bus}
}

// QueueForApproval creates a pending item and emits a queued notification.
// It never executes the action itself.
func (q *Queue) QueueForApproval(itemType models.ApprovalItemType, actionType string, actionData map[string]any, conversationID, guestID string, confidence float64) (*models.ApprovalQueueItem, error) {
	item := models.ApprovalQueueItem{
		ID:             util.GenerateApprovalID(),
		Type:           itemType,
		ActionType:     actionType,
		ActionData:     actionData,
		ConversationID: conversationID,
		GuestID:        guestID,
		Confidence:     confidence,
		Status:         models.ApprovalStatusPending,
		CreatedAt:      time.Now(),
	}
	if err := q.store.CreateApprovalItem(item); err != nil {
		return nil, fmt.Errorf("failed to queue approval item: %w", err)
	}
	slog.Info("Queue.QueueForApproval: item queued", "itemID", item.ID, "type", itemType, "actionType", actionType)

	if q.bus != nil {
		q.bus.Publish(events.EventApprovalQueued, map[string]any{
			"approval_id":     item.ID,
			"type":            string(itemType),
			"action_type":     actionType,
			"conversation_id": conversationID,
			"guest_id":        guestID,
		})
	}
	return &item, nil
}

// Approve marks a pending item approved. Deciding a non-pending item fails
// with an explicit error naming the current status.
func (q *Queue) Approve(id, staffID string) (*models.ApprovalQueueItem, error) {
	return q.decide(id, models.ApprovalStatusApproved, staffID, "")
}

// Reject marks a pending item rejected with a reason.
func (q *Queue) Reject(id, staffID, reason string) (*models.ApprovalQueueItem, error) {
	return q.decide(id, models.ApprovalStatusRejected, staffID, reason)
}

func (q *Queue) decide(id string, status models.ApprovalStatus, staffID, reason string) (*models.ApprovalQueueItem, error) {
	decidedAt := time.Now()
	if err := q.store.DecideApprovalItem(id, status, staffID, reason, decidedAt); err != nil {
		return nil, err
	}
	slog.Info("Queue.decide: item decided", "itemID", id, "status", status, "staffID", staffID)

	item, err := q.store.GetApprovalItem(id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload decided item %s: %w", id, err)
	}

	if q.bus != nil {
		q.bus.Publish(events.EventApprovalDecided, map[string]any{
			"approval_id": id,
			"status":      string(status),
			"decided_by":  staffID,
		})
	}
	return item, nil
}

// ExecuteApproved runs an approved item's action. Task items create a task,
// response items append an outbound message to the conversation, offer items
// are accepted but execution is not implemented. A generic execution event is
// emitted regardless of branch.
func (q *Queue) ExecuteApproved(ctx context.Context, id string) error {
	item, err := q.store.GetApprovalItem(id)
	if err != nil {
		return fmt.Errorf("failed to load approval item %s: %w", id, err)
	}
	if item == nil {
		return models.ErrApprovalNotFound
	}
	if item.Status != models.ApprovalStatusApproved {
		return fmt.Errorf("%w: item %s is %s", models.ErrApprovalNotApproved, id, item.Status)
	}

	var execErr error
	switch item.Type {
	case models.ApprovalTypeTask:
		execErr = q.executeTask(item)
	case models.ApprovalTypeResponse:
		execErr = q.executeResponse(item)
	case models.ApprovalTypeOffer:
		// Offer execution is not implemented; approving one records the
		// decision only.
		slog.Warn("Queue.ExecuteApproved: offer execution not implemented", "itemID", item.ID)
	default:
		execErr = fmt.Errorf("unknown approval item type %q", item.Type)
	}

	if q.bus != nil {
		data := map[string]any{
			"approval_id": item.ID,
			"type":        string(item.Type),
		}
		if execErr != nil {
			data["error"] = execErr.Error()
		}
		q.bus.Publish(events.EventApprovalExecuted, data)
	}
	return execErr
}

func (q *Queue) executeTask(item *models.ApprovalQueueItem) error {
	title, _ := item.ActionData["title"].(string)
	if title == "" {
		title = "Approved task"
	}
	description, _ := item.ActionData["description"].(string)
	department, _ := item.ActionData["department"].(string)
	priority, _ := item.ActionData["priority"].(string)

	task := models.Task{
		ID:          util.GenerateTaskID(),
		Title:       title,
		Description: description,
		Department:  department,
		Priority:    priority,
		Status:      models.TaskStatusOpen,
		GuestID:     item.GuestID,
		CreatedAt:   time.Now(),
	}
	if err := q.store.CreateTask(task); err != nil {
		return fmt.Errorf("failed to create approved task: %w", err)
	}

	if q.bus != nil {
		q.bus.Publish(events.EventTaskCreated, map[string]any{
			"task_id":     task.ID,
			"guest_id":    task.GuestID,
			"department":  task.Department,
			"approval_id": item.ID,
		})
	}
	return nil
}

func (q *Queue) executeResponse(item *models.ApprovalQueueItem) error {
	body, _ := item.ActionData["message"].(string)
	if body == "" {
		return fmt.Errorf("approved response %s has no message body", item.ID)
	}
	if item.ConversationID == "" {
		return fmt.Errorf("approved response %s has no conversation", item.ID)
	}

	msg := models.Message{
		ID:             util.GenerateMessageID(),
		ConversationID: item.ConversationID,
		Direction:      models.MessageOutbound,
		Body:           body,
		CreatedAt:      time.Now(),
	}
	if err := q.store.AddMessage(msg); err != nil {
		return fmt.Errorf("failed to append approved response: %w", err)
	}

	if q.bus != nil {
		q.bus.Publish(events.EventMessageSent, map[string]any{
			"conversation_id": item.ConversationID,
			"guest_id":        item.GuestID,
			"approval_id":     item.ID,
		})
	}
	return nil
}

// GetDetails returns one item with its derived display data.
func (q *Queue) GetDetails(id string) (*models.ApprovalDetails, error) {
	item, err := q.store.GetApprovalItem(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval item %s: %w", id, err)
	}
	if item == nil {
		return nil, models.ErrApprovalNotFound
	}

	enriched, err := q.enrich([]models.ApprovalQueueItem{*item})
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}

// ListPending returns pending items, enriched, newest first.
func (q *Queue) ListPending() ([]models.ApprovalDetails, error) {
	return q.List(models.ApprovalStatusPending)
}

// List returns items with the given status (all statuses when empty),
// enriched, newest first.
func (q *Queue) List(status models.ApprovalStatus) ([]models.ApprovalDetails, error) {
	items, err := q.store.ListApprovalItems(status, defaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval items: %w", err)
	}
	return q.enrich(items)
}

// Stats reports the pending count and today's decision counts, where "today"
// starts at local midnight.
func (q *Queue) Stats() (models.ApprovalStats, error) {
	pending, err := q.store.CountApprovalPending()
	if err != nil {
		return models.ApprovalStats{}, fmt.Errorf("failed to count pending approvals: %w", err)
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := midnight.AddDate(0, 0, 1)

	approved, err := q.store.CountApprovalDecidedBetween(models.ApprovalStatusApproved, midnight, tomorrow)
	if err != nil {
		return models.ApprovalStats{}, fmt.Errorf("failed to count approvals: %w", err)
	}
	rejected, err := q.store.CountApprovalDecidedBetween(models.ApprovalStatusRejected, midnight, tomorrow)
	if err != nil {
		return models.ApprovalStats{}, fmt.Errorf("failed to count rejections: %w", err)
	}

	return models.ApprovalStats{
		Pending:       pending,
		ApprovedToday: approved,
		RejectedToday: rejected,
	}, nil
}
