package approval

import (
	"fmt"
	"log/slog"

	"github.com/StayPilot/StayPilot/internal/models"
)

// enrich attaches derived display data to items. Guest, conversation, and
// staff records are loaded in batches keyed by the union of referenced IDs;
// recent messages are cut per item at its creation time.
func (q *Queue) enrich(items []models.ApprovalQueueItem) ([]models.ApprovalDetails, error) {
	guestIDs := uniqueNonEmpty(items, func(i models.ApprovalQueueItem) string { return i.GuestID })
	conversationIDs := uniqueNonEmpty(items, func(i models.ApprovalQueueItem) string { return i.ConversationID })
	staffIDs := uniqueNonEmpty(items, func(i models.ApprovalQueueItem) string { return i.DecidedBy })

	guests, err := q.store.GetGuestsByIDs(guestIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-load guests: %w", err)
	}
	conversations, err := q.store.GetConversationsByIDs(conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-load conversations: %w", err)
	}
	staff, err := q.store.GetStaffByIDs(staffIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-load staff: %w", err)
	}

	// One room lookup per distinct guest, not per item.
	rooms := make(map[string]string, len(guestIDs))
	for _, guestID := range guestIDs {
		reservation, err := q.store.GetActiveReservationForGuest(guestID)
		if err != nil {
			slog.Warn("Queue.enrich: room lookup failed", "guestID", guestID, "error", err)
			continue
		}
		if reservation != nil && reservation.Status == models.ReservationCheckedIn {
			rooms[guestID] = reservation.RoomNumber
		}
	}

	details := make([]models.ApprovalDetails, 0, len(items))
	for _, item := range items {
		d := models.ApprovalDetails{ApprovalQueueItem: item}

		if guest, ok := guests[item.GuestID]; ok {
			d.GuestName = guest.Name
			d.RoomNumber = rooms[item.GuestID]
		}
		if conv, ok := conversations[item.ConversationID]; ok {
			d.ConversationChannel = conv.Channel
			d.ConversationState = string(conv.State)
			d.NeedsStaffAttention = conv.State == models.ConversationEscalated
		}
		if member, ok := staff[item.DecidedBy]; ok {
			d.DecidedByName = member.Name
		}
		if item.ConversationID != "" {
			msgs, err := q.store.RecentMessages(item.ConversationID, item.CreatedAt, recentMessageCount)
			if err != nil {
				slog.Warn("Queue.enrich: message lookup failed", "conversationID", item.ConversationID, "error", err)
			} else {
				d.RecentMessages = msgs
			}
		}

		details = append(details, d)
	}
	return details, nil
}

func uniqueNonEmpty(items []models.ApprovalQueueItem, key func(models.ApprovalQueueItem) string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, item := range items {
		id := key(item)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
