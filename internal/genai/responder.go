package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/StayPilot/StayPilot/internal/approval"
	"github.com/StayPilot/StayPilot/internal/autonomy"
	"github.com/StayPilot/StayPilot/internal/channel"
	"github.com/StayPilot/StayPilot/internal/models"
	"github.com/StayPilot/StayPilot/internal/store"
	"github.com/StayPilot/StayPilot/internal/util"
)

// historyWindow is how many prior messages a suggestion sees.
const historyWindow = 10

// Suggester drafts guest replies. Implemented by Client; tests substitute
// their own.
type Suggester interface {
	SuggestReply(ctx context.Context, guest *models.GuestSnapshot, history []models.Message) (Suggestion, error)
}

// Responder turns inbound guest messages into outbound replies, gated by the
// autonomy policy: high-confidence drafts send directly, everything else goes
// to the approval queue.
type Responder struct {
	store     store.Store
	suggester Suggester
	policy    *autonomy.Engine
	queue     *approval.Queue
	sender    channel.Sender
}

// NewResponder creates a responder.
func NewResponder(st store.Store, suggester Suggester, policy *autonomy.Engine, queue *approval.Queue, sender channel.Sender) *Responder {
	return &Responder{store: st, suggester: suggester, policy: policy, queue: queue, sender: sender}
}

// HandleInbound drafts a reply for the conversation's latest guest message
// and either sends it or queues it for approval. Returns the decision taken.
func (r *Responder) HandleInbound(ctx context.Context, conversationID string) (models.AutonomyDecision, error) {
	conv, err := r.store.GetConversation(conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return "", fmt.Errorf("conversation %s not found", conversationID)
	}

	var guest *models.GuestSnapshot
	stored, err := r.store.GetGuest(conv.GuestID)
	if err != nil {
		return "", fmt.Errorf("failed to load guest %s: %w", conv.GuestID, err)
	}
	if stored != nil {
		guest = &models.GuestSnapshot{
			ID: stored.ID, Name: stored.Name, Phone: stored.Phone,
			Email: stored.Email, Language: stored.Language,
		}
	}

	history, err := r.store.RecentMessages(conversationID, time.Now(), historyWindow)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation history: %w", err)
	}

	suggestion, err := r.suggester.SuggestReply(ctx, guest, history)
	if err != nil {
		return "", fmt.Errorf("failed to draft reply: %w", err)
	}

	// Policy gate: the sendMessage action level decides whether any reply may
	// auto-send, then confidence decides for this particular draft.
	autoAllowed, err := r.policy.CanAutoExecute(models.AutonomyActionSendMessage)
	if err != nil {
		return "", err
	}
	decision := models.DecisionApprovalRequired
	if autoAllowed {
		decision, err = r.policy.DecideByConfidence(suggestion.Confidence)
		if err != nil {
			return "", err
		}
	}

	if decision == models.DecisionAuto {
		return decision, r.sendDirect(ctx, conv, guest, suggestion)
	}

	_, err = r.queue.QueueForApproval(models.ApprovalTypeResponse, models.AutonomyActionSendMessage,
		map[string]any{"message": suggestion.Body}, conversationID, conv.GuestID, suggestion.Confidence)
	if err != nil {
		return "", err
	}
	slog.Info("Responder.HandleInbound: reply queued for approval", "conversationID", conversationID, "confidence", suggestion.Confidence)
	return models.DecisionApprovalRequired, nil
}

func (r *Responder) sendDirect(ctx context.Context, conv *models.Conversation, guest *models.GuestSnapshot, suggestion Suggestion) error {
	if r.sender == nil || guest == nil || guest.Phone == "" {
		return fmt.Errorf("cannot auto-send reply on conversation %s: no deliverable address", conv.ID)
	}
	if err := r.sender.Send(ctx, guest.Phone, suggestion.Body); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}

	msg := models.Message{
		ID:             util.GenerateMessageID(),
		ConversationID: conv.ID,
		Direction:      models.MessageOutbound,
		Body:           suggestion.Body,
		CreatedAt:      time.Now(),
	}
	if err := r.store.AddMessage(msg); err != nil {
		slog.Warn("Responder.sendDirect: reply sent but history append failed", "conversationID", conv.ID, "error", err)
	}
	slog.Info("Responder.HandleInbound: reply auto-sent", "conversationID", conv.ID, "confidence", suggestion.Confidence)
	return nil
}
