package whatsapp

import (
	"context"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

func TestMockClient_Send(t *testing.T) {
	mock := NewMockClient()

	if err := mock.Send(context.Background(), "15551234567", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "15551234567" {
		t.Errorf("expected recipient %q, got %q", "15551234567", mock.SentMessages[0].To)
	}
}

func TestExtractText(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Errorf("expected empty text for nil message, got %q", got)
	}

	conv := "plain text"
	if got := extractText(&waE2E.Message{Conversation: &conv}); got != conv {
		t.Errorf("expected %q, got %q", conv, got)
	}

	ext := "extended text"
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: &ext}}
	if got := extractText(msg); got != ext {
		t.Errorf("expected %q, got %q", ext, got)
	}
}
