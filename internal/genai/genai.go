// Package genai provides AI-assisted reply suggestions using the OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/StayPilot/StayPilot/internal/models"
)

// fallbackConfidence is assigned when the model response cannot be parsed as
// a structured suggestion. Low enough that the suggestion always goes through
// staff review.
const fallbackConfidence = 0.3

// systemPrompt frames the assistant as concierge staff. The model must reply
// with a JSON object carrying its own confidence estimate.
const systemPrompt = `You are a hotel concierge assistant drafting replies to guest messages.
Answer concisely and politely. Respond with a JSON object of the form
{"reply": "<your reply>", "confidence": <0.0-1.0>} where confidence is your
estimate of how appropriate the reply is to send without staff review.`

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Suggestion is a drafted guest reply with the model's confidence estimate.
type Suggestion struct {
	Body       string  `json:"reply"`
	Confidence float64 `json:"confidence"`
}

// Client wraps the OpenAI chat completion service for drafting guest replies.
type Client struct {
	chat chatService
}

// NewClient initializes a new GenAI client using the OPENAI_API_KEY
// environment variable.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{chat: &cli.Chat.Completions}, nil
}

// SuggestReply drafts a reply to the latest guest message given the recent
// conversation history (oldest first).
func (c *Client) SuggestReply(ctx context.Context, guest *models.GuestSnapshot, history []models.Message) (Suggestion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}
	if guest != nil && guest.Name != "" {
		messages = append(messages, openai.SystemMessage(fmt.Sprintf("The guest's name is %s.", guest.Name)))
	}
	for _, msg := range history {
		if msg.Direction == models.MessageOutbound {
			messages = append(messages, openai.AssistantMessage(msg.Body))
		} else {
			messages = append(messages, openai.UserMessage(msg.Body))
		}
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModelGPT4oMini,
		Messages: messages,
	})
	if err != nil {
		return Suggestion{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Suggestion{}, fmt.Errorf("no choices returned")
	}
	return parseSuggestion(resp.Choices[0].Message.Content), nil
}

// parseSuggestion decodes the model's JSON reply, tolerating plain-text
// responses by treating them as low-confidence drafts.
func parseSuggestion(content string) Suggestion {
	content = strings.TrimSpace(content)

	var s Suggestion
	if err := json.Unmarshal([]byte(content), &s); err == nil && s.Body != "" {
		if s.Confidence < 0 {
			s.Confidence = 0
		}
		if s.Confidence > 1 {
			s.Confidence = 1
		}
		return s
	}
	return Suggestion{Body: content, Confidence: fallbackConfidence}
}
