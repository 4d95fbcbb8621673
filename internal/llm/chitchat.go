package llm

import (
	"context"

	"dialog-manager/internal/models"
)

const chitchatSystem = `You are a friendly customer service assistant. Answer small talk in one or two
short sentences and offer to help with the user's request.`

// ChitchatResponder answers small talk with a plain completion.
type ChitchatResponder struct {
	client *Client
}

func NewChitchatResponder(client *Client) *ChitchatResponder {
	return &ChitchatResponder{client: client}
}

func (r *ChitchatResponder) Reply(ctx context.Context, utterance string, history []models.HistoryEntry) (string, error) {
	return r.client.Complete(ctx, ChatRequest{
		Operation: "chitchat",
		System:    chitchatSystem,
		History:   history,
		Prompt:    utterance,
		MaxTokens: 128,
	})
}
