package llm

import (
	"context"
	"fmt"
	"strings"

	"dialog-manager/internal/common/validation"
	"dialog-manager/internal/intent"
	"dialog-manager/internal/models"
)

var (
	classifySchema = validation.MustCompile(`{
		"type": "object",
		"required": ["intent", "confidence"],
		"properties": {
			"intent": {"type": "string"},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`)

	confirmSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["choice"],
		"properties": {"choice": {"type": "string"}}
	}`)

	sameTopicSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["same_topic"],
		"properties": {"same_topic": {"type": "boolean"}}
	}`)
)

const classifySystem = `You route user messages for a customer service assistant.
Pick the single category that best matches the user's latest message.
Reply with JSON: {"intent": "<category name or none>", "confidence": <0..1>}.`

const confirmSystem = `The assistant asked the user to choose between options.
Decide which option the user's reply selects.
Reply with JSON: {"choice": "<option name or none>"}.`

const sameTopicSystem = `Decide whether the user's latest message continues the current topic.
Reply with JSON: {"same_topic": true|false}.`

// IntentOracle classifies intents with the chat model.
type IntentOracle struct {
	client *Client
}

func NewIntentOracle(client *Client) *IntentOracle {
	return &IntentOracle{client: client}
}

func (o *IntentOracle) Classify(ctx context.Context, req intent.ClassifyRequest) (*intent.Classification, error) {
	prompt := fmt.Sprintf("Categories:\n%s\nMessage: %s", formatIntents(req.Candidates), req.Utterance)

	var reply intent.Classification
	err := o.client.CompleteJSON(ctx, ChatRequest{
		Operation: "classify",
		System:    classifySystem,
		History:   req.History,
		Prompt:    prompt,
		MaxTokens: 64,
	}, classifySchema, &reply)
	if err != nil {
		return nil, err
	}

	reply.Intent = normalizeChoice(reply.Intent, req.Candidates)
	return &reply, nil
}

func (o *IntentOracle) ConfirmCheck(ctx context.Context, utterance string, options []models.Intent, history []models.HistoryEntry) (string, error) {
	prompt := fmt.Sprintf("Options:\n%s\nReply: %s", formatIntents(options), utterance)

	var reply struct {
		Choice string `json:"choice"`
	}
	err := o.client.CompleteJSON(ctx, ChatRequest{
		Operation: "confirm_check",
		System:    confirmSystem,
		History:   history,
		Prompt:    prompt,
		MaxTokens: 32,
	}, confirmSchema, &reply)
	if err != nil {
		return "", err
	}
	return normalizeChoice(reply.Choice, options), nil
}

func (o *IntentOracle) SameTopic(ctx context.Context, utterance string, previous models.Intent, history []models.HistoryEntry) (bool, error) {
	topic := previous.Name
	if previous.Description != "" {
		topic = fmt.Sprintf("%s (%s)", previous.Name, previous.Description)
	}
	prompt := fmt.Sprintf("Current topic: %s\nMessage: %s", topic, utterance)

	var reply struct {
		SameTopic bool `json:"same_topic"`
	}
	err := o.client.CompleteJSON(ctx, ChatRequest{
		Operation: "same_topic",
		System:    sameTopicSystem,
		History:   history,
		Prompt:    prompt,
		MaxTokens: 16,
	}, sameTopicSchema, &reply)
	if err != nil {
		return false, err
	}
	return reply.SameTopic, nil
}

// normalizeChoice maps the model's answer onto a candidate name. Models
// sometimes answer with the last path segment only.
func normalizeChoice(answer string, candidates []models.Intent) string {
	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, "none") {
		return ""
	}
	for _, c := range candidates {
		if c.Name == answer || strings.HasPrefix(answer, c.Name+".") {
			return answer
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Leaf(), answer) {
			return c.Name
		}
	}
	return ""
}

var _ intent.Oracle = (*IntentOracle)(nil)
