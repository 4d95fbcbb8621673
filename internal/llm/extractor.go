package llm

import (
	"context"
	"fmt"
	"strings"

	"dialog-manager/internal/common/validation"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/models"
)

var entitiesSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["entities"],
	"properties": {
		"entities": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["slot", "value"],
				"properties": {
					"slot": {"type": "string"},
					"value": {"type": ["string", "number", "boolean"]},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`)

const extractSystem = `Extract slot values from the user's latest message.
Only use the listed slots. Categorical slots must use one of their options.
Reply with JSON: {"entities": [{"slot": "<name>", "value": "<value>", "confidence": <0..1>}]}.
Reply with an empty list when nothing is mentioned.`

// EntityExtractor fills form slots from an utterance with the chat model.
type EntityExtractor struct {
	client *Client
}

func NewEntityExtractor(client *Client) *EntityExtractor {
	return &EntityExtractor{client: client}
}

// Extract returns entities bound to the form's slots. Values for slots the
// form does not declare, or outside a categorical slot's options, are dropped.
func (e *EntityExtractor) Extract(ctx context.Context, utterance string, form *forms.Form, history []models.HistoryEntry) ([]models.Entity, error) {
	if form == nil || len(form.Slots) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for _, s := range form.Slots {
		fmt.Fprintf(&b, "- %s (%s)", s.Name, s.SlotType)
		if s.Description != "" {
			fmt.Fprintf(&b, ": %s", s.Description)
		}
		if len(s.Options) > 0 {
			fmt.Fprintf(&b, " options: %s", strings.Join(s.Options, ", "))
		}
		b.WriteString("\n")
	}

	var reply struct {
		Entities []struct {
			Slot       string      `json:"slot"`
			Value      interface{} `json:"value"`
			Confidence *float64    `json:"confidence"`
		} `json:"entities"`
	}
	err := e.client.CompleteJSON(ctx, ChatRequest{
		Operation: "extract",
		System:    extractSystem,
		History:   history,
		Prompt:    fmt.Sprintf("Slots:\n%s\nMessage: %s", b.String(), utterance),
	}, entitiesSchema, &reply)
	if err != nil {
		return nil, err
	}

	out := make([]models.Entity, 0, len(reply.Entities))
	for _, raw := range reply.Entities {
		slot, ok := form.Slot(raw.Slot)
		if !ok {
			continue
		}
		value := strings.TrimSpace(fmt.Sprint(raw.Value))
		if value == "" {
			continue
		}
		if len(slot.Options) > 0 {
			matched, ok := matchOption(value, slot.Options)
			if !ok {
				continue
			}
			value = matched
		}
		bound := slot.Clone()
		out = append(out, models.Entity{
			Type:         slot.Name,
			Value:        value,
			Confidence:   raw.Confidence,
			PossibleSlot: &bound,
		})
	}
	return out, nil
}

func matchOption(value string, options []string) (string, bool) {
	for _, o := range options {
		if strings.EqualFold(o, value) {
			return o, true
		}
	}
	return "", false
}
