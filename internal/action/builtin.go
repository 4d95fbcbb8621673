package action

import (
	"context"
	"fmt"
	"strings"

	"dialog-manager/internal/models"
	"dialog-manager/internal/slots"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Responder produces a free-form small-talk reply.
type Responder interface {
	Reply(ctx context.Context, utterance string, history []models.HistoryEntry) (string, error)
}

const (
	defaultEndText      = "Sorry, I still don't have what I need to help with that. Let's start again: what can I do for you?"
	defaultJumpOutText  = "Let me connect you with a colleague who can help with that."
	defaultChitchatText = "I'm here to help with your requests. What can I do for you?"
	defaultFallbackText = "Sorry, I can't help with that right now. Please try again in a moment."
)

// RegisterBuiltins adds every built-in action to r.
func RegisterBuiltins(r *Registry, responder Responder, notifier HandoffNotifier, log Logger) {
	r.MustRegister(
		followUpAction{},
		confirmSlotAction{},
		confirmIntentAction{},
		clarifyIntentAction{},
		&textAction{name: EndDialogue, kind: KindEnd, text: defaultEndText},
		NewJumpOutAction(notifier, log),
		NewChitchatAction(responder, log),
		&textAction{name: Fallback, kind: KindFallback, text: defaultFallbackText},
	)
}

// FallbackResponse is the neutral reply used when a turn cannot be decided.
func FallbackResponse() *Response {
	return &Response{Kind: KindFallback, Text: defaultFallbackText}
}

type textAction struct {
	name string
	kind Kind
	text string
}

func (a *textAction) Name() string { return a.name }

func (a *textAction) Run(context.Context, *Input) (*Response, error) {
	return &Response{Kind: a.kind, Text: a.text}, nil
}

type followUpAction struct{}

func (followUpAction) Name() string { return FollowUp }

// Run asks for the cheapest alternative.
func (followUpAction) Run(_ context.Context, in *Input) (*Response, error) {
	alts := in.Directive.MissingSlots
	if len(alts) == 0 || len(alts[0]) == 0 {
		return &Response{Kind: KindFollowUp, Text: "Could you give me a few more details?"}, nil
	}
	asked := alts[0]

	parts := make([]string, len(asked))
	for i, s := range asked {
		parts[i] = slotLabel(s)
		if len(s.Options) > 0 {
			parts[i] += fmt.Sprintf(" (%s)", joinOr(s.Options))
		}
	}
	return &Response{
		Kind: KindFollowUp,
		Text: fmt.Sprintf("Could you tell me %s?", joinAnd(parts)),
		FollowUp: &FollowUpPayload{
			Asked:        asked,
			Alternatives: alts,
			InquiryTimes: in.Conversation.InquiryTimes,
		},
	}, nil
}

type confirmSlotAction struct{}

func (confirmSlotAction) Name() string { return ConfirmSlot }

func (confirmSlotAction) Run(_ context.Context, in *Input) (*Response, error) {
	s := in.Directive.Slot
	if s == nil {
		return nil, fmt.Errorf("confirm_slot: directive has no slot")
	}
	value := ""
	if s.Value != nil {
		value = *s.Value
	}
	return &Response{
		Kind:        KindConfirmSlot,
		Text:        fmt.Sprintf("Just to confirm, your %s is %q?", slotLabel(*s), value),
		ConfirmSlot: &ConfirmSlotPayload{Slot: s.Clone()},
	}, nil
}

type confirmIntentAction struct{}

func (confirmIntentAction) Name() string { return ConfirmIntent }

func (confirmIntentAction) Run(_ context.Context, in *Input) (*Response, error) {
	it := in.Directive.Intent
	if it == nil {
		return nil, fmt.Errorf("confirm_intent: directive has no intent")
	}
	return &Response{
		Kind:          KindConfirmIntent,
		Text:          fmt.Sprintf("Do you need help with %s?", intentLabel(*it)),
		IntentOptions: &IntentOptionsPayload{Options: []models.Intent{*it.Clone()}},
	}, nil
}

type clarifyIntentAction struct{}

func (clarifyIntentAction) Name() string { return ClarifyIntent }

func (clarifyIntentAction) Run(_ context.Context, in *Input) (*Response, error) {
	options := in.Directive.Options
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = intentLabel(o)
	}
	return &Response{
		Kind:          KindClarifyIntent,
		Text:          fmt.Sprintf("Did you mean %s?", joinOr(labels)),
		IntentOptions: &IntentOptionsPayload{Options: append([]models.Intent(nil), options...)},
	}, nil
}

// ChitchatAction answers small talk, with a canned reply when no responder
// is wired or it fails.
type ChitchatAction struct {
	responder Responder
	logger    Logger
}

func NewChitchatAction(responder Responder, log Logger) *ChitchatAction {
	return &ChitchatAction{responder: responder, logger: log}
}

func (a *ChitchatAction) Name() string { return Chitchat }

func (a *ChitchatAction) Run(ctx context.Context, in *Input) (*Response, error) {
	if a.responder != nil {
		text, err := a.responder.Reply(ctx, in.Conversation.CurrentUserInput, in.Conversation.History.Last(6))
		if err == nil && strings.TrimSpace(text) != "" {
			return &Response{Kind: KindChitchat, Text: strings.TrimSpace(text)}, nil
		}
		if err != nil {
			a.logger.Warn("chitchat reply failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return &Response{Kind: KindChitchat, Text: defaultChitchatText}, nil
}

// FormSummaryAction is a business action that echoes the collected slots.
type FormSummaryAction struct {
	name string
}

func NewFormSummaryAction(name string) *FormSummaryAction {
	return &FormSummaryAction{name: name}
}

func (a *FormSummaryAction) Name() string { return a.name }

func (a *FormSummaryAction) Run(_ context.Context, in *Input) (*Response, error) {
	if in.Form == nil {
		return nil, fmt.Errorf("%s: no form for intent", a.name)
	}
	values := make(map[string]string, len(in.Form.Slots))
	var parts []string
	for _, s := range in.Form.Slots {
		e, ok := in.Conversation.EntityFor(s.Name)
		if !ok {
			continue
		}
		values[s.Name] = e.Value
		parts = append(parts, fmt.Sprintf("%s: %s", slotLabel(s), e.Value))
	}

	text := "Thanks, I have everything I need."
	if len(parts) > 0 {
		text = fmt.Sprintf("Thanks, I have everything I need: %s.", strings.Join(parts, ", "))
	}
	return &Response{
		Kind: KindBusiness,
		Text: text,
		Business: &BusinessPayload{
			Intent: in.Form.Intent,
			Action: a.name,
			Slots:  values,
		},
	}, nil
}

func slotLabel(s slots.Slot) string {
	if s.Description != "" {
		return s.Description
	}
	return strings.ReplaceAll(s.Name, "_", " ")
}

func intentLabel(in models.Intent) string {
	if in.Description != "" {
		return in.Description
	}
	return strings.ReplaceAll(in.Leaf(), "_", " ")
}

func joinAnd(parts []string) string {
	return joinWith(parts, "and")
}

func joinOr(parts []string) string {
	return joinWith(parts, "or")
}

func joinWith(parts []string, word string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " " + word + " " + parts[len(parts)-1]
}
