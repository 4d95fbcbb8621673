// Package action holds the closed set of actions a turn can end in and the
// registry that dispatches them by name.
package action

import (
	"dialog-manager/internal/models"
	"dialog-manager/internal/slots"
)

// Kind tags which payload of a Response is set.
type Kind string

const (
	KindText          Kind = "text"
	KindFollowUp      Kind = "follow_up"
	KindConfirmSlot   Kind = "confirm_slot"
	KindConfirmIntent Kind = "confirm_intent"
	KindClarifyIntent Kind = "clarify_intent"
	KindEnd           Kind = "end"
	KindJumpOut       Kind = "jump_out"
	KindChitchat      Kind = "chitchat"
	KindBusiness      Kind = "business"
	KindFallback      Kind = "fallback"
)

// Response is the reply of one turn. Text is always set; at most one
// payload matching Kind accompanies it.
type Response struct {
	Kind          Kind                  `json:"kind"`
	Text          string                `json:"text"`
	FollowUp      *FollowUpPayload      `json:"followUp,omitempty"`
	ConfirmSlot   *ConfirmSlotPayload   `json:"confirmSlot,omitempty"`
	IntentOptions *IntentOptionsPayload `json:"intentOptions,omitempty"`
	JumpOut       *JumpOutPayload       `json:"jumpOut,omitempty"`
	Business      *BusinessPayload      `json:"business,omitempty"`
}

// FollowUpPayload carries the ranked alternatives; the first is the one asked.
type FollowUpPayload struct {
	Asked        []slots.Slot   `json:"asked"`
	Alternatives [][]slots.Slot `json:"alternatives"`
	InquiryTimes int            `json:"inquiryTimes"`
}

type ConfirmSlotPayload struct {
	Slot slots.Slot `json:"slot"`
}

// IntentOptionsPayload lists the intents offered for confirmation or clarification.
type IntentOptionsPayload struct {
	Options []models.Intent `json:"options"`
}

type JumpOutPayload struct {
	Reason     string                 `json:"reason"`
	HandoffID  string                 `json:"handoffId,omitempty"`
	Deliveries []models.HandoffResult `json:"deliveries,omitempty"`
}

type BusinessPayload struct {
	Intent string            `json:"intent"`
	Action string            `json:"action"`
	Slots  map[string]string `json:"slots"`
}

// Terminal reports whether the response closes the current intent episode.
// A hand-off counts; a chit-chat reply does not.
func (r *Response) Terminal() bool {
	switch r.Kind {
	case KindEnd, KindBusiness, KindJumpOut:
		return true
	}
	return false
}
