// Package conversation holds the per-session dialogue state and the trackers
// that persist it between turns.
package conversation

import (
	"time"

	"dialog-manager/internal/models"
)

// ResolutionState is the position of the intent resolution state machine.
type ResolutionState string

const (
	StateUnresolved     ResolutionState = "unresolved"
	StateResolvingLayer ResolutionState = "resolving_layer"
	StateConfused       ResolutionState = "confused_pending_confirmation"
	StateResolvedLeaf   ResolutionState = "resolved_leaf"
)

// Context is the mutable state of one session. It is owned by a single turn
// at a time; trackers hand out copies.
type Context struct {
	SessionID        string            `json:"sessionId"`
	CurrentUserInput string            `json:"currentUserInput"`
	CurrentIntent    *models.Intent    `json:"currentIntent,omitempty"`
	IntentQueue      []models.Intent   `json:"intentQueue"`
	IntentQueueSize  int               `json:"intentQueueSize"`
	History          History           `json:"history"`
	Entities         []models.Entity   `json:"entities"`
	InquiryTimes     int               `json:"inquiryTimes"`
	ConfusedIntents  []models.Intent   `json:"confusedIntents,omitempty"`
	ConfirmedSlots   []string          `json:"confirmedSlots,omitempty"`
	ResolutionState  ResolutionState   `json:"resolutionState"`
	State            string            `json:"state,omitempty"`
	Status           string            `json:"status,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// New creates the context for a first message.
func New(sessionID string, historySize, intentQueueSize int) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID:       sessionID,
		IntentQueueSize: intentQueueSize,
		History:         NewHistory(historySize),
		ResolutionState: StateUnresolved,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone deep-copies the context so a turn can decide on a private copy.
func (c *Context) Clone() *Context {
	out := *c
	out.CurrentIntent = c.CurrentIntent.Clone()
	out.IntentQueue = cloneIntents(c.IntentQueue)
	out.ConfusedIntents = cloneIntents(c.ConfusedIntents)
	out.History = c.History.clone()
	out.ConfirmedSlots = append([]string(nil), c.ConfirmedSlots...)
	if c.Entities != nil {
		out.Entities = make([]models.Entity, len(c.Entities))
		for i, e := range c.Entities {
			out.Entities[i] = e.Clone()
		}
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func cloneIntents(in []models.Intent) []models.Intent {
	if in == nil {
		return nil
	}
	out := make([]models.Intent, len(in))
	for i := range in {
		out[i] = *in[i].Clone()
	}
	return out
}

func (c *Context) AddHistory(role, content string) {
	c.History.Add(role, content, time.Now().UTC())
}

// MergeEntities folds newly extracted entities in, last write wins per slot.
func (c *Context) MergeEntities(incoming []models.Entity) {
	c.Entities = models.MergeEntities(c.Entities, incoming)
}

// FilledSlotNames lists the slots that currently hold a value.
func (c *Context) FilledSlotNames() []string {
	names := make([]string, 0, len(c.Entities))
	for _, e := range c.Entities {
		names = append(names, e.SlotName())
	}
	return names
}

func (c *Context) EntityFor(slot string) (models.Entity, bool) {
	for _, e := range c.Entities {
		if e.SlotName() == slot {
			return e, true
		}
	}
	return models.Entity{}, false
}

// PushIntent records a resolved intent, evicting the oldest beyond IntentQueueSize.
func (c *Context) PushIntent(intent *models.Intent) {
	if intent == nil {
		return
	}
	c.IntentQueue = append(c.IntentQueue, *intent.Clone())
	if c.IntentQueueSize > 0 && len(c.IntentQueue) > c.IntentQueueSize {
		c.IntentQueue = append(c.IntentQueue[:0:0], c.IntentQueue[len(c.IntentQueue)-c.IntentQueueSize:]...)
	}
}

// SetConfused parks the candidates until the user picks one.
func (c *Context) SetConfused(candidates []models.Intent) {
	c.ConfusedIntents = cloneIntents(candidates)
	c.ResolutionState = StateConfused
}

func (c *Context) IsConfused() bool {
	return c.ResolutionState == StateConfused && len(c.ConfusedIntents) > 0
}

// ClearConfusion leaves the confused state.
func (c *Context) ClearConfusion() {
	c.ConfusedIntents = nil
	if c.ResolutionState == StateConfused {
		c.ResolutionState = StateUnresolved
	}
}

// ResetEpisode starts a new intent episode: the follow-up budget, pending
// confusion and slot confirmations are scoped to one episode.
func (c *Context) ResetEpisode() {
	c.InquiryTimes = 0
	c.ConfusedIntents = nil
	c.ConfirmedSlots = nil
}

// CloseEpisode ends the current intent once its action ran or the dialogue
// was terminated. The next message is classified from the root and earlier
// intents can no longer be recovered. Collected entities are kept.
func (c *Context) CloseEpisode() {
	c.ResetEpisode()
	c.CurrentIntent = nil
	c.IntentQueue = nil
	c.ResolutionState = StateUnresolved
}

func (c *Context) IncrementInquiry() {
	c.InquiryTimes++
}

func (c *Context) IsSlotConfirmed(slot string) bool {
	for _, s := range c.ConfirmedSlots {
		if s == slot {
			return true
		}
	}
	return false
}

func (c *Context) MarkSlotConfirmed(slot string) {
	if !c.IsSlotConfirmed(slot) {
		c.ConfirmedSlots = append(c.ConfirmedSlots, slot)
	}
}

// Touch stamps the last activity used for inactivity eviction.
func (c *Context) Touch(now time.Time) {
	c.UpdatedAt = now.UTC()
}
