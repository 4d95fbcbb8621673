package policy

import (
	"context"

	"dialog-manager/internal/action"
	"dialog-manager/internal/common/metrics"
	"dialog-manager/internal/conversation"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/models"
	"dialog-manager/internal/slots"
)

// EndDialoguePolicy terminates the turn once the follow-up budget is spent,
// whatever the intent state.
type EndDialoguePolicy struct {
	maxFollowUps int
}

func NewEndDialoguePolicy(opts Options) *EndDialoguePolicy {
	return &EndDialoguePolicy{maxFollowUps: opts.MaxFollowUpTimes}
}

func (p *EndDialoguePolicy) Name() string { return NameEndDialogue }

func (p *EndDialoguePolicy) Handle(_ context.Context, conv *conversation.Context) (Result, error) {
	if conv.InquiryTimes >= p.maxFollowUps {
		return handled(action.Directive{Action: action.EndDialogue, Reason: "follow_up_budget_exhausted"})
	}
	return pass()
}

// JumpOutPolicy leaves the task flow when there is nothing to fill: no
// intent, an out-of-scope intent, or chit-chat with no earlier business
// intent to return to.
type JumpOutPolicy struct {
	classes Classes
}

func NewJumpOutPolicy(opts Options) *JumpOutPolicy {
	return &JumpOutPolicy{classes: NewClasses(opts)}
}

func (p *JumpOutPolicy) Name() string { return NameJumpOut }

func (p *JumpOutPolicy) Handle(_ context.Context, conv *conversation.Context) (Result, error) {
	if conv.IsConfused() {
		return pass()
	}

	current := conv.CurrentIntent
	switch {
	case current == nil:
		return handled(action.Directive{Action: action.JumpOut, Reason: "no_intent"})

	case p.classes.IsOutOfScope(current.Name):
		return handled(action.Directive{Action: action.JumpOut, Intent: current.Clone(), Reason: "out_of_scope"})

	case p.classes.IsChitchat(current.Name):
		if recovered := p.lastBusinessIntent(conv.IntentQueue); recovered != nil {
			conv.CurrentIntent = recovered
			conv.ResolutionState = conversation.StateResolvedLeaf
			return pass()
		}
		return handled(action.Directive{Action: action.Chitchat, Intent: current.Clone(), Reason: "chitchat"})
	}
	return pass()
}

func (p *JumpOutPolicy) lastBusinessIntent(queue []models.Intent) *models.Intent {
	for i := len(queue) - 1; i >= 0; i-- {
		if p.classes.IsBusiness(queue[i].Name) {
			return queue[i].Clone()
		}
	}
	return nil
}

// IntentFillingPolicy keeps slot filling from running on an uncertain
// intent: it asks the user to pick between confused candidates, or to
// confirm a low-confidence business intent.
type IntentFillingPolicy struct {
	classes   Classes
	threshold float64
}

func NewIntentFillingPolicy(opts Options) *IntentFillingPolicy {
	return &IntentFillingPolicy{classes: NewClasses(opts), threshold: opts.IntentConfirmThreshold}
}

func (p *IntentFillingPolicy) Name() string { return NameIntentFilling }

func (p *IntentFillingPolicy) Handle(_ context.Context, conv *conversation.Context) (Result, error) {
	if conv.IsConfused() {
		if len(conv.ConfusedIntents) == 1 {
			only := conv.ConfusedIntents[0]
			return handled(action.Directive{Action: action.ConfirmIntent, Intent: only.Clone()})
		}
		return handled(action.Directive{
			Action:  action.ClarifyIntent,
			Options: append([]models.Intent(nil), conv.ConfusedIntents...),
		})
	}

	current := conv.CurrentIntent
	if current == nil {
		return handled(action.Directive{Action: action.ClarifyIntent, Reason: "no_intent"})
	}
	if p.classes.IsBusiness(current.Name) && current.ConfidenceOr(1) < p.threshold {
		conv.SetConfused([]models.Intent{*current.Clone()})
		return handled(action.Directive{Action: action.ConfirmIntent, Intent: current.Clone()})
	}
	return pass()
}

// SlotFillingPolicy asks for missing slots while the follow-up budget lasts,
// then confirms a low-confidence slot once the form is satisfied.
type SlotFillingPolicy struct {
	forms        forms.Store
	maxFollowUps int
	threshold    float64
}

func NewSlotFillingPolicy(store forms.Store, opts Options) *SlotFillingPolicy {
	return &SlotFillingPolicy{forms: store, maxFollowUps: opts.MaxFollowUpTimes, threshold: opts.SlotConfirmThreshold}
}

func (p *SlotFillingPolicy) Name() string { return NameSlotFilling }

func (p *SlotFillingPolicy) Handle(ctx context.Context, conv *conversation.Context) (Result, error) {
	if conv.CurrentIntent == nil {
		return pass()
	}
	form, err := p.forms.GetFormFromIntent(ctx, conv.CurrentIntent.Name)
	if err != nil {
		return Result{}, err
	}
	if form == nil {
		return pass()
	}

	checker, err := forms.NewSlotChecker(form, conv.FilledSlotNames())
	if err != nil {
		return Result{}, err
	}

	if checker.SlotIsMissing() {
		if conv.InquiryTimes >= p.maxFollowUps {
			return handled(action.Directive{Action: action.EndDialogue, Reason: "follow_up_budget_exhausted"})
		}
		conv.IncrementInquiry()
		metrics.FollowUps.Inc()
		return handled(action.Directive{
			Action:       action.FollowUp,
			Intent:       conv.CurrentIntent.Clone(),
			MissingSlots: checker.MissedSlots(),
		})
	}

	if slot := p.slotToConfirm(form, conv); slot != nil {
		conv.MarkSlotConfirmed(slot.Name)
		return handled(action.Directive{Action: action.ConfirmSlot, Intent: conv.CurrentIntent.Clone(), Slot: slot})
	}
	return pass()
}

// slotToConfirm picks the filled form slot with the lowest confidence under
// the threshold that was not confirmed yet. Ties keep form order.
func (p *SlotFillingPolicy) slotToConfirm(form *forms.Form, conv *conversation.Context) *slots.Slot {
	var (
		best     *slots.Slot
		bestConf float64
	)
	for _, s := range form.Slots {
		e, ok := conv.EntityFor(s.Name)
		if !ok || e.Confidence == nil || *e.Confidence >= p.threshold || conv.IsSlotConfirmed(s.Name) {
			continue
		}
		if best == nil || *e.Confidence < bestConf {
			filled := s.WithValue(e.Value, e.Confidence)
			best, bestConf = &filled, *e.Confidence
		}
	}
	return best
}

// AssistantPolicy dispatches the business action bound to the intent's form.
type AssistantPolicy struct {
	forms forms.Store
}

func NewAssistantPolicy(store forms.Store) *AssistantPolicy {
	return &AssistantPolicy{forms: store}
}

func (p *AssistantPolicy) Name() string { return NameAssistant }

func (p *AssistantPolicy) Handle(ctx context.Context, conv *conversation.Context) (Result, error) {
	if conv.CurrentIntent == nil {
		return handled(action.Directive{Action: action.Fallback, Reason: "no_intent"})
	}
	form, err := p.forms.GetFormFromIntent(ctx, conv.CurrentIntent.Name)
	if err != nil {
		return Result{}, err
	}
	if form == nil {
		return handled(action.Directive{Action: action.Fallback, Intent: conv.CurrentIntent.Clone(), Reason: "no_form"})
	}
	return handled(action.Directive{Action: form.Action, Intent: conv.CurrentIntent.Clone()})
}

// NewDefaultChain wires the five policies in priority order.
func NewDefaultChain(store forms.Store, opts Options, log Logger) *Chain {
	return NewChain(log,
		NewEndDialoguePolicy(opts),
		NewJumpOutPolicy(opts),
		NewIntentFillingPolicy(opts),
		NewSlotFillingPolicy(store, opts),
		NewAssistantPolicy(store),
	)
}
