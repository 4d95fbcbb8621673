// Package policy decides, once per turn, which action answers the user. The
// policies run in a fixed order and the first one that handles the turn wins.
package policy

import (
	"context"

	"dialog-manager/internal/action"
	"dialog-manager/internal/common/metrics"
	"dialog-manager/internal/conversation"
	"dialog-manager/internal/models"
)

// Policy names, also used as metric labels.
const (
	NameEndDialogue   = "end_dialogue"
	NameJumpOut       = "jump_out"
	NameIntentFilling = "intent_filling"
	NameSlotFilling   = "slot_filling"
	NameAssistant     = "assistant"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

// Result of one policy. Directive is set only when Handled.
type Result struct {
	Handled   bool
	Directive *action.Directive
}

func pass() (Result, error) {
	return Result{}, nil
}

func handled(d action.Directive) (Result, error) {
	return Result{Handled: true, Directive: &d}, nil
}

// Policy examines the conversation and either handles the turn or passes.
// Policies may update conv; the caller owns committing it.
type Policy interface {
	Name() string
	Handle(ctx context.Context, conv *conversation.Context) (Result, error)
}

// Options shared by the policies.
type Options struct {
	MaxFollowUpTimes       int
	SlotConfirmThreshold   float64
	IntentConfirmThreshold float64
	BusinessIntents        []string
	ChitchatIntents        []string
	OutOfScopeIntents      []string
}

// Classes groups intents into chit-chat, out-of-scope and business. An
// entry matches the intent itself and everything below it. With no explicit
// business list, every intent that is neither chit-chat nor out of scope is
// business.
type Classes struct {
	business   []string
	chitchat   []string
	outOfScope []string
}

func NewClasses(opts Options) Classes {
	return Classes{business: opts.BusinessIntents, chitchat: opts.ChitchatIntents, outOfScope: opts.OutOfScopeIntents}
}

func (c Classes) IsChitchat(name string) bool {
	return matchesAny(name, c.chitchat)
}

func (c Classes) IsOutOfScope(name string) bool {
	return matchesAny(name, c.outOfScope)
}

func (c Classes) IsBusiness(name string) bool {
	if c.IsChitchat(name) || c.IsOutOfScope(name) {
		return false
	}
	if len(c.business) == 0 {
		return true
	}
	return matchesAny(name, c.business)
}

func matchesAny(name string, list []string) bool {
	for _, entry := range list {
		if name == entry || models.IsDescendant(name, entry) {
			return true
		}
	}
	return false
}

// Chain runs policies in order.
type Chain struct {
	policies []Policy
	logger   Logger
}

func NewChain(log Logger, policies ...Policy) *Chain {
	return &Chain{policies: policies, logger: log}
}

// Decide returns the first handled directive, or the fallback directive when
// every policy passes.
func (c *Chain) Decide(ctx context.Context, conv *conversation.Context) (*action.Directive, error) {
	for _, p := range c.policies {
		res, err := p.Handle(ctx, conv)
		if err != nil {
			return nil, err
		}
		if !res.Handled {
			continue
		}
		d := res.Directive
		d.Policy = p.Name()
		metrics.PolicyDecisions.WithLabelValues(d.Policy, d.Action).Inc()
		c.logger.Debug("policy handled turn", map[string]interface{}{
			"sessionId": conv.SessionID,
			"policy":    d.Policy,
			"action":    d.Action,
		})
		return d, nil
	}

	metrics.PolicyDecisions.WithLabelValues("none", action.Fallback).Inc()
	return &action.Directive{Action: action.Fallback, Policy: "none"}, nil
}
