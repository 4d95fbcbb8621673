// Package dialogue runs one user turn end to end: lock and load the session,
// resolve the intent, extract entities, let the policy chain pick an action,
// run it and commit the updated context.
package dialogue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"dialog-manager/internal/action"
	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/common/metrics"
	"dialog-manager/internal/conversation"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/intent"
	"dialog-manager/internal/models"
	"dialog-manager/internal/policy"
)

// Extractor pulls slot values for form out of the user's message.
type Extractor interface {
	Extract(ctx context.Context, utterance string, form *forms.Form, history []models.HistoryEntry) ([]models.Entity, error)
}

// Telemetry is the tracing and otel metering the engine reports to.
type Telemetry interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	RecordTurn(ctx context.Context, kind string, duration time.Duration)
}

// Turn is one user message.
type Turn struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// Result is what the host gets back for a turn.
type Result struct {
	SessionID string           `json:"sessionId"`
	Response  *action.Response `json:"response"`
	Intent    *models.Intent   `json:"intent,omitempty"`
	Policy    string           `json:"policy,omitempty"`
	Action    string           `json:"action,omitempty"`
}

type Options struct {
	TurnTimeout  time.Duration
	HistoryTurns int
}

type Engine struct {
	tracker   conversation.Tracker
	resolver  *intent.Resolver
	extractor Extractor
	forms     forms.Store
	chain     *policy.Chain
	classes   policy.Classes
	actions   *action.Registry
	telemetry Telemetry
	opts      Options
	logger    logger.Logger
}

// Deps groups the collaborators of an Engine. Extractor and Telemetry are
// optional. Classes should match the chain's so chit-chat asides are
// recognised.
type Deps struct {
	Tracker   conversation.Tracker
	Resolver  *intent.Resolver
	Extractor Extractor
	Forms     forms.Store
	Chain     *policy.Chain
	Classes   policy.Classes
	Actions   *action.Registry
	Telemetry Telemetry
	Logger    logger.Logger
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Engine{
		tracker:   deps.Tracker,
		resolver:  deps.Resolver,
		extractor: deps.Extractor,
		forms:     deps.Forms,
		chain:     deps.Chain,
		classes:   deps.Classes,
		actions:   deps.Actions,
		telemetry: deps.Telemetry,
		opts:      opts,
		logger:    log,
	}
}

// Process runs one turn. The context is decided on a private copy and saved
// only once the response is known; a failure anywhere before that leaves the
// stored session untouched and answers with the fallback reply. The returned
// error is set only when the turn could not be committed, so the caller may
// retry it; Result is never nil.
func (e *Engine) Process(ctx context.Context, turn Turn) (*Result, error) {
	start := time.Now()
	if turn.SessionID == "" {
		turn.SessionID = uuid.NewString()
	}
	if e.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TurnTimeout)
		defer cancel()
	}

	log := logger.WithSession(e.logger, turn.SessionID)
	ctx, span := e.startSpan(ctx, "dialogue.turn", attribute.String("session.id", turn.SessionID))
	defer span.End()

	res, err := e.process(ctx, turn, log)
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Error("Turn failed, answering with fallback", map[string]interface{}{
			"errorCode": string(apperrors.Normalize(err).Code),
		})
		res = &Result{SessionID: turn.SessionID, Response: action.FallbackResponse(), Action: action.Fallback}
	}

	kind := string(res.Response.Kind)
	elapsed := time.Since(start)
	metrics.DialogueTurns.WithLabelValues(kind).Inc()
	metrics.DialogueTurnDuration.Observe(elapsed.Seconds())
	if e.telemetry != nil {
		e.telemetry.RecordTurn(ctx, kind, elapsed)
	}
	return res, err
}

func (e *Engine) process(ctx context.Context, turn Turn, log logger.Logger) (*Result, error) {
	unlock, err := e.tracker.Lock(ctx, turn.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stored, err := e.tracker.Load(ctx, turn.SessionID)
	if err != nil {
		return nil, err
	}
	conv := stored.Clone()
	conv.CurrentUserInput = turn.Message

	if err := e.resolve(ctx, conv, log); err != nil {
		return nil, err
	}

	form, err := e.currentForm(ctx, conv)
	if err != nil {
		return nil, err
	}
	e.extract(ctx, conv, form, log)

	directive, err := e.chain.Decide(ctx, conv)
	if err != nil {
		return nil, err
	}

	// Slot filling may have moved to a recovered intent.
	if form == nil || conv.CurrentIntent == nil || form.Intent != conv.CurrentIntent.Name {
		if form, err = e.currentForm(ctx, conv); err != nil {
			return nil, err
		}
	}

	act, err := e.actions.Get(directive.Action)
	if err != nil {
		return nil, err
	}
	actCtx, span := e.startSpan(ctx, "dialogue.action", attribute.String("action", directive.Action))
	resp, err := act.Run(actCtx, &action.Input{Conversation: conv, Form: form, Directive: *directive})
	span.End()
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID: conv.SessionID,
		Response:  resp,
		Intent:    conv.CurrentIntent.Clone(),
		Policy:    directive.Policy,
		Action:    directive.Action,
	}

	if resp.Terminal() {
		conv.CloseEpisode()
	}
	conv.AddHistory(models.RoleUser, turn.Message)
	conv.AddHistory(models.RoleAssistant, resp.Text)
	conv.Touch(time.Now())

	if err := e.tracker.Save(ctx, conv); err != nil {
		return nil, err
	}

	log.Info("Turn processed", map[string]interface{}{
		"policy": directive.Policy,
		"action": directive.Action,
		"kind":   string(resp.Kind),
	})
	return res, nil
}

// resolve runs intent resolution and applies its outcome to conv.
func (e *Engine) resolve(ctx context.Context, conv *conversation.Context, log logger.Logger) error {
	ctx, span := e.startSpan(ctx, "dialogue.resolve")
	defer span.End()

	out, err := e.resolver.Resolve(ctx, conv)
	if err != nil {
		return err
	}
	metrics.IntentOutcomes.WithLabelValues(outcomeLabel(out)).Inc()

	switch {
	case len(out.Confused) > 0:
		conv.SetConfused(out.Confused)
	case out.Intent != nil:
		// A chit-chat aside keeps the running episode and its follow-up
		// budget; JumpOut resumes the business intent from the queue.
		if out.NewEpisode && !e.classes.IsChitchat(out.Intent.Name) {
			conv.ResetEpisode()
		}
		conv.ClearConfusion()
		conv.CurrentIntent = out.Intent.Clone()
		conv.ResolutionState = conversation.StateResolvedLeaf
		if !out.Reused {
			conv.PushIntent(out.Intent)
		}
	default:
		conv.ClearConfusion()
		conv.CurrentIntent = nil
		conv.ResolutionState = conversation.StateUnresolved
	}

	log.Debug("Intent resolved", map[string]interface{}{
		"state":      string(conv.ResolutionState),
		"intent":     intentName(conv.CurrentIntent),
		"reused":     out.Reused,
		"newEpisode": out.NewEpisode,
	})
	return nil
}

func (e *Engine) currentForm(ctx context.Context, conv *conversation.Context) (*forms.Form, error) {
	if conv.CurrentIntent == nil {
		return nil, nil
	}
	return e.forms.GetFormFromIntent(ctx, conv.CurrentIntent.Name)
}

// extract merges the entities found in the message. Extraction is best
// effort: a failed call leaves the filled slots as they were.
func (e *Engine) extract(ctx context.Context, conv *conversation.Context, form *forms.Form, log logger.Logger) {
	if e.extractor == nil || form == nil || conv.IsConfused() {
		return
	}
	ctx, span := e.startSpan(ctx, "dialogue.extract")
	defer span.End()

	entities, err := e.extractor.Extract(ctx, conv.CurrentUserInput, form, conv.History.Last(e.opts.HistoryTurns))
	if err != nil {
		span.RecordError(err)
		log.Warn("Entity extraction failed", map[string]interface{}{"error": err.Error()})
		return
	}
	conv.MergeEntities(entities)
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if e.telemetry == nil {
		return ctx, noop.Span{}
	}
	return e.telemetry.StartSpan(ctx, name, attrs...)
}

func outcomeLabel(out *intent.Outcome) string {
	switch {
	case len(out.Confused) > 0:
		return "confused"
	case out.Reused:
		return "reused"
	case out.Intent != nil:
		return "resolved"
	default:
		return "not_found"
	}
}

func intentName(in *models.Intent) string {
	if in == nil {
		return ""
	}
	return in.Name
}
