package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialog-manager/internal/action"
	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/conversation"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/intent"
	"dialog-manager/internal/models"
	"dialog-manager/internal/policy"
	"dialog-manager/internal/slots"
)

// ==========================
// Stubs
// ==========================

type classified struct {
	intent     string
	confidence float64
}

// scriptedOracle answers by utterance. Classify returns the scripted leaf for
// every layer; the resolver maps it to the child on the way.
type scriptedOracle struct {
	classify map[string]classified
	confirm  map[string]string
	same     map[string]bool
	err      error
}

func (o *scriptedOracle) Classify(_ context.Context, req intent.ClassifyRequest) (*intent.Classification, error) {
	if o.err != nil {
		return nil, o.err
	}
	c := o.classify[req.Utterance]
	return &intent.Classification{Intent: c.intent, Confidence: c.confidence}, nil
}

func (o *scriptedOracle) ConfirmCheck(_ context.Context, utterance string, _ []models.Intent, _ []models.HistoryEntry) (string, error) {
	return o.confirm[utterance], nil
}

func (o *scriptedOracle) SameTopic(_ context.Context, utterance string, _ models.Intent, _ []models.HistoryEntry) (bool, error) {
	return o.same[utterance], nil
}

type scriptedExtractor map[string][]models.Entity

func (x scriptedExtractor) Extract(_ context.Context, utterance string, _ *forms.Form, _ []models.HistoryEntry) ([]models.Entity, error) {
	if utterance == "boom" {
		return nil, errors.New("extractor down")
	}
	return x[utterance], nil
}

// ==========================
// Helpers
// ==========================

type fixture struct {
	engine  *Engine
	tracker *conversation.MemoryTracker
	oracle  *scriptedOracle
}

func newFixture(t *testing.T, extractor Extractor) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)

	tree, err := intent.NewTree([]models.Intent{
		{Name: "root.billing.refund", Description: "refund an order"},
		{Name: "root.shipping.track"},
		{Name: "root.chitchat"},
		{Name: "root.out_of_scope"},
	})
	require.NoError(t, err)

	store, err := forms.NewMemoryStore([]*forms.Form{{
		Intent: "root.billing.refund",
		Action: "echo_form",
		Slots: []slots.Slot{
			{Name: "order_id", SlotType: slots.TypeText},
			{Name: "reason", SlotType: slots.TypeText},
		},
	}})
	require.NoError(t, err)

	registry := action.NewRegistry()
	action.RegisterBuiltins(registry, nil, nil, log)
	registry.MustRegister(action.NewFormSummaryAction("echo_form"))

	oracle := &scriptedOracle{
		classify: map[string]classified{},
		confirm:  map[string]string{},
		same:     map[string]bool{},
	}
	tracker := conversation.NewMemoryTracker(conversation.Options{}, log)

	opts := policy.Options{
		MaxFollowUpTimes:       3,
		SlotConfirmThreshold:   0.6,
		IntentConfirmThreshold: 0.7,
		ChitchatIntents:        []string{"root.chitchat"},
		OutOfScopeIntents:      []string{"root.out_of_scope"},
	}

	engine := NewEngine(Deps{
		Tracker:   tracker,
		Resolver:  intent.NewResolver(tree, oracle, nil, intent.Options{}, log),
		Extractor: extractor,
		Forms:     store,
		Chain:     policy.NewDefaultChain(store, opts, log),
		Classes:   policy.NewClasses(opts),
		Actions:   registry,
		Logger:    log,
	}, Options{TurnTimeout: time.Second})

	return &fixture{engine: engine, tracker: tracker, oracle: oracle}
}

func (f *fixture) say(t *testing.T, session, message string) *Result {
	t.Helper()
	res, err := f.engine.Process(context.Background(), Turn{SessionID: session, Message: message})
	require.NoError(t, err)
	require.NotNil(t, res.Response)
	return res
}

func (f *fixture) stored(t *testing.T, session string) *conversation.Context {
	t.Helper()
	conv, err := f.tracker.Load(context.Background(), session)
	require.NoError(t, err)
	return conv
}

// ==========================
// Turn flow
// ==========================

func TestEngine_FillsFormAcrossTurns(t *testing.T) {
	f := newFixture(t, scriptedExtractor{
		"order 42":        {{Type: "order_id", Value: "42"}},
		"it arrived late": {{Type: "reason", Value: "late"}},
	})
	f.oracle.classify["I want a refund"] = classified{"root.billing.refund", 0.9}
	f.oracle.same["order 42"] = true
	f.oracle.same["it arrived late"] = true

	res := f.say(t, "s1", "I want a refund")
	assert.Equal(t, action.KindFollowUp, res.Response.Kind)
	assert.Equal(t, policy.NameSlotFilling, res.Policy)
	require.NotNil(t, res.Intent)
	assert.Equal(t, "root.billing.refund", res.Intent.Name)
	assert.Equal(t, 1, f.stored(t, "s1").InquiryTimes)

	res = f.say(t, "s1", "order 42")
	assert.Equal(t, action.KindFollowUp, res.Response.Kind)
	require.NotNil(t, res.Response.FollowUp)
	assert.Equal(t, []string{"reason"}, slots.Names(res.Response.FollowUp.Asked))
	assert.Equal(t, 2, f.stored(t, "s1").InquiryTimes)

	res = f.say(t, "s1", "it arrived late")
	assert.Equal(t, action.KindBusiness, res.Response.Kind)
	assert.Equal(t, map[string]string{"order_id": "42", "reason": "late"}, res.Response.Business.Slots)

	conv := f.stored(t, "s1")
	assert.Nil(t, conv.CurrentIntent)
	assert.Equal(t, 0, conv.InquiryTimes)
	assert.Empty(t, conv.IntentQueue)
	assert.Len(t, conv.Entities, 2)
	assert.Equal(t, 6, conv.History.Len())
}

func TestEngine_LowConfidenceIntentIsConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.classify["money back?"] = classified{"root.billing.refund", 0.4}
	f.oracle.confirm["yes please"] = "root.billing.refund"

	res := f.say(t, "s2", "money back?")
	assert.Equal(t, action.KindConfirmIntent, res.Response.Kind)
	assert.True(t, f.stored(t, "s2").IsConfused())

	res = f.say(t, "s2", "yes please")
	assert.Equal(t, action.KindFollowUp, res.Response.Kind)
	assert.Equal(t, 1.0, res.Intent.ConfidenceOr(0))

	conv := f.stored(t, "s2")
	assert.False(t, conv.IsConfused())
	assert.Equal(t, conversation.StateResolvedLeaf, conv.ResolutionState)
}

func TestEngine_NoIntentJumpsOut(t *testing.T) {
	f := newFixture(t, nil)

	res := f.say(t, "s3", "asdfgh")
	assert.Equal(t, action.KindJumpOut, res.Response.Kind)
	require.NotNil(t, res.Response.JumpOut)
	assert.Equal(t, "no_intent", res.Response.JumpOut.Reason)
	assert.Nil(t, res.Intent)
}

func TestEngine_GeneratesSessionID(t *testing.T) {
	f := newFixture(t, nil)

	res := f.say(t, "", "hello")
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 2, f.stored(t, res.SessionID).History.Len())
}

func TestEngine_ExtractionFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, scriptedExtractor{})
	f.oracle.classify["boom"] = classified{"root.billing.refund", 0.9}

	res := f.say(t, "s4", "boom")
	assert.Equal(t, action.KindFollowUp, res.Response.Kind)
	assert.Empty(t, f.stored(t, "s4").Entities)
}

// ==========================
// Episodes
// ==========================

func TestEngine_FollowUpBudgetEndsDialogue(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.classify["I want a refund"] = classified{"root.billing.refund", 0.9}
	f.oracle.same["not sure"] = true

	res := f.say(t, "s7", "I want a refund")
	assert.Equal(t, action.KindFollowUp, res.Response.Kind)

	kinds := []action.Kind{}
	for i := 0; i < 3; i++ {
		kinds = append(kinds, f.say(t, "s7", "not sure").Response.Kind)
	}
	assert.Equal(t, []action.Kind{action.KindFollowUp, action.KindFollowUp, action.KindEnd}, kinds)

	conv := f.stored(t, "s7")
	assert.Nil(t, conv.CurrentIntent)
	assert.Equal(t, 0, conv.InquiryTimes)
	assert.Empty(t, conv.IntentQueue)
}

func TestEngine_ChitchatAsideKeepsFollowUpBudget(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.classify["I want a refund"] = classified{"root.billing.refund", 0.9}
	f.oracle.classify["hello"] = classified{"root.chitchat", 0.95}

	f.say(t, "s8", "I want a refund")
	assert.Equal(t, 1, f.stored(t, "s8").InquiryTimes)

	res := f.say(t, "s8", "hello")
	assert.Equal(t, action.KindFollowUp, res.Response.Kind)
	require.NotNil(t, res.Intent)
	assert.Equal(t, "root.billing.refund", res.Intent.Name)
	assert.Equal(t, 2, f.stored(t, "s8").InquiryTimes)

	res = f.say(t, "s8", "hello")
	assert.Equal(t, action.KindFollowUp, res.Response.Kind)
	assert.Equal(t, 3, f.stored(t, "s8").InquiryTimes)

	res = f.say(t, "s8", "hello")
	assert.Equal(t, action.KindEnd, res.Response.Kind)
	assert.Equal(t, policy.NameEndDialogue, res.Policy)

	conv := f.stored(t, "s8")
	assert.Nil(t, conv.CurrentIntent)
	assert.Equal(t, 0, conv.InquiryTimes)
}

func TestEngine_OutOfScopeHandOffClosesEpisode(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.classify["I want a refund"] = classified{"root.billing.refund", 0.9}
	f.oracle.classify["what's the weather"] = classified{"root.out_of_scope", 0.9}
	f.oracle.classify["hello"] = classified{"root.chitchat", 0.95}

	f.say(t, "s9", "I want a refund")

	res := f.say(t, "s9", "what's the weather")
	assert.Equal(t, action.KindJumpOut, res.Response.Kind)
	require.NotNil(t, res.Response.JumpOut)
	assert.Equal(t, "out_of_scope", res.Response.JumpOut.Reason)

	conv := f.stored(t, "s9")
	assert.Nil(t, conv.CurrentIntent)
	assert.Empty(t, conv.IntentQueue)
	assert.Equal(t, conversation.StateUnresolved, conv.ResolutionState)

	res = f.say(t, "s9", "hello")
	assert.Equal(t, action.KindChitchat, res.Response.Kind)
}

// ==========================
// Failures
// ==========================

func TestEngine_OracleFailureFallsBackWithoutCommit(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.err = apperrors.NewLLMTimeoutError(context.DeadlineExceeded)

	res, err := f.engine.Process(context.Background(), Turn{SessionID: "s5", Message: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLLMTimeout))
	require.NotNil(t, res)
	assert.Equal(t, action.KindFallback, res.Response.Kind)
	assert.Equal(t, 0, f.stored(t, "s5").History.Len())
}

func TestEngine_LockedSessionFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.opts.TurnTimeout = 20 * time.Millisecond

	unlock, err := f.tracker.Lock(context.Background(), "s6")
	require.NoError(t, err)
	defer unlock()

	res, err := f.engine.Process(context.Background(), Turn{SessionID: "s6", Message: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionLocked))
	assert.Equal(t, action.KindFallback, res.Response.Kind)
}
