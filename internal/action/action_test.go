package action

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/conversation"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/models"
	"dialog-manager/internal/slots"
)

// ==========================
// Mock AWS Services
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

type stubResponder struct {
	text string
	err  error
}

func (s stubResponder) Reply(context.Context, string, []models.HistoryEntry) (string, error) {
	return s.text, s.err
}

// ==========================
// Helpers
// ==========================

func newInput(directive Directive) *Input {
	conv := conversation.New("sess-1", 10, 10)
	conv.CurrentUserInput = "hello"
	return &Input{Conversation: conv, Directive: directive}
}

func testRegistry(t *testing.T, responder Responder, notifier HandoffNotifier) *Registry {
	r := NewRegistry()
	RegisterBuiltins(r, responder, notifier, logger.NewTestLogger(t))
	return r
}

func run(t *testing.T, r *Registry, in *Input) *Response {
	a, err := r.Get(in.Directive.Action)
	require.NoError(t, err)
	resp, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	return resp
}

// ==========================
// Registry
// ==========================

func TestRegistry(t *testing.T) {
	r := testRegistry(t, nil, nil)

	assert.ElementsMatch(t, []string{
		FollowUp, ConfirmSlot, ConfirmIntent, ClarifyIntent, EndDialogue, JumpOut, Chitchat, Fallback,
	}, r.Names())

	_, err := r.Get("launch_rockets")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeActionNotFound))

	assert.Error(t, r.Register(&textAction{name: Fallback}))
	assert.NoError(t, r.Register(NewFormSummaryAction("echo_form")))
	assert.True(t, r.Has("echo_form"))
}

// ==========================
// Built-ins
// ==========================

func TestFollowUp_AsksCheapestAlternative(t *testing.T) {
	r := testRegistry(t, nil, nil)
	in := newInput(Directive{
		Action: FollowUp,
		MissingSlots: [][]slots.Slot{
			{{Name: "order_id"}, {Name: "reason", Options: []string{"damaged", "late"}}},
			{{Name: "receipt_photo"}, {Name: "email"}, {Name: "phone"}},
		},
	})
	in.Conversation.InquiryTimes = 1

	resp := run(t, r, in)
	assert.Equal(t, KindFollowUp, resp.Kind)
	assert.Equal(t, "Could you tell me order id and reason (damaged or late)?", resp.Text)
	require.NotNil(t, resp.FollowUp)
	assert.Len(t, resp.FollowUp.Asked, 2)
	assert.Len(t, resp.FollowUp.Alternatives, 2)
	assert.Equal(t, 1, resp.FollowUp.InquiryTimes)
}

func TestConfirmAndClarify(t *testing.T) {
	r := testRegistry(t, nil, nil)

	slot := slots.Slot{Name: "amount", Description: "refund amount"}.WithValue("40", nil)
	resp := run(t, r, newInput(Directive{Action: ConfirmSlot, Slot: &slot}))
	assert.Equal(t, KindConfirmSlot, resp.Kind)
	assert.Equal(t, `Just to confirm, your refund amount is "40"?`, resp.Text)

	resp = run(t, r, newInput(Directive{Action: ConfirmIntent, Intent: models.NewIntent("root.billing.refund", 0.5)}))
	assert.Equal(t, "Do you need help with refund?", resp.Text)
	require.NotNil(t, resp.IntentOptions)
	assert.Len(t, resp.IntentOptions.Options, 1)

	resp = run(t, r, newInput(Directive{Action: ClarifyIntent, Options: []models.Intent{
		{Name: "root.shipping"},
		{Name: "root.billing", Description: "a billing question"},
	}}))
	assert.Equal(t, KindClarifyIntent, resp.Kind)
	assert.Equal(t, "Did you mean shipping or a billing question?", resp.Text)

	a, _ := r.Get(ConfirmSlot)
	_, err := a.Run(context.Background(), newInput(Directive{Action: ConfirmSlot}))
	assert.Error(t, err)
}

func TestChitchat(t *testing.T) {
	resp := run(t, testRegistry(t, stubResponder{text: " Hi! How can I help? "}, nil), newInput(Directive{Action: Chitchat}))
	assert.Equal(t, KindChitchat, resp.Kind)
	assert.Equal(t, "Hi! How can I help?", resp.Text)

	resp = run(t, testRegistry(t, stubResponder{err: errors.New("llm down")}, nil), newInput(Directive{Action: Chitchat}))
	assert.Equal(t, defaultChitchatText, resp.Text)
}

func TestFormSummaryAction(t *testing.T) {
	in := newInput(Directive{Action: "echo_form"})
	in.Form = &forms.Form{
		Intent: "root.billing.refund",
		Action: "echo_form",
		Slots:  []slots.Slot{{Name: "order_id"}, {Name: "reason"}, {Name: "notes"}},
	}
	in.Conversation.MergeEntities([]models.Entity{
		{Type: "order_id", Value: "42"},
		{Type: "reason", Value: "damaged"},
		{Type: "unrelated", Value: "x"},
	})

	resp, err := NewFormSummaryAction("echo_form").Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, KindBusiness, resp.Kind)
	assert.True(t, resp.Terminal())
	assert.Equal(t, map[string]string{"order_id": "42", "reason": "damaged"}, resp.Business.Slots)
	assert.Equal(t, "Thanks, I have everything I need: order id: 42, reason: damaged.", resp.Text)
}

func TestResponse_Terminal(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindBusiness, true},
		{KindEnd, true},
		{KindJumpOut, true},
		{KindChitchat, false},
		{KindFollowUp, false},
		{KindConfirmSlot, false},
		{KindConfirmIntent, false},
		{KindClarifyIntent, false},
		{KindFallback, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, (&Response{Kind: tt.kind}).Terminal())
		})
	}
}

// ==========================
// Hand-off
// ==========================

func TestJumpOut_NotifiesAllChannels(t *testing.T) {
	var published, mailed bool
	notifier := MultiNotifier{
		NewSNSNotifier(&MockSNSService{
			PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
				published = true
				assert.Equal(t, "arn:aws:sns:eu-west-1:1:handoff", *params.TopicArn)
				assert.Contains(t, *params.Message, `"sessionId":"sess-1"`)
				return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
			},
		}, "arn:aws:sns:eu-west-1:1:handoff"),
		NewSESNotifier(&MockSESService{
			SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
				mailed = true
				assert.Equal(t, "support@example.com", params.Destination.ToAddresses[0])
				assert.Contains(t, *params.Message.Body.Text.Data, "[user] hello")
				return &ses.SendEmailOutput{MessageId: aws.String("e-1")}, nil
			},
		}, "bot@example.com", "support@example.com"),
	}

	resp := run(t, testRegistry(t, nil, notifier), newInput(Directive{Action: JumpOut, Reason: "out_of_scope"}))
	assert.Equal(t, KindJumpOut, resp.Kind)
	assert.True(t, resp.Terminal())
	assert.True(t, published)
	assert.True(t, mailed)
	require.NotNil(t, resp.JumpOut)
	assert.Equal(t, "out_of_scope", resp.JumpOut.Reason)
	assert.NotEmpty(t, resp.JumpOut.HandoffID)
	assert.Equal(t, []models.HandoffResult{
		{Channel: "sns", Status: "sent", MessageID: "m-1"},
		{Channel: "ses", Status: "sent", MessageID: "e-1"},
	}, resp.JumpOut.Deliveries)
}

func TestJumpOut_FailureIsNotSurfaced(t *testing.T) {
	notifier := MultiNotifier{
		NewSNSNotifier(&MockSNSService{
			PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
				return nil, errors.New("throttled")
			},
		}, "arn"),
	}

	resp := run(t, testRegistry(t, nil, notifier), newInput(Directive{Action: JumpOut, Reason: "no_intent"}))
	assert.Equal(t, KindJumpOut, resp.Kind)
	assert.Equal(t, defaultJumpOutText, resp.Text)
	require.Len(t, resp.JumpOut.Deliveries, 1)
	assert.Equal(t, "failed", resp.JumpOut.Deliveries[0].Status)
}
