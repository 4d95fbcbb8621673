package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	awsclients "dialog-manager/internal/common/aws"
	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/models"
)

// HandoffNotifier tells human agents a conversation needs them.
type HandoffNotifier interface {
	Notify(ctx context.Context, h *models.Handoff) ([]models.HandoffResult, error)
}

// SNSNotifier publishes the hand-off as JSON to a topic.
type SNSNotifier struct {
	client   awsclients.SNSService
	topicARN string
}

func NewSNSNotifier(client awsclients.SNSService, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, h *models.Handoff) ([]models.HandoffResult, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return nil, apperrors.NewHandoffFailedError("sns", err)
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("Conversation hand-off"),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return []models.HandoffResult{{Channel: "sns", Status: "failed", Error: err.Error()}},
			apperrors.NewHandoffFailedError("sns", err)
	}
	return []models.HandoffResult{{Channel: "sns", Status: "sent", MessageID: aws.ToString(out.MessageId)}}, nil
}

// SESNotifier emails a transcript to the support inbox.
type SESNotifier struct {
	client awsclients.SESService
	from   string
	to     string
}

func NewSESNotifier(client awsclients.SESService, from, to string) *SESNotifier {
	return &SESNotifier{client: client, from: from, to: to}
}

func (n *SESNotifier) Notify(ctx context.Context, h *models.Handoff) ([]models.HandoffResult, error) {
	subject := fmt.Sprintf("Conversation %s needs an agent", h.SessionID)
	out, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{n.to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(transcript(h))},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return []models.HandoffResult{{Channel: "ses", Status: "failed", Error: err.Error()}},
			apperrors.NewHandoffFailedError("ses", err)
	}
	return []models.HandoffResult{{Channel: "ses", Status: "sent", MessageID: aws.ToString(out.MessageId)}}, nil
}

func transcript(h *models.Handoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nReason: %s\n", h.SessionID, h.Reason)
	if h.Intent != "" {
		fmt.Fprintf(&b, "Intent: %s\n", h.Intent)
	}
	if len(h.Entities) > 0 {
		b.WriteString("\nCollected:\n")
		for _, e := range h.Entities {
			fmt.Fprintf(&b, "  %s = %s\n", e.SlotName(), e.Value)
		}
	}
	b.WriteString("\nTranscript:\n")
	for _, entry := range h.History {
		fmt.Fprintf(&b, "  [%s] %s\n", entry.Role, entry.Content)
	}
	fmt.Fprintf(&b, "  [%s] %s\n", models.RoleUser, h.Utterance)
	return b.String()
}

// MultiNotifier fans a hand-off out to every channel. Each channel is
// attempted; the first error is returned alongside all results.
type MultiNotifier []HandoffNotifier

func (m MultiNotifier) Notify(ctx context.Context, h *models.Handoff) ([]models.HandoffResult, error) {
	var (
		results  []models.HandoffResult
		firstErr error
	)
	for _, n := range m {
		res, err := n.Notify(ctx, h)
		results = append(results, res...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}

// JumpOutAction hands the conversation to a human. Notification is best
// effort: a failed channel is reported in the payload, never to the user.
type JumpOutAction struct {
	notifier HandoffNotifier
	logger   Logger
	now      func() time.Time
}

func NewJumpOutAction(notifier HandoffNotifier, log Logger) *JumpOutAction {
	return &JumpOutAction{notifier: notifier, logger: log, now: time.Now}
}

func (a *JumpOutAction) Name() string { return JumpOut }

func (a *JumpOutAction) Run(ctx context.Context, in *Input) (*Response, error) {
	conv := in.Conversation
	h := &models.Handoff{
		ID:        uuid.New().String(),
		SessionID: conv.SessionID,
		Reason:    in.Directive.Reason,
		Utterance: conv.CurrentUserInput,
		History:   conv.History.Last(0),
		Entities:  conv.Entities,
		CreatedAt: a.now().UTC().Format(time.RFC3339),
	}
	if conv.CurrentIntent != nil {
		h.Intent = conv.CurrentIntent.Name
	}

	payload := &JumpOutPayload{Reason: h.Reason, HandoffID: h.ID}
	if a.notifier != nil {
		results, err := a.notifier.Notify(ctx, h)
		payload.Deliveries = results
		if err != nil {
			a.logger.Warn("hand-off notification failed", map[string]interface{}{
				"sessionId": conv.SessionID,
				"handoffId": h.ID,
				"error":     err.Error(),
			})
		} else {
			a.logger.Info("hand-off sent", map[string]interface{}{
				"sessionId": conv.SessionID,
				"handoffId": h.ID,
				"channels":  len(results),
			})
		}
	}

	return &Response{Kind: KindJumpOut, Text: defaultJumpOutText, JumpOut: payload}, nil
}
