// internal/models/notification.go
package models

// Handoff is sent to the human agent channel when a conversation jumps out.
type Handoff struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Reason    string         `json:"reason"`
	Intent    string         `json:"intent,omitempty"`
	Utterance string         `json:"utterance"`
	History   []HistoryEntry `json:"history,omitempty"`
	Entities  []Entity       `json:"entities,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

// HandoffResult records the delivery on one channel.
type HandoffResult struct {
	Channel   string `json:"channel"` // "sns", "ses"
	Status    string `json:"status"`  // "sent", "failed", "disabled"
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}
