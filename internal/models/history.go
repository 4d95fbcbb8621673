package models

import "time"

// Role of a history entry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one utterance kept in the conversation window.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
