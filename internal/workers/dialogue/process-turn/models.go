// internal/workers/dialogue/process-turn/models.go
package processturn

import "dialog-manager/internal/action"

type Input struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type Output struct {
	SessionID string           `json:"sessionId"`
	Response  *action.Response `json:"response"`
	Intent    string           `json:"intent,omitempty"`
	Policy    string           `json:"policy,omitempty"`
	Action    string           `json:"action,omitempty"`
	Terminal  bool             `json:"terminal"`
}

const inputSchema = `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"sessionId": {"type": "string"},
		"message": {"type": "string", "minLength": 1}
	}
}`
