package intent

import (
	"context"

	"dialog-manager/internal/models"
)

// ClassifyRequest asks the oracle to pick one of Candidates, the enabled
// children of Parent, for Utterance.
type ClassifyRequest struct {
	Utterance  string
	Parent     string
	Candidates []models.Intent
	History    []models.HistoryEntry
}

// Classification is the oracle's pick. An empty Intent means none fits.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Oracle is the language model behind intent resolution.
type Oracle interface {
	Classify(ctx context.Context, req ClassifyRequest) (*Classification, error)
	// ConfirmCheck returns the option the user's reply selects, or "" when
	// the reply picks none of them.
	ConfirmCheck(ctx context.Context, utterance string, options []models.Intent, history []models.HistoryEntry) (string, error)
	// SameTopic reports whether utterance continues the previous intent.
	SameTopic(ctx context.Context, utterance string, previous models.Intent, history []models.HistoryEntry) (bool, error)
}
