package conversation

import (
	"time"

	"dialog-manager/internal/models"
)

// History is a fixed-size window of utterances; the oldest entry is evicted
// first once Size is reached.
type History struct {
	Size    int                   `json:"size"`
	Entries []models.HistoryEntry `json:"entries"`
}

func NewHistory(size int) History {
	return History{Size: size, Entries: make([]models.HistoryEntry, 0, size)}
}

func (h *History) Add(role, content string, at time.Time) {
	h.Entries = append(h.Entries, models.HistoryEntry{Role: role, Content: content, Timestamp: at})
	if h.Size > 0 && len(h.Entries) > h.Size {
		h.Entries = append(h.Entries[:0:0], h.Entries[len(h.Entries)-h.Size:]...)
	}
}

// Last returns up to n most recent entries, oldest first.
func (h History) Last(n int) []models.HistoryEntry {
	if n <= 0 || n >= len(h.Entries) {
		return append([]models.HistoryEntry(nil), h.Entries...)
	}
	return append([]models.HistoryEntry(nil), h.Entries[len(h.Entries)-n:]...)
}

func (h History) Len() int {
	return len(h.Entries)
}

func (h History) clone() History {
	return History{Size: h.Size, Entries: append([]models.HistoryEntry(nil), h.Entries...)}
}
