package rainbow

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/chromatic/internal/timeutil"
)

// HistoryEntry records one action applied while producing a grid.
type HistoryEntry struct {
	ID        string                 `json:"id"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func newHistoryEntry(clock timeutil.Clock, action string, params map[string]interface{}) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Params:    copyParams(params),
		Timestamp: clock.Now(),
	}
}

func (h HistoryEntry) clone() HistoryEntry {
	h.Params = copyParams(h.Params)
	return h
}

func copyParams(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Actions returns the action names of a history in order.
func Actions(history []HistoryEntry) []string {
	out := make([]string, len(history))
	for i, h := range history {
		out[i] = h.Action
	}
	return out
}

// HasAction reports whether any entry in history used the named action.
func HasAction(history []HistoryEntry, action string) bool {
	for _, h := range history {
		if h.Action == action {
			return true
		}
	}
	return false
}
