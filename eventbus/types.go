package eventbus

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ProgressEvent is the uniform envelope published for every observable
// pipeline transition: session start/stop/abort, per-step progress, and
// extraction summaries. The external overlay renders these; the core never
// renders anything itself. Action text is already masked for sensitive steps.
type ProgressEvent struct {
	EventID    string    `json:"event_id"`
	Source     string    `json:"source"` // recorder | playback | pipeline | store
	Type       string    `json:"type"`   // e.g. step_completed, session_aborted
	Timestamp  time.Time `json:"timestamp"`
	RecipeID   string    `json:"recipe_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	StepIndex  int       `json:"step_index,omitempty"`
	TotalSteps int       `json:"total_steps,omitempty"`
	Action     string    `json:"action,omitempty"` // human-readable current action
	Detail     string    `json:"detail,omitempty"`
}

// NewEventID generates a compact unique event id with a date prefix.
func NewEventID(prefix string, t time.Time) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return prefix + t.UTC().Format("20060102") + "_" + hex.EncodeToString(b)
}

// MinimalValidate checks required fields.
func (e *ProgressEvent) MinimalValidate() bool {
	return e.EventID != "" && e.Source != "" && e.Type != "" && !e.Timestamp.IsZero()
}
