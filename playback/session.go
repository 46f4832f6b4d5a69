// Package playback replays a persisted recipe against a fresh page session:
// coordinate-first element resolution, per-step navigation detection, bounded
// settle waits, and skip/abort escalation for unresolved failures.
package playback

import (
	"context"
	"sync"

	"bankflow/recipes"
)

// Outcome is the terminal (or running) state of a playback session.
type Outcome string

const (
	OutcomeRunning        Outcome = "running"
	OutcomeCompleted      Outcome = "completed"
	OutcomePartialFailure Outcome = "partial"
	OutcomeAborted        Outcome = "aborted"
)

// Session is the ephemeral replay context. The engine is its single writer;
// the progress overlay reads snapshots.
type Session struct {
	mu          sync.Mutex
	RecipeID    string
	currentStep int
	totalSteps  int
	outcome     Outcome
}

func newSession(recipeID string, totalSteps int) *Session {
	return &Session{RecipeID: recipeID, totalSteps: totalSteps, outcome: OutcomeRunning}
}

// Progress returns the current step index, total steps, and outcome.
func (s *Session) Progress() (int, int, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep, s.totalSteps, s.outcome
}

func (s *Session) setStep(i int) {
	s.mu.Lock()
	s.currentStep = i
	s.mu.Unlock()
}

func (s *Session) setOutcome(o Outcome) {
	s.mu.Lock()
	s.outcome = o
	s.mu.Unlock()
}

// StepFailure describes an unresolved step surfaced to the operator.
type StepFailure struct {
	Index  int
	Step   recipes.InteractionStep
	Reason string
}

// Decision is the operator's answer to a step failure.
type Decision int

const (
	DecisionSkip Decision = iota
	DecisionAbort
)

// Prompter surfaces a step failure to the operator and blocks for the
// skip/abort choice. Implementations should honor ctx cancellation.
type Prompter interface {
	Decide(ctx context.Context, f StepFailure) (Decision, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, f StepFailure) (Decision, error)

func (fn PrompterFunc) Decide(ctx context.Context, f StepFailure) (Decision, error) {
	return fn(ctx, f)
}

// ProgressEvent is emitted after every step and on session transitions.
// Action text is already masked for sensitive steps.
type ProgressEvent struct {
	Type       string // session_started, step_started, step_completed, step_skipped, session_completed, session_partial, session_aborted
	RecipeID   string
	StepIndex  int
	TotalSteps int
	Action     string
	Detail     string
}

// ProgressFunc receives progress events; nil disables reporting.
type ProgressFunc func(ev ProgressEvent)
