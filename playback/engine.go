package playback

import (
	"context"
	"fmt"
	"log"
	"time"

	"bankflow/recipes"
	"bankflow/resolver"
)

// Driver is the narrow browser surface the engine needs. The playwright
// implementation lives in this package; tests substitute a fake.
type Driver interface {
	// URL returns the page's current location.
	URL(ctx context.Context) (string, error)
	// TryProbe attempts to resolve the step's target with one probe and, on
	// resolution, performs the step's action. A false return with nil error
	// means the probe simply found nothing; errors are transport-level.
	TryProbe(ctx context.Context, probe resolver.Probe, step recipes.InteractionStep) (bool, error)
	// WaitSettled waits, bounded, for the page to stop loading and settle
	// after asynchronous re-renders. Timeouts are non-fatal by contract.
	WaitSettled(ctx context.Context, timeout time.Duration)
	// Content returns the page HTML for extraction.
	Content(ctx context.Context) (string, error)
}

// Engine drives one recipe replay at a time.
type Engine struct {
	driver        Driver
	prompter      Prompter
	onProgress    ProgressFunc
	settleTimeout time.Duration
	settleDelay   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.onProgress = fn }
}

func WithSettleTimeout(d time.Duration) Option {
	return func(e *Engine) { e.settleTimeout = d }
}

func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) { e.settleDelay = d }
}

func NewEngine(driver Driver, prompter Prompter, opts ...Option) *Engine {
	e := &Engine{
		driver:        driver,
		prompter:      prompter,
		settleTimeout: 10 * time.Second,
		settleDelay:   1500 * time.Millisecond,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes every step of the recipe in order and returns the finished
// session. Outcome is Completed only when every step either executed cleanly
// or was confirmed via navigation; any skipped step forces PartialFailure.
// Operator cancellation surfaces as Aborted with ctx.Err.
func (e *Engine) Run(ctx context.Context, recipe *recipes.Recipe) (*Session, error) {
	session := newSession(recipe.ID, len(recipe.Steps))
	e.emit(ProgressEvent{Type: "session_started", RecipeID: recipe.ID, TotalSteps: len(recipe.Steps)})
	log.Printf("▶️  [Playback] %s: %d steps", recipe.Name, len(recipe.Steps))

	skipped := 0
	for i, step := range recipe.Steps {
		// Cooperative cancel between steps.
		if err := ctx.Err(); err != nil {
			session.setOutcome(OutcomeAborted)
			e.emit(ProgressEvent{Type: "session_aborted", RecipeID: recipe.ID, StepIndex: i, TotalSteps: len(recipe.Steps), Detail: "cancelled"})
			return session, err
		}

		e.emit(ProgressEvent{Type: "step_started", RecipeID: recipe.ID, StepIndex: i, TotalSteps: len(recipe.Steps), Action: step.Describe()})

		ok, strategy, err := e.runStep(ctx, i, step)
		if err != nil {
			session.setOutcome(OutcomeAborted)
			e.emit(ProgressEvent{Type: "session_aborted", RecipeID: recipe.ID, StepIndex: i, TotalSteps: len(recipe.Steps), Detail: err.Error()})
			return session, err
		}
		if !ok {
			skipped++
			e.emit(ProgressEvent{Type: "step_skipped", RecipeID: recipe.ID, StepIndex: i, TotalSteps: len(recipe.Steps), Action: step.Describe()})
		} else {
			e.emit(ProgressEvent{Type: "step_completed", RecipeID: recipe.ID, StepIndex: i, TotalSteps: len(recipe.Steps), Action: step.Describe(), Detail: strategy})
		}

		// Many banking sites re-render the transaction table asynchronously
		// after navigation; give the page a bounded chance to settle.
		e.driver.WaitSettled(ctx, e.settleTimeout)
		if e.settleDelay > 0 {
			select {
			case <-time.After(e.settleDelay):
			case <-ctx.Done():
			}
		}
		session.setStep(i + 1)
	}

	if skipped > 0 {
		session.setOutcome(OutcomePartialFailure)
		e.emit(ProgressEvent{Type: "session_partial", RecipeID: recipe.ID, StepIndex: len(recipe.Steps), TotalSteps: len(recipe.Steps), Detail: fmt.Sprintf("%d steps skipped", skipped)})
	} else {
		session.setOutcome(OutcomeCompleted)
		e.emit(ProgressEvent{Type: "session_completed", RecipeID: recipe.ID, StepIndex: len(recipe.Steps), TotalSteps: len(recipe.Steps)})
	}
	return session, nil
}

// runStep returns (executed, winning strategy, fatal error). A false return
// with nil error means the operator chose to skip.
func (e *Engine) runStep(ctx context.Context, index int, step recipes.InteractionStep) (bool, string, error) {
	beforeURL, _ := e.driver.URL(ctx)

	probes := resolver.Plan(step)
	var lastErr error
	for _, probe := range probes {
		ok, err := e.driver.TryProbe(ctx, probe, step)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, string(probe.Kind), nil
		}
	}

	// The attempt may still have worked: a click that triggered navigation
	// interrupts its own completion report.
	afterURL, _ := e.driver.URL(ctx)
	if beforeURL != "" && afterURL != "" && beforeURL != afterURL {
		log.Printf("[Playback] step %d confirmed via navigation (%s -> %s)", index, beforeURL, afterURL)
		return true, "navigation", nil
	}

	reason := "target not found"
	if len(probes) == 0 {
		reason = "step carries no coordinates and no usable descriptor"
	} else if lastErr != nil {
		reason = lastErr.Error()
	}

	decision, err := e.prompter.Decide(ctx, StepFailure{Index: index, Step: step, Reason: reason})
	if err != nil {
		return false, "", fmt.Errorf("step %d escalation: %w", index, err)
	}
	if decision == DecisionAbort {
		return false, "", fmt.Errorf("step %d aborted by operator: %s", index, reason)
	}
	log.Printf("⚠️  [Playback] step %d skipped: %s", index, reason)
	return false, "", nil
}

func (e *Engine) emit(ev ProgressEvent) {
	if e.onProgress != nil {
		e.onProgress(ev)
	}
}
