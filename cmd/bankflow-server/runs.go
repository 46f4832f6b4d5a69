package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	pw "github.com/playwright-community/playwright-go"

	"bankflow/eventbus"
	"bankflow/pipeline"
	"bankflow/playback"
	"bankflow/recipes"
)

const (
	runStatusPending          = "pending"
	runStatusRunning          = "running"
	runStatusAwaitingDecision = "awaiting_decision"
	runStatusCompleted        = "completed"
	runStatusFailed           = "failed"
)

// run tracks one asynchronous replay job.
type run struct {
	mu          sync.Mutex
	ID          string
	RecipeID    string
	Status      string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *pipeline.RunResult
	Error       string
	pending     *pendingDecision
	cancel      context.CancelFunc
}

type pendingDecision struct {
	failure playback.StepFailure
	ch      chan playback.Decision
}

type runSnapshot struct {
	ID          string              `json:"id"`
	RecipeID    string              `json:"recipe_id"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Result      *pipeline.RunResult `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

func (r *run) snapshot() runSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return runSnapshot{
		ID:          r.ID,
		RecipeID:    r.RecipeID,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Result:      r.Result,
		Error:       r.Error,
	}
}

func (r *run) setStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	now := time.Now()
	switch status {
	case runStatusRunning:
		r.StartedAt = &now
	case runStatusCompleted, runStatusFailed:
		r.CompletedAt = &now
	}
}

func (r *run) setPending(p *pendingDecision) {
	r.mu.Lock()
	r.pending = p
	if p != nil {
		r.Status = runStatusAwaitingDecision
	} else if r.Status == runStatusAwaitingDecision {
		r.Status = runStatusRunning
	}
	r.mu.Unlock()
}

func (r *run) takePending() *pendingDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// runStore keeps replay jobs in memory; finished runs are pruned after an age
// threshold.
type runStore struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func newRunStore() *runStore {
	return &runStore{runs: make(map[string]*run)}
}

func (s *runStore) create(recipeID string) *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &run{
		ID:        uuid.New().String(),
		RecipeID:  recipeID,
		Status:    runStatusPending,
		CreatedAt: time.Now(),
	}
	s.runs[r.ID] = r
	return r
}

func (s *runStore) get(id string) (*run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

func (s *runStore) cleanupOld(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for id, r := range s.runs {
		r.mu.Lock()
		done := r.CompletedAt != nil && r.CompletedAt.Before(cutoff)
		r.mu.Unlock()
		if done {
			delete(s.runs, id)
		}
	}
}

func (s *runStore) cleanupWorker(maxAge time.Duration) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.cleanupOld(maxAge)
	}
}

// httpPrompter parks step failures on the run record until the operator posts
// a decision. No decision within the timeout aborts the run.
type httpPrompter struct {
	run     *run
	timeout time.Duration
}

func (p *httpPrompter) Decide(ctx context.Context, f playback.StepFailure) (playback.Decision, error) {
	ch := make(chan playback.Decision, 1)
	p.run.setPending(&pendingDecision{failure: f, ch: ch})
	defer p.run.setPending(nil)

	select {
	case d := <-ch:
		return d, nil
	case <-time.After(p.timeout):
		log.Printf("⏰ No operator decision for step %d within %s; aborting", f.Index, p.timeout)
		return playback.DecisionAbort, nil
	case <-ctx.Done():
		return playback.DecisionAbort, ctx.Err()
	}
}

func (s *server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	recipeID := mux.Vars(r)["id"]
	recipe, err := s.store.Get(r.Context(), recipeID)
	if err == recipes.ErrNotFound {
		writeError(w, http.StatusNotFound, "recipe not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get recipe: %v", err)
		return
	}

	job := s.runs.create(recipeID)
	go s.executeRun(job, recipe)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": job.ID,
		"status": job.Status,
	})
}

func (s *server) executeRun(job *run, recipe *recipes.Recipe) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Run %s PANIC: %v", job.ID, r)
			job.mu.Lock()
			job.Error = "internal failure"
			job.mu.Unlock()
			job.setStatus(runStatusFailed)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.mu.Lock()
	job.cancel = cancel
	job.mu.Unlock()

	page, err := s.browser.NewPage()
	if err != nil {
		job.mu.Lock()
		job.Error = "open page: " + err.Error()
		job.mu.Unlock()
		job.setStatus(runStatusFailed)
		return
	}
	defer page.Close()

	// A replay claims the browser surface; an in-flight recording session is
	// torn down first. The token keeps a late unwind of an evicted run from
	// clearing whoever owns the surface by then.
	token := s.surface.Begin(pipeline.ModePlayback, func() {
		cancel()
		_ = page.Close()
	})
	defer s.surface.End(token)

	job.setStatus(runStatusRunning)

	if _, err := page.Goto(recipe.TargetURL, pw.PageGotoOptions{WaitUntil: pw.WaitUntilStateLoad}); err != nil {
		job.mu.Lock()
		job.Error = "navigate: " + err.Error()
		job.mu.Unlock()
		job.setStatus(runStatusFailed)
		return
	}

	driver := playback.NewPlaywrightDriver(page)
	prompter := &httpPrompter{run: job, timeout: time.Duration(s.cfg.DecisionTimeoutSeconds) * time.Second}
	engine := playback.NewEngine(driver, prompter,
		playback.WithSettleTimeout(time.Duration(s.cfg.SettleTimeoutSeconds)*time.Second),
		playback.WithProgress(s.progressForwarder(job.ID)),
	)
	runner := pipeline.NewRunner(s.store, engine, driver, s.cleaner, s.importer)
	if s.bus != nil {
		runner.SetEvents(s.bus)
	}

	result, err := runner.Run(ctx, recipe.ID)
	job.mu.Lock()
	job.Result = result
	if err != nil {
		job.Error = err.Error()
	}
	job.mu.Unlock()
	if err != nil {
		job.setStatus(runStatusFailed)
		return
	}
	job.setStatus(runStatusCompleted)
}

func (s *server) progressForwarder(runID string) playback.ProgressFunc {
	return func(ev playback.ProgressEvent) {
		if s.bus == nil {
			return
		}
		_ = s.bus.Publish(context.Background(), eventbus.ProgressEvent{
			Source:     "playback",
			Type:       ev.Type,
			RecipeID:   ev.RecipeID,
			SessionID:  runID,
			StepIndex:  ev.StepIndex,
			TotalSteps: ev.TotalSteps,
			Action:     ev.Action,
			Detail:     ev.Detail,
		})
	}
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	job, ok := s.runs.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, job.snapshot())
}

func (s *server) handleGetPendingDecision(w http.ResponseWriter, r *http.Request) {
	job, ok := s.runs.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	p := job.takePending()
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"pending": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":    true,
		"step_index": p.failure.Index,
		"action":     p.failure.Step.Describe(),
		"reason":     p.failure.Reason,
	})
}

type decisionRequest struct {
	Decision string `json:"decision"` // "skip" | "abort"
}

func (s *server) handlePostDecision(w http.ResponseWriter, r *http.Request) {
	job, ok := s.runs.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid decision: %v", err)
		return
	}
	var d playback.Decision
	switch req.Decision {
	case "skip":
		d = playback.DecisionSkip
	case "abort":
		d = playback.DecisionAbort
	default:
		writeError(w, http.StatusBadRequest, "decision must be skip or abort")
		return
	}
	p := job.takePending()
	if p == nil {
		writeError(w, http.StatusConflict, "run is not awaiting a decision")
		return
	}
	select {
	case p.ch <- d:
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	default:
		writeError(w, http.StatusConflict, "decision already delivered")
	}
}
