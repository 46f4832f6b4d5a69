package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	pw "github.com/playwright-community/playwright-go"

	"bankflow/config"
	"bankflow/eventbus"
	"bankflow/pipeline"
	"bankflow/recipes"
	"bankflow/recorder"
)

type server struct {
	cfg      *config.ServerConfig
	store    recipes.Store
	bus      *eventbus.NATSBus
	browser  pw.Browser
	cleaner  pipeline.Cleaner
	importer pipeline.Importer
	surface  *pipeline.Surface
	runs     *runStore

	mu  sync.Mutex
	rec *recordingState
}

type recordingState struct {
	session *recorder.Session
	page    pw.Page
	token   pipeline.Token
}

func newServer(cfg *config.ServerConfig, store recipes.Store, bus *eventbus.NATSBus, browser pw.Browser, cleaner pipeline.Cleaner, importer pipeline.Importer) *server {
	return &server{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		browser:  browser,
		cleaner:  cleaner,
		importer: importer,
		surface:  pipeline.NewSurface(),
		runs:     newRunStore(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "bankflow",
		"surface": s.surface.Mode(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

// Recipe CRUD

// maskRecipe blanks sensitive step values before a recipe leaves the API.
// Replay reads the raw value straight from the store.
func maskRecipe(r recipes.Recipe) recipes.Recipe {
	steps := make([]recipes.InteractionStep, len(r.Steps))
	copy(steps, r.Steps)
	for i := range steps {
		if steps[i].IsSensitive {
			steps[i].Value = steps[i].MaskedValue()
		}
	}
	r.Steps = steps
	return r
}

func (s *server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list recipes: %v", err)
		return
	}
	out := make([]recipes.Recipe, len(list))
	for i, rec := range list {
		out[i] = maskRecipe(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var rec recipes.Recipe
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipe: %v", err)
		return
	}
	id, err := s.store.Create(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusBadRequest, "create recipe: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err == recipes.ErrNotFound {
		writeError(w, http.StatusNotFound, "recipe not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get recipe: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, maskRecipe(*rec))
}

type updateRequest struct {
	Name            *string                    `json:"name"`
	TargetURL       *string                    `json:"target_url"`
	Institution     *string                    `json:"institution"`
	LinkedAccountID *string                    `json:"linked_account_id"`
	Steps           *[]recipes.InteractionStep `json:"steps"`
}

func (s *server) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update: %v", err)
		return
	}
	u := recipes.Update{
		Name:            req.Name,
		TargetURL:       req.TargetURL,
		Institution:     req.Institution,
		LinkedAccountID: req.LinkedAccountID,
		Steps:           req.Steps,
	}
	err := s.store.Update(r.Context(), mux.Vars(r)["id"], u)
	if err == recipes.ErrNotFound {
		writeError(w, http.StatusNotFound, "recipe not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "update recipe: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	err := s.store.Delete(r.Context(), mux.Vars(r)["id"])
	if err == recipes.ErrNotFound {
		writeError(w, http.StatusNotFound, "recipe not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete recipe: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Recording session

type recordStartRequest struct {
	TargetURL string `json:"target_url"`
}

func (s *server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req recordStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "target_url is required")
		return
	}

	page, err := s.browser.NewPage()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "open page: %v", err)
		return
	}

	session := recorder.NewSession(req.TargetURL, nil)
	if s.bus != nil {
		session.OnStep(func(step recipes.InteractionStep, index int) {
			_ = s.bus.Publish(context.Background(), eventbus.ProgressEvent{
				Source:    "recorder",
				Type:      "step_captured",
				StepIndex: index,
				Action:    step.Describe(),
			})
		})
	}
	if err := recorder.Attach(page, session); err != nil {
		_ = page.Close()
		writeError(w, http.StatusInternalServerError, "attach recorder: %v", err)
		return
	}
	if _, err := page.Goto(req.TargetURL, pw.PageGotoOptions{WaitUntil: pw.WaitUntilStateLoad}); err != nil {
		_ = page.Close()
		writeError(w, http.StatusBadGateway, "navigate to %s: %v", req.TargetURL, err)
		return
	}

	// Evict whatever held the browser surface before.
	token := s.surface.Begin(pipeline.ModeRecording, func() {
		session.Cancel()
		recorder.Detach(page)
		_ = page.Close()
	})
	s.mu.Lock()
	s.rec = &recordingState{session: session, page: page, token: token}
	s.mu.Unlock()

	log.Printf("🎬 Recording started for %s", req.TargetURL)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recording", "target_url": req.TargetURL})
}

func (s *server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec == nil || !rec.session.Active() {
		writeJSON(w, http.StatusOK, map[string]interface{}{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":     true,
		"target_url": rec.session.TargetURL(),
		"steps":      rec.session.StepCount(),
	})
}

type recordStopRequest struct {
	Name            string `json:"name"`
	Institution     string `json:"institution"`
	LinkedAccountID string `json:"linked_account_id"`
}

func (s *server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	var req recordStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec == nil {
		writeError(w, http.StatusConflict, "no active recording session")
		return
	}

	steps, err := rec.session.Finalize()
	recorder.Detach(rec.page)
	_ = rec.page.Close()
	s.surface.End(rec.token)
	if err == recipes.ErrNoSteps {
		writeError(w, http.StatusBadRequest, "recording captured no steps; nothing saved")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "finalize recording: %v", err)
		return
	}

	id, err := s.store.Create(r.Context(), recipes.Recipe{
		Name:            req.Name,
		TargetURL:       rec.session.TargetURL(),
		Institution:     req.Institution,
		LinkedAccountID: req.LinkedAccountID,
		Steps:           steps,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "save recipe: %v", err)
		return
	}
	log.Printf("💾 Recording saved as recipe %s (%d steps)", id, len(steps))
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "steps": len(steps)})
}

func (s *server) handleRecordCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec == nil {
		writeError(w, http.StatusConflict, "no active recording session")
		return
	}
	rec.session.Cancel()
	recorder.Detach(rec.page)
	_ = rec.page.Close()
	s.surface.End(rec.token)
	log.Println("🗑️  Recording cancelled; captured steps discarded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
