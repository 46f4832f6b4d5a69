// Package pipeline ties the stages together: load a recipe, replay it, mine
// the final page, optionally clean the rows, and hand them to the import
// boundary. Only a fully completed replay may feed extraction; a broken
// sequence cannot be trusted to have reached the expected final page.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"bankflow/extractor"
	"bankflow/playback"
	"bankflow/recipes"
)

// Importer is the terminal boundary. The receiving subsystem owns dedup
// against already-stored transactions and persistence.
type Importer interface {
	Import(ctx context.Context, recipeID string, rows []extractor.Row) error
}

// Cleaner is the optional rows -> rows normalization pass. Implementations
// never fail; they pass rows through instead.
type Cleaner interface {
	Clean(ctx context.Context, rows []extractor.Row) []extractor.Row
}

// RunResult summarizes one replay run.
type RunResult struct {
	RecipeID string           `json:"recipe_id"`
	Outcome  playback.Outcome `json:"outcome"`
	Rows     []extractor.Row  `json:"rows,omitempty"`
	Imported bool             `json:"imported"`
	Method   string           `json:"method,omitempty"`
}

// Publisher emits progress events labelled with the pipeline as their source,
// so subscribers can tell run summaries apart from store and session events.
type Publisher interface {
	PublishFrom(ctx context.Context, source, eventType, recipeID, detail string) error
}

// Runner executes the full run pipeline for one recipe.
type Runner struct {
	store    recipes.Store
	engine   *playback.Engine
	driver   playback.Driver
	cleaner  Cleaner // nil disables the cleanup pass
	importer Importer
	events   Publisher
}

func NewRunner(store recipes.Store, engine *playback.Engine, driver playback.Driver, cleaner Cleaner, importer Importer) *Runner {
	return &Runner{store: store, engine: engine, driver: driver, cleaner: cleaner, importer: importer}
}

// SetEvents enables extraction summary events; nil disables them.
func (r *Runner) SetEvents(p Publisher) { r.events = p }

func (r *Runner) publish(ctx context.Context, eventType, recipeID, detail string) {
	if r.events == nil {
		return
	}
	_ = r.events.PublishFrom(ctx, "pipeline", eventType, recipeID, detail)
}

// Run replays the recipe and, on a completed run only, extracts and imports
// rows. Partial and aborted runs discard whatever the page shows.
func (r *Runner) Run(ctx context.Context, recipeID string) (*RunResult, error) {
	recipe, err := r.store.Get(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	session, runErr := r.engine.Run(ctx, recipe)
	_, _, outcome := session.Progress()
	result := &RunResult{RecipeID: recipeID, Outcome: outcome}

	now := time.Now().UTC()
	update := recipes.Update{LastRunAt: &now}

	if outcome != playback.OutcomeCompleted {
		log.Printf("⚠️  [Pipeline] %s finished %s; extraction suppressed", recipe.Name, outcome)
		_ = r.store.Update(ctx, recipeID, update)
		return result, runErr
	}

	pageHTML, err := r.driver.Content(ctx)
	if err != nil {
		_ = r.store.Update(ctx, recipeID, update)
		return result, fmt.Errorf("read final page: %w", err)
	}
	extracted, err := extractor.Extract(pageHTML)
	if err != nil {
		_ = r.store.Update(ctx, recipeID, update)
		return result, err
	}
	rows := extracted.Rows
	method := "pattern"
	if r.cleaner != nil && len(rows) > 0 {
		rows = r.cleaner.Clean(ctx, rows)
		method = "pattern+llm"
	}
	result.Rows = rows
	result.Method = method
	log.Printf("📥 [Pipeline] %s: %d rows extracted (confidence %.1f)", recipe.Name, len(rows), extracted.Confidence)
	r.publish(ctx, "extraction_summary", recipeID,
		fmt.Sprintf("%d rows, confidence %.0f, method %s", len(rows), extracted.Confidence, method))

	if r.importer != nil && len(rows) > 0 {
		if err := r.importer.Import(ctx, recipeID, rows); err != nil {
			_ = r.store.Update(ctx, recipeID, update)
			return result, fmt.Errorf("import rows: %w", err)
		}
		result.Imported = true
	}

	update.LastExtractionMethod = &method
	_ = r.store.Update(ctx, recipeID, update)
	return result, nil
}
