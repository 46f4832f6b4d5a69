package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"bankflow/extractor"
	"bankflow/playback"
	"bankflow/recipes"
	"bankflow/resolver"
)

const activityPage = `<html><body>
<table><tbody>
<tr><td>01/08/2026</td><td>COFFEE BAR</td><td>-4.50</td></tr>
<tr><td>02/08/2026</td><td>GROCERY MART</td><td>-61.20</td></tr>
<tr><td>03/08/2026</td><td>SALARY</td><td>2500.00</td></tr>
</tbody></table>
</body></html>`

// scriptedDriver resolves every probe (or none) and serves a fixed page.
type scriptedDriver struct {
	resolveAll   bool
	contentCalls int
}

func (d *scriptedDriver) URL(ctx context.Context) (string, error) { return "https://bank.example", nil }

func (d *scriptedDriver) TryProbe(ctx context.Context, probe resolver.Probe, step recipes.InteractionStep) (bool, error) {
	return d.resolveAll, nil
}

func (d *scriptedDriver) WaitSettled(ctx context.Context, timeout time.Duration) {}

func (d *scriptedDriver) Content(ctx context.Context) (string, error) {
	d.contentCalls++
	return activityPage, nil
}

type memStore struct {
	recipe  *recipes.Recipe
	updates []recipes.Update
}

func (m *memStore) List(ctx context.Context) ([]recipes.Recipe, error) {
	return []recipes.Recipe{*m.recipe}, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*recipes.Recipe, error) {
	if id != m.recipe.ID {
		return nil, recipes.ErrNotFound
	}
	cp := *m.recipe
	return &cp, nil
}

func (m *memStore) Create(ctx context.Context, r recipes.Recipe) (string, error) {
	m.recipe = &r
	return r.ID, nil
}

func (m *memStore) Update(ctx context.Context, id string, u recipes.Update) error {
	m.updates = append(m.updates, u)
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error { return nil }

type recordingImporter struct {
	calls int
	rows  []extractor.Row
}

func (i *recordingImporter) Import(ctx context.Context, recipeID string, rows []extractor.Row) error {
	i.calls++
	i.rows = rows
	return nil
}

func storeWithRecipe() *memStore {
	return &memStore{recipe: &recipes.Recipe{
		ID:        "r1",
		Name:      "demo bank",
		TargetURL: "https://bank.example",
		Steps: []recipes.InteractionStep{
			{
				Kind:        recipes.StepClick,
				Target:      recipes.TargetDescriptor{Strategy: recipes.StrategyStructural, Selector: "a#activity"},
				Coordinates: &recipes.Coordinates{PointX: 5, PointY: 5, CenterX: 6, CenterY: 6},
			},
		},
	}}
}

func skipPrompter() playback.Prompter {
	return playback.PrompterFunc(func(ctx context.Context, f playback.StepFailure) (playback.Decision, error) {
		return playback.DecisionSkip, nil
	})
}

func TestRunCompletedExtractsAndImports(t *testing.T) {
	store := storeWithRecipe()
	driver := &scriptedDriver{resolveAll: true}
	engine := playback.NewEngine(driver, skipPrompter(), playback.WithSettleDelay(0))
	importer := &recordingImporter{}

	r := NewRunner(store, engine, driver, nil, importer)
	result, err := r.Run(context.Background(), "r1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != playback.OutcomeCompleted {
		t.Fatalf("outcome: %s", result.Outcome)
	}
	if importer.calls != 1 || len(importer.rows) != 3 {
		t.Fatalf("import: calls=%d rows=%d", importer.calls, len(importer.rows))
	}
	if !result.Imported || result.Method != "pattern" {
		t.Fatalf("result: %+v", result)
	}
	last := store.updates[len(store.updates)-1]
	if last.LastRunAt == nil || last.LastExtractionMethod == nil || *last.LastExtractionMethod != "pattern" {
		t.Fatalf("run metadata not recorded: %+v", last)
	}
}

func TestRunPartialFailureSuppressesExtraction(t *testing.T) {
	store := storeWithRecipe()
	driver := &scriptedDriver{resolveAll: false}
	engine := playback.NewEngine(driver, skipPrompter(), playback.WithSettleDelay(0))
	importer := &recordingImporter{}

	r := NewRunner(store, engine, driver, nil, importer)
	result, err := r.Run(context.Background(), "r1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != playback.OutcomePartialFailure {
		t.Fatalf("outcome: %s", result.Outcome)
	}
	if driver.contentCalls != 0 {
		t.Fatal("page content read after a partial run")
	}
	if importer.calls != 0 || result.Imported {
		t.Fatal("rows imported from a partial run")
	}
	last := store.updates[len(store.updates)-1]
	if last.LastRunAt == nil || last.LastExtractionMethod != nil {
		t.Fatalf("partial run metadata: %+v", last)
	}
}

type upperCleaner struct{ calls int }

func (c *upperCleaner) Clean(ctx context.Context, rows []extractor.Row) []extractor.Row {
	c.calls++
	out := make([]extractor.Row, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].Category = "Other"
	}
	return out
}

func TestRunCleanerChangesMethod(t *testing.T) {
	store := storeWithRecipe()
	driver := &scriptedDriver{resolveAll: true}
	engine := playback.NewEngine(driver, skipPrompter(), playback.WithSettleDelay(0))
	cleaner := &upperCleaner{}
	importer := &recordingImporter{}

	r := NewRunner(store, engine, driver, cleaner, importer)
	result, err := r.Run(context.Background(), "r1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if cleaner.calls != 1 || result.Method != "pattern+llm" {
		t.Fatalf("cleaner not applied: calls=%d method=%s", cleaner.calls, result.Method)
	}
	for _, row := range importer.rows {
		if row.Category != "Other" {
			t.Fatalf("cleaned rows not imported: %+v", row)
		}
	}
}

type capturedEvent struct {
	source    string
	eventType string
	recipeID  string
	detail    string
}

type fakePublisher struct{ events []capturedEvent }

func (p *fakePublisher) PublishFrom(ctx context.Context, source, eventType, recipeID, detail string) error {
	p.events = append(p.events, capturedEvent{source, eventType, recipeID, detail})
	return nil
}

func TestRunPublishesExtractionSummaryFromPipeline(t *testing.T) {
	store := storeWithRecipe()
	driver := &scriptedDriver{resolveAll: true}
	engine := playback.NewEngine(driver, skipPrompter(), playback.WithSettleDelay(0))
	pub := &fakePublisher{}

	r := NewRunner(store, engine, driver, nil, &recordingImporter{})
	r.SetEvents(pub)
	if _, err := r.Run(context.Background(), "r1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one summary event, got %+v", pub.events)
	}
	ev := pub.events[0]
	if ev.source != "pipeline" || ev.eventType != "extraction_summary" || ev.recipeID != "r1" {
		t.Fatalf("summary mislabelled: %+v", ev)
	}
	if !strings.Contains(ev.detail, "3 rows") {
		t.Fatalf("summary detail: %q", ev.detail)
	}
}

func TestRunUnknownRecipe(t *testing.T) {
	store := storeWithRecipe()
	driver := &scriptedDriver{resolveAll: true}
	engine := playback.NewEngine(driver, skipPrompter(), playback.WithSettleDelay(0))
	r := NewRunner(store, engine, driver, nil, nil)
	if _, err := r.Run(context.Background(), "nope"); err != recipes.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSurfaceExclusivity(t *testing.T) {
	s := NewSurface()
	if s.Mode() != ModeIdle {
		t.Fatalf("mode: %s", s.Mode())
	}
	tornDown := false
	s.Begin(ModeRecording, func() { tornDown = true })
	if s.Mode() != ModeRecording || tornDown {
		t.Fatalf("recording not active: mode=%s tornDown=%v", s.Mode(), tornDown)
	}
	// Starting playback evicts the recording session.
	tok := s.Begin(ModePlayback, nil)
	if !tornDown || s.Mode() != ModePlayback {
		t.Fatalf("recording not torn down: mode=%s tornDown=%v", s.Mode(), tornDown)
	}
	s.End(tok)
	if s.Mode() != ModeIdle {
		t.Fatalf("mode after end: %s", s.Mode())
	}
}

func TestSurfaceStaleEndKeepsSuccessor(t *testing.T) {
	s := NewSurface()
	playbackDown := false
	runToken := s.Begin(ModePlayback, func() { playbackDown = true })

	// A recording starts mid-replay and evicts the run.
	recordingDown := false
	s.Begin(ModeRecording, func() { recordingDown = true })
	if !playbackDown {
		t.Fatal("eviction must tear the replay down")
	}

	// The evicted run unwinds afterwards and releases with its stale token;
	// the recording must stay registered.
	s.End(runToken)
	if s.Mode() != ModeRecording {
		t.Fatalf("stale release cleared the recording: mode=%s", s.Mode())
	}

	// The next replay must still find and tear down the recording.
	s.Begin(ModePlayback, nil)
	if !recordingDown {
		t.Fatal("recording left attached when the next replay started")
	}
}
