// Package recorder captures operator demonstrations inside a live page and
// turns them into ordered interaction steps. The injected capture script
// reports raw events; all commit, debounce and dedup policy lives here.
package recorder

import (
	"sort"
	"strings"
	"sync"
	"time"

	"bankflow/recipes"
	"bankflow/resolver"
)

// DebounceWindow suppresses a re-committed input step for the same target
// with the same value arriving within this window of the previous one.
const DebounceWindow = 2 * time.Second

// DefaultOverlayIDs are the reserved element ids of the tool's own control
// chrome. Events originating inside these are never captured as steps.
var DefaultOverlayIDs = []string{
	"bankflow-overlay",
	"bankflow-record-bar",
	"bankflow-playback-bar",
}

// Event is one raw page event reported by the capture script.
type Event struct {
	Kind        string                   `json:"kind"` // click | input | change
	Element     resolver.CapturedElement `json:"element"`
	Value       string                   `json:"value,omitempty"`
	TimestampMS int64                    `json:"timestamp_ms"`
}

type pendingInput struct {
	el    resolver.CapturedElement
	value string
	ts    int64
}

type lastCommit struct {
	value string
	ts    int64
}

// Session is the ephemeral live-capture context. Exactly one session may be
// active per page; it is destroyed on save or cancel.
type Session struct {
	mu         sync.Mutex
	targetURL  string
	active     bool
	steps      []recipes.InteractionStep
	pending    map[string]pendingInput
	committed  map[string]lastCommit
	overlayIDs map[string]bool
	onStep     func(step recipes.InteractionStep, index int)
}

// NewSession creates an active recording session for the given URL.
// overlayIDs may be nil to use the defaults.
func NewSession(targetURL string, overlayIDs []string) *Session {
	if overlayIDs == nil {
		overlayIDs = DefaultOverlayIDs
	}
	ids := make(map[string]bool, len(overlayIDs))
	for _, id := range overlayIDs {
		ids[id] = true
	}
	return &Session{
		targetURL:  targetURL,
		active:     true,
		pending:    make(map[string]pendingInput),
		committed:  make(map[string]lastCommit),
		overlayIDs: ids,
	}
}

// OnStep registers a callback invoked for every captured step, used for
// operator-facing progress. Must be set before events arrive.
func (s *Session) OnStep(fn func(step recipes.InteractionStep, index int)) {
	s.mu.Lock()
	s.onStep = fn
	s.mu.Unlock()
}

func (s *Session) TargetURL() string { return s.targetURL }

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// StepCount returns the number of committed steps so far.
func (s *Session) StepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Steps returns a snapshot of the committed steps.
func (s *Session) Steps() []recipes.InteractionStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recipes.InteractionStep, len(s.steps))
	copy(out, s.steps)
	return out
}

// HandleEvent consumes one raw capture event. Events from an inactive
// session or from the tool's own overlay are dropped.
func (s *Session) HandleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.inOverlay(ev.Element) {
		return
	}

	switch ev.Kind {
	case "click":
		// Clicking into a field just focuses it; the field's own step is
		// committed on change/blur.
		if isFieldTag(ev.Element.Tag) {
			return
		}
		s.append(s.makeStep(recipes.StepClick, ev, ""))

	case "input":
		// Intermediate keystrokes only update the pending value.
		key := s.targetKey(ev.Element)
		s.pending[key] = pendingInput{el: ev.Element, value: ev.Value, ts: ev.TimestampMS}

	case "change":
		s.commit(ev)
	}
}

func (s *Session) commit(ev Event) {
	key := s.targetKey(ev.Element)
	value := ev.Value
	if value == "" {
		if p, ok := s.pending[key]; ok {
			value = p.value
		}
	}
	delete(s.pending, key)

	kind := recipes.StepInput
	if strings.EqualFold(ev.Element.Tag, "select") {
		kind = recipes.StepSelect
	}

	// Debounce: an identical value for the same target inside the window is
	// already represented.
	if last, ok := s.committed[key]; ok {
		if last.value == value && ev.TimestampMS-last.ts < DebounceWindow.Milliseconds() {
			return
		}
	}
	s.committed[key] = lastCommit{value: value, ts: ev.TimestampMS}
	s.append(s.makeStep(kind, ev, value))
}

// Finalize deactivates the session and returns the captured steps after the
// save-time dedup pass. Any still-pending field value is committed first so a
// site that never fires change does not lose the final value.
func (s *Session) Finalize() ([]recipes.InteractionStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var flush []pendingInput
	for key, p := range s.pending {
		if last, ok := s.committed[key]; ok && last.value == p.value {
			continue
		}
		flush = append(flush, p)
	}
	// Map order is random; keep the steps in the order the operator typed.
	sort.Slice(flush, func(i, j int) bool { return flush[i].ts < flush[j].ts })
	for _, p := range flush {
		ev := Event{Element: p.el, Value: p.value, TimestampMS: p.ts}
		kind := recipes.StepInput
		if strings.EqualFold(p.el.Tag, "select") {
			kind = recipes.StepSelect
		}
		s.steps = append(s.steps, s.makeStep(kind, ev, p.value))
	}
	s.pending = map[string]pendingInput{}
	s.active = false

	steps := dedupeConsecutiveInputs(s.steps)
	if len(steps) == 0 {
		return nil, recipes.ErrNoSteps
	}
	return steps, nil
}

// Cancel discards all captured work and deactivates the session.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.steps = nil
	s.pending = map[string]pendingInput{}
	s.committed = map[string]lastCommit{}
}

func (s *Session) makeStep(kind recipes.StepKind, ev Event, value string) recipes.InteractionStep {
	el := ev.Element
	step := recipes.InteractionStep{
		Kind:   kind,
		Target: resolver.Describe(el),
		Coordinates: &recipes.Coordinates{
			PointX:         el.PointX,
			PointY:         el.PointY,
			CenterX:        el.CenterX,
			CenterY:        el.CenterY,
			ViewportWidth:  el.ViewportWidth,
			ViewportHeight: el.ViewportHeight,
			ScrollX:        el.ScrollX,
			ScrollY:        el.ScrollY,
		},
		FieldLabel: resolver.FieldLabel(el),
		CapturedAt: ev.TimestampMS,
	}
	if kind != recipes.StepClick {
		step.Value = value
		step.IsSensitive = resolver.Sensitive(el)
	}
	return step
}

func (s *Session) append(step recipes.InteractionStep) {
	s.steps = append(s.steps, step)
	if s.onStep != nil {
		s.onStep(step, len(s.steps)-1)
	}
}

func (s *Session) targetKey(el resolver.CapturedElement) string {
	d := resolver.Describe(el)
	return recipes.InteractionStep{Target: d}.TargetKey()
}

func (s *Session) inOverlay(el resolver.CapturedElement) bool {
	if el.InOverlay {
		return true
	}
	if s.overlayIDs[el.ID] {
		return true
	}
	for _, a := range el.Ancestors {
		if s.overlayIDs[a.ID] {
			return true
		}
	}
	return false
}

func isFieldTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "input", "textarea", "select":
		return true
	}
	return false
}

// dedupeConsecutiveInputs collapses a consecutive run of input steps against
// the same field down to the last value in the run. Some sites fire several
// change events per keystroke group; only the final value matters for replay.
func dedupeConsecutiveInputs(steps []recipes.InteractionStep) []recipes.InteractionStep {
	out := make([]recipes.InteractionStep, 0, len(steps))
	for _, st := range steps {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if st.Kind == recipes.StepInput && prev.Kind == recipes.StepInput &&
				st.TargetKey() == prev.TargetKey() {
				*prev = st
				continue
			}
		}
		out = append(out, st)
	}
	return out
}
