// Package recipes defines the recipe data model and its Redis-backed store.
// A recipe is a named, ordered list of captured interaction steps targeting
// one banking site; replay executes the steps strictly in order.
package recipes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StepKind identifies the action a captured step performs.
type StepKind string

const (
	StepClick  StepKind = "click"
	StepInput  StepKind = "input"
	StepSelect StepKind = "select"
)

// Strategy tags how a target element is re-located at replay time.
type Strategy string

const (
	// StrategySemantic locates a form control by a stable attribute selector
	// (unique name, placeholder, aria-label) or by its associated label text.
	StrategySemantic Strategy = "semantic"
	// StrategyText locates a clickable element by its visible text plus a
	// meaningful class hint.
	StrategyText Strategy = "text"
	// StrategyStructural locates an element by a short ancestor path selector.
	StrategyStructural Strategy = "structural"
	// StrategyNone means no selector survived capture; coordinates only.
	StrategyNone Strategy = "none"
)

// TargetDescriptor describes how to re-locate a captured element. The
// Strategy field selects which of the remaining fields carry data; each
// strategy holds enough to attempt resolution on its own.
type TargetDescriptor struct {
	Strategy  Strategy `json:"strategy"`
	Selector  string   `json:"selector,omitempty"`   // semantic / structural CSS selector
	Label     string   `json:"label,omitempty"`      // associated label text (semantic, label-based)
	Text      string   `json:"text,omitempty"`       // visible text (text identity)
	ClassHint string   `json:"class_hint,omitempty"` // meaningful class carrying the text
	Tag       string   `json:"tag,omitempty"`
}

// Coordinates snapshots where the interaction happened. Points are viewport
// coordinates; the scroll offsets let replay compensate when the page sits at
// a different scroll position.
type Coordinates struct {
	PointX         float64 `json:"point_x"`
	PointY         float64 `json:"point_y"`
	CenterX        float64 `json:"center_x"`
	CenterY        float64 `json:"center_y"`
	ViewportWidth  int     `json:"viewport_width"`
	ViewportHeight int     `json:"viewport_height"`
	ScrollX        float64 `json:"scroll_x"`
	ScrollY        float64 `json:"scroll_y"`
}

// InteractionStep is one captured user action. Value is present only for
// input/select steps. CapturedAt is used for recorder-side debouncing only,
// never for replay timing.
type InteractionStep struct {
	Kind        StepKind         `json:"kind"`
	Target      TargetDescriptor `json:"target"`
	Coordinates *Coordinates     `json:"coordinates,omitempty"`
	Value       string           `json:"value,omitempty"`
	IsSensitive bool             `json:"is_sensitive,omitempty"`
	FieldLabel  string           `json:"field_label,omitempty"`
	CapturedAt  int64            `json:"captured_at"` // unix millis
}

// TargetKey is a stable identity for the step's target, used by the recorder
// to debounce and dedupe input steps against the same field.
func (s InteractionStep) TargetKey() string {
	d := s.Target
	return string(d.Strategy) + "|" + d.Selector + "|" + d.Label + "|" + d.Text + "|" + d.Tag
}

// MaskedValue returns the step value with sensitive content replaced, for
// logs and progress payloads. Replay always uses the raw value.
func (s InteractionStep) MaskedValue() string {
	if s.IsSensitive && s.Value != "" {
		return "••••••"
	}
	return s.Value
}

// Describe renders a short operator-facing description of the step.
func (s InteractionStep) Describe() string {
	label := s.FieldLabel
	if label == "" {
		label = s.Target.Text
	}
	if label == "" {
		label = s.Target.Selector
	}
	if label == "" {
		label = string(s.Target.Strategy)
	}
	label = strings.TrimSpace(label)
	switch s.Kind {
	case StepClick:
		return fmt.Sprintf("click %q", label)
	case StepInput:
		return fmt.Sprintf("fill %q with %q", label, s.MaskedValue())
	case StepSelect:
		return fmt.Sprintf("select %q in %q", s.MaskedValue(), label)
	}
	return string(s.Kind)
}

// Recipe is a persisted automation script for one site.
type Recipe struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	TargetURL            string            `json:"target_url"`
	Institution          string            `json:"institution,omitempty"`
	LinkedAccountID      string            `json:"linked_account_id,omitempty"`
	Steps                []InteractionStep `json:"steps"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	LastRunAt            *time.Time        `json:"last_run_at,omitempty"`
	LastExtractionMethod string            `json:"last_extraction_method,omitempty"`
}

var (
	ErrNotFound = errors.New("recipe not found")
	// ErrNoSteps rejects saving a recipe with zero captured steps.
	ErrNoSteps = errors.New("recipe has no steps")
)

// Validate checks the invariants a persisted recipe must hold.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("recipe name is required")
	}
	if strings.TrimSpace(r.TargetURL) == "" {
		return errors.New("recipe target URL is required")
	}
	if len(r.Steps) == 0 {
		return ErrNoSteps
	}
	for i, s := range r.Steps {
		switch s.Kind {
		case StepClick:
			if s.Value != "" {
				return fmt.Errorf("step %d: click step carries a value", i)
			}
		case StepInput, StepSelect:
			// Value may legitimately be empty (operator cleared a field);
			// kind decides the replay path, not value presence.
		default:
			return fmt.Errorf("step %d: unknown kind %q", i, s.Kind)
		}
	}
	return nil
}

// Update carries the fields a partial recipe update may change. Nil fields
// are left untouched.
type Update struct {
	Name                 *string
	TargetURL            *string
	Institution          *string
	LinkedAccountID      *string
	Steps                *[]InteractionStep
	LastRunAt            *time.Time
	LastExtractionMethod *string
}
