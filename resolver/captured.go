// Package resolver turns raw element facts captured in the live page into
// replayable target descriptors, and plans the ordered resolution probes the
// playback engine executes against a fresh page.
package resolver

// CapturedElement is the fact bundle the injected capture script reports for
// an event target. The script gathers raw observations only; all selection
// policy lives on the Go side so it stays testable.
type CapturedElement struct {
	Tag         string         `json:"tag"`
	Type        string         `json:"type,omitempty"` // input type attribute
	Role        string         `json:"role,omitempty"`
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	NameMatches int            `json:"name_matches,omitempty"` // elements on page sharing the name
	Placeholder string         `json:"placeholder,omitempty"`
	AriaLabel   string         `json:"aria_label,omitempty"`
	LabelText   string         `json:"label_text,omitempty"` // via for= or spatial proximity
	Text        string         `json:"text,omitempty"`       // trimmed visible text
	Classes     []string       `json:"classes,omitempty"`
	TextClass   string         `json:"text_class,omitempty"` // class of the descendant carrying Text
	Ancestors   []AncestorInfo `json:"ancestors,omitempty"`  // nearest first, capture script sends up to 3

	PointX         float64 `json:"point_x"` // viewport coordinates of the interaction
	PointY         float64 `json:"point_y"`
	CenterX        float64 `json:"center_x"` // element bounding-box center
	CenterY        float64 `json:"center_y"`
	ViewportWidth  int     `json:"viewport_width"`
	ViewportHeight int     `json:"viewport_height"`
	ScrollX        float64 `json:"scroll_x"`
	ScrollY        float64 `json:"scroll_y"`

	InOverlay bool `json:"in_overlay,omitempty"` // target sits inside recorder/player chrome
}

// AncestorInfo is one level of the target's ancestor chain.
type AncestorInfo struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
}
