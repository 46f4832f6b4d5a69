package resolver

import "bankflow/recipes"

// ProbeKind orders the resolution attempts playback makes for one step.
type ProbeKind string

const (
	// ProbePointExact resolves the element under the exact recorded point.
	ProbePointExact ProbeKind = "point_exact"
	// ProbePointCenter resolves under the recorded element-center point.
	ProbePointCenter ProbeKind = "point_center"
	// ProbePointScrolled re-applies the recorded point shifted by the
	// difference between the recorded and the current scroll offsets.
	ProbePointScrolled ProbeKind = "point_scrolled"
	// ProbeDescriptor falls back to the step's selector descriptor.
	ProbeDescriptor ProbeKind = "descriptor"
)

// Probe is one resolution attempt. Point probes carry the recorded viewport
// point and scroll snapshot; the page-side resolver compares the recorded
// scroll against the live one. Descriptor probes carry the tagged selector.
type Probe struct {
	Kind       ProbeKind                 `json:"kind"`
	X          float64                   `json:"x,omitempty"`
	Y          float64                   `json:"y,omitempty"`
	ScrollX    float64                   `json:"scroll_x,omitempty"`
	ScrollY    float64                   `json:"scroll_y,omitempty"`
	Descriptor *recipes.TargetDescriptor `json:"descriptor,omitempty"`
}

// Plan returns the ordered probes for a step: coordinate strategies first,
// since they degrade more gracefully across minor layout drift, then the
// descriptor as a secondary fallback. A step with neither coordinates nor a
// usable descriptor gets an empty plan and fails immediately.
func Plan(step recipes.InteractionStep) []Probe {
	var probes []Probe
	if c := step.Coordinates; c != nil {
		probes = append(probes,
			Probe{Kind: ProbePointExact, X: c.PointX, Y: c.PointY, ScrollX: c.ScrollX, ScrollY: c.ScrollY},
			Probe{Kind: ProbePointCenter, X: c.CenterX, Y: c.CenterY, ScrollX: c.ScrollX, ScrollY: c.ScrollY},
			Probe{Kind: ProbePointScrolled, X: c.PointX, Y: c.PointY, ScrollX: c.ScrollX, ScrollY: c.ScrollY},
		)
	}
	if d := step.Target; d.Strategy != recipes.StrategyNone && d.Strategy != "" {
		dd := d
		probes = append(probes, Probe{Kind: ProbeDescriptor, Descriptor: &dd})
	}
	return probes
}
