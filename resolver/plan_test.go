package resolver

import (
	"testing"

	"bankflow/recipes"
)

func step(coords *recipes.Coordinates, strategy recipes.Strategy) recipes.InteractionStep {
	return recipes.InteractionStep{
		Kind:        recipes.StepClick,
		Target:      recipes.TargetDescriptor{Strategy: strategy, Selector: "button#go"},
		Coordinates: coords,
	}
}

func TestPlanCoordinateFirstOrdering(t *testing.T) {
	coords := &recipes.Coordinates{PointX: 10, PointY: 20, CenterX: 15, CenterY: 25, ScrollX: 0, ScrollY: 300}
	probes := Plan(step(coords, recipes.StrategyStructural))
	want := []ProbeKind{ProbePointExact, ProbePointCenter, ProbePointScrolled, ProbeDescriptor}
	if len(probes) != len(want) {
		t.Fatalf("probe count: got %d want %d", len(probes), len(want))
	}
	for i, k := range want {
		if probes[i].Kind != k {
			t.Fatalf("probe %d: got %s want %s", i, probes[i].Kind, k)
		}
	}
	if probes[1].X != 15 || probes[1].Y != 25 {
		t.Fatalf("center probe uses element center: %+v", probes[1])
	}
	if probes[2].ScrollY != 300 {
		t.Fatalf("scrolled probe carries recorded scroll: %+v", probes[2])
	}
}

func TestPlanDescriptorOnlyWithoutCoordinates(t *testing.T) {
	probes := Plan(step(nil, recipes.StrategySemantic))
	if len(probes) != 1 || probes[0].Kind != ProbeDescriptor {
		t.Fatalf("got %+v", probes)
	}
}

func TestPlanEmptyWhenNothingUsable(t *testing.T) {
	probes := Plan(step(nil, recipes.StrategyNone))
	if len(probes) != 0 {
		t.Fatalf("expected empty plan, got %+v", probes)
	}
}
