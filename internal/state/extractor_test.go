package state

import (
	"testing"

	"orderflow-core/pkg/types"
)

func TestVolatilityPercentileSmallSampleDefaultsTo50(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	e.VolatilityPercentile(1)
	e.VolatilityPercentile(2)
	if got := e.VolatilityPercentile(3); got != 50 {
		t.Fatalf("VolatilityPercentile with <3 prior samples = %v, want 50", got)
	}
}

func TestVolatilityPercentileRanksWithinWindow(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	for _, v := range []float64{1, 2, 3, 4} {
		e.VolatilityPercentile(v)
	}
	// Prior window is now {1,2,3,4}; 10 ranks above all of them.
	if got := e.VolatilityPercentile(10); got != 100 {
		t.Fatalf("VolatilityPercentile(10) = %v, want 100", got)
	}
}

func TestExtractClassifiesAbsorptionAsFlowState(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	in := RawInputs{AbsorptionConfirmed: true, AbsorptionValue: 0.8}
	got := e.Extract(in, types.SignFlat, types.SignFlat, 5, 2)
	if got.Flow != types.FlowAbsorption {
		t.Fatalf("Flow = %v, want ABSORPTION", got.Flow)
	}
}

func TestExtractRegimeHysteresisRequiresTwoTicks(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	base := RawInputs{Trendiness: 0.1, Chop: 0.1}
	got := e.Extract(base, types.SignFlat, types.SignFlat, 5, 2)
	if got.Regime != types.RegimeTransition {
		t.Fatalf("initial Regime = %v, want TRANSITION", got.Regime)
	}

	trendCandidate := RawInputs{Trendiness: 0.3, Chop: 0.05}
	got = e.Extract(trendCandidate, types.SignFlat, types.SignFlat, 5, 2)
	if got.Regime != types.RegimeTransition {
		t.Fatalf("Regime flipped after a single tick: %v, want still TRANSITION", got.Regime)
	}

	got = e.Extract(trendCandidate, types.SignFlat, types.SignFlat, 5, 2)
	if got.Regime != types.RegimeTrend {
		t.Fatalf("Regime after two consecutive TREND ticks = %v, want TREND", got.Regime)
	}
}

func TestExtractVolExpansionIsCriticalAndAppliesInstantly(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	e.Extract(RawInputs{Trendiness: 0.1, Chop: 0.1}, types.SignFlat, types.SignFlat, 5, 2)

	got := e.Extract(RawInputs{VolatilityPercentile: 99}, types.SignFlat, types.SignFlat, 5, 2)
	if got.Regime != types.RegimeVolExpansion {
		t.Fatalf("Regime = %v, want VOL_EXPANSION to apply on the first tick (critical set)", got.Regime)
	}
}

func TestExtractToxicityCriticalSetAppliesInstantly(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	got := e.Extract(RawInputs{VPIN: 0.95, BurstScore: 0.95}, types.SignFlat, types.SignFlat, 5, 2)
	if got.Toxicity != types.ToxicityToxic {
		t.Fatalf("Toxicity = %v, want TOXIC on first tick", got.Toxicity)
	}
}

func TestExtractExecutionLowResiliencyCriticalSetAppliesInstantly(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	got := e.Extract(RawInputs{SpreadBps: 30}, types.SignFlat, types.SignFlat, 30, 20)
	if got.Execution != types.ExecutionLowResiliency {
		t.Fatalf("Execution = %v, want LOW_RESILIENCY on first tick", got.Execution)
	}
}

func TestExtractBiasLongOnSustainedPositiveScore(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	in := RawInputs{DeltaZ: 2.5, CVD: 30_000, ObiDeep: 1, ObiWeighted: 1, AggressiveImbalance: 0.5, OIAligned: 0.5}
	got := e.Extract(in, types.SignUp, types.SignUp, 5, 2)
	if got.DirectionalBias != types.BiasLong {
		t.Fatalf("DirectionalBias = %v, want LONG", got.DirectionalBias)
	}
}

func TestExtractBiasNeutralNearZeroScore(t *testing.T) {
	t.Parallel()
	e := NewStateExtractor()
	got := e.Extract(RawInputs{}, types.SignFlat, types.SignFlat, 5, 2)
	if got.DirectionalBias != types.BiasNeutral {
		t.Fatalf("DirectionalBias = %v, want NEUTRAL on zero inputs", got.DirectionalBias)
	}
}
