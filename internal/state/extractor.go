// Package state implements the StateExtractor: per-tick classification of
// continuous flow/book/derivatives inputs into the stabilized categorical
// DeterministicState (spec §3, §4.4).
//
// Grounded on other_examples/be85ae75_ninja0404-trades-ai's
// feature-extractor.go threshold-switch determine*() classification idiom,
// reused directly for each of the six dimensions below.
package state

import "math"

import "orderflow-core/pkg/types"

func clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// RawInputs is the continuous-valued feature set the StateExtractor
// classifies each tick, gathered from the book, flow aggregators, and
// derivatives monitors.
type RawInputs struct {
	// flow
	AbsorptionConfirmed bool
	AbsorptionValue     float64
	DeltaZ              float64
	CVD                 float64

	// regime
	VolatilityPercentile float64
	VolOfVol             float64
	Trendiness           float64
	Chop                 float64

	// derivatives
	LiqProxy    float64
	OIChangePct float64 // fraction, e.g. -0.0015 = -0.15%
	DeltaSign   float64

	// toxicity
	VPIN        float64
	BurstScore  float64
	ImpactCoeff float64

	// execution
	SpreadBps   float64
	SlippageBps float64

	// directional bias
	Delta               float64
	ObiDeep             float64
	ObiWeighted         float64
	AggressiveImbalance float64
	OIAligned           float64
	PerpBasis           float64
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func classifyFlow(in RawInputs) (types.FlowState, float64) {
	if in.AbsorptionConfirmed && in.AbsorptionValue >= 0.55 {
		return types.FlowAbsorption, clean(in.AbsorptionValue)
	}
	if math.Abs(in.DeltaZ) >= 1.2 && math.Abs(in.CVD) >= 12_000 && sign(in.DeltaZ) == sign(in.CVD) {
		return types.FlowExpansion, 0.8
	}
	if sign(in.DeltaZ) != 0 && sign(in.CVD) != 0 && sign(in.DeltaZ) != sign(in.CVD) {
		return types.FlowExhaustion, 0.6
	}
	return types.FlowNeutral, 0.5
}

func classifyRegime(in RawInputs) (types.RegimeState, float64) {
	if in.VolatilityPercentile >= 96 || in.VolOfVol >= 0.11 {
		return types.RegimeVolExpansion, 0.9
	}
	if in.Trendiness >= 0.24 && in.Trendiness > in.Chop+0.03 {
		return types.RegimeTrend, 0.75
	}
	if in.Chop >= 0.35 && in.Chop > in.Trendiness+0.05 {
		return types.RegimeChop, 0.75
	}
	return types.RegimeTransition, 0.5
}

func classifyDerivatives(in RawInputs) (types.DerivativesState, float64) {
	if in.LiqProxy >= 0.65 {
		return types.DerivSqueezeRisk, 0.85
	}
	if in.OIChangePct <= -0.0015 {
		return types.DerivDeleverage, 0.7
	}
	if in.DeltaSign >= 0 {
		return types.DerivLongBuild, 0.6
	}
	return types.DerivShortBuild, 0.6
}

func classifyToxicity(in RawInputs) (types.ToxicityState, float64) {
	if (in.VPIN >= 0.88 && in.BurstScore >= 0.75) || in.BurstScore >= 0.93 || in.ImpactCoeff >= 1.2e-4 {
		return types.ToxicityToxic, 0.9
	}
	if in.VPIN >= 0.6 || in.BurstScore >= 0.5 || in.ImpactCoeff >= 0.6e-4 {
		return types.ToxicityAggressive, 0.65
	}
	return types.ToxicityClean, 0.5
}

func classifyExecution(in RawInputs) (types.ExecutionState, float64) {
	if in.SpreadBps >= 24 || in.SlippageBps >= 14 || (in.SpreadBps >= 18 && in.SlippageBps >= 10) {
		return types.ExecutionLowResiliency, 0.85
	}
	if in.SpreadBps >= 14 || in.SlippageBps >= 7 {
		return types.ExecutionWideningSpread, 0.6
	}
	return types.ExecutionHealthy, 0.5
}

func classifyBias(in RawInputs, regime types.RegimeState, toxicity types.ToxicityState, execution types.ExecutionState) (types.DirectionalBias, float64) {
	score := 0.25*math.Tanh(in.DeltaZ/3) +
		0.20*math.Tanh(in.CVD/50_000) +
		0.15*math.Tanh(in.ObiDeep) +
		0.10*math.Tanh(in.ObiWeighted) +
		0.10*in.AggressiveImbalance +
		0.10*in.OIAligned +
		0.05*sign(in.Delta) +
		0.05*math.Tanh(in.PerpBasis*1000)
	score = clean(score)

	// Contextual damping: noisy/toxic/illiquid conditions shrink confidence
	// in the directional read rather than amplify it.
	damping := 1.0
	if toxicity == types.ToxicityToxic || execution == types.ExecutionLowResiliency || regime == types.RegimeVolExpansion {
		damping = 0.5
	}
	score *= damping

	threshold := 0.20
	if regime == types.RegimeChop {
		threshold = 0.28
	}

	switch {
	case score >= threshold:
		return types.BiasLong, clean(math.Min(1, math.Abs(score)))
	case score <= -threshold:
		return types.BiasShort, clean(math.Min(1, math.Abs(score)))
	default:
		return types.BiasNeutral, 0.5
	}
}

// stabilizedField applies the spec §3/§9 hysteresis rule: a candidate
// differing from the current value must be observed >= 2 consecutive ticks
// to take effect, unless it belongs to the dimension's CRITICAL set, which
// takes effect immediately.
type stabilizedField struct {
	current          string
	pendingCandidate string
	pendingCount     int
}

func (s *stabilizedField) update(candidate string, critical bool) string {
	if s.current == "" {
		s.current = candidate
		return s.current
	}
	if candidate == s.current {
		s.pendingCandidate = ""
		s.pendingCount = 0
		return s.current
	}
	if critical {
		s.current = candidate
		s.pendingCandidate = ""
		s.pendingCount = 0
		return s.current
	}
	if candidate == s.pendingCandidate {
		s.pendingCount++
	} else {
		s.pendingCandidate = candidate
		s.pendingCount = 1
	}
	if s.pendingCount >= 2 {
		s.current = candidate
		s.pendingCandidate = ""
		s.pendingCount = 0
	}
	return s.current
}

// StateExtractor holds the per-symbol hysteresis memory across ticks.
type StateExtractor struct {
	flow        stabilizedField
	regime      stabilizedField
	derivatives stabilizedField
	toxicity    stabilizedField
	execution   stabilizedField
	bias        stabilizedField

	volHistory []float64
}

// NewStateExtractor creates an extractor with empty hysteresis memory.
func NewStateExtractor() *StateExtractor {
	return &StateExtractor{}
}

// VolatilityPercentile computes the percentile rank of current within the
// extractor's rolling window of size ∈ [5,20] of prior volatility values.
// With fewer than 3 prior samples it returns 50 (spec §8 boundary case).
func (e *StateExtractor) VolatilityPercentile(current float64) float64 {
	defer e.pushVol(current)
	if len(e.volHistory) < 3 {
		return 50
	}
	below := 0
	for _, v := range e.volHistory {
		if v <= current {
			below++
		}
	}
	return clean(100 * float64(below) / float64(len(e.volHistory)))
}

func (e *StateExtractor) pushVol(v float64) {
	const maxWindow = 20
	e.volHistory = append(e.volHistory, v)
	if len(e.volHistory) > maxWindow {
		e.volHistory = e.volHistory[len(e.volHistory)-maxWindow:]
	}
}

// Extract classifies RawInputs into a stabilized DeterministicState,
// mutating the extractor's hysteresis memory.
func (e *StateExtractor) Extract(in RawInputs, cvdSlopeSign, oiDirection types.TrendSign, spreadBps, slippageBps float64) types.DeterministicState {
	flowCand, flowConf := classifyFlow(in)
	regimeCand, regimeConf := classifyRegime(in)
	derivCand, derivConf := classifyDerivatives(in)
	toxCand, toxConf := classifyToxicity(in)
	execCand, execConf := classifyExecution(in)

	regime := types.RegimeState(e.regime.update(string(regimeCand), regimeCand == types.RegimeVolExpansion))
	toxicity := types.ToxicityState(e.toxicity.update(string(toxCand), toxCand == types.ToxicityToxic))
	execution := types.ExecutionState(e.execution.update(string(execCand), execCand == types.ExecutionLowResiliency))
	flow := types.FlowState(e.flow.update(string(flowCand), false))
	derivatives := types.DerivativesState(e.derivatives.update(string(derivCand), false))

	biasCand, biasConf := classifyBias(in, regime, toxicity, execution)
	bias := types.DirectionalBias(e.bias.update(string(biasCand), false))

	confidence := (flowConf + regimeConf + derivConf + toxConf + execConf + biasConf) / 6

	return types.DeterministicState{
		Flow:                 flow,
		Regime:               regime,
		Derivatives:          derivatives,
		Toxicity:             toxicity,
		Execution:            execution,
		DirectionalBias:      bias,
		CVDSlopeSign:         cvdSlopeSign,
		OIDirection:          oiDirection,
		StateConfidence:      clean(confidence),
		VolatilityPercentile: in.VolatilityPercentile,
		SpreadBps:            spreadBps,
		ExpectedSlippageBps:  slippageBps,
	}
}
