package orchestrator

import "orderflow-core/pkg/types"

// candidateSide computes spec §4.5.4's raw side score. The weight
// constants default to the spec's literal values but are
// OrchestratorConfig fields (spec §9 open question: empirical, not
// invariant).
func (r *Runtime) candidateSide(obiDeep float64) types.Side {
	wZ := r.cfg.SideScoreDeltaZWeight
	wCvd := r.cfg.SideScoreCvdSlopeWeight
	wObi := r.cfg.SideScoreObiDeepWeight

	score := wZ*r.SmoothedDeltaZ + wCvd*r.smoothedCvdSlope() + wObi*obiDeep
	switch {
	case score > 0:
		return types.Long
	case score < 0:
		return types.Short
	default:
		return types.Flat
	}
}

// updateSide applies the hysteresis rule (spec §4.5.4): a candidate
// opposite the current effective micro side only takes effect after
// consecutiveConfirmations AND both the min-hold and min-flip-interval
// timers have elapsed.
func (r *Runtime) updateSide(candidate types.Side, nowMs int64) {
	if candidate == r.MicroSide {
		r.ConfirmCountLong = 0
		r.ConfirmCountShort = 0
		return
	}

	switch candidate {
	case types.Long:
		r.ConfirmCountLong++
		r.ConfirmCountShort = 0
	case types.Short:
		r.ConfirmCountShort++
		r.ConfirmCountLong = 0
	default:
		r.ConfirmCountLong = 0
		r.ConfirmCountShort = 0
		return
	}

	need := r.cfg.ConsecutiveConfirmations
	if need <= 0 {
		need = 3
	}
	confirmCount := r.ConfirmCountLong
	if candidate == types.Short {
		confirmCount = r.ConfirmCountShort
	}
	if confirmCount < need {
		return
	}

	heldLongEnough := nowMs-r.LastSideChangeTsMs >= r.cfg.MinHoldMs
	flipIntervalOK := nowMs-r.LastSideChangeTsMs >= r.cfg.MinFlipIntervalMs
	if !heldLongEnough || !flipIntervalOK {
		return
	}

	r.MicroSide = candidate
	r.LastSideChangeTsMs = nowMs
	r.ConfirmCountLong = 0
	r.ConfirmCountShort = 0
	r.recordSideFlip(nowMs)
}
