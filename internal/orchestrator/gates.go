package orchestrator

import (
	"math"

	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

// gateA evaluates spec §4.5.5 Gate A: regime & venue health, plus HTF
// structure-break hard veto.
func (r *Runtime) gateA(in Input, side types.Side) bool {
	if htfHardVeto(in.HTF, side) {
		return false
	}
	return in.Trendiness >= r.cfg.GateATrendinessMin &&
		in.Chop <= r.cfg.GateAChopMax &&
		in.VolOfVol <= r.cfg.GateAVolOfVolMax &&
		in.SpreadPct <= r.cfg.GateASpreadPctMax &&
		in.OI.Delta > r.cfg.GateAOIDropThreshold
}

// htfHardVeto implements spec §4.5.10's hard veto: BUY on a down
// structure-break, or SELL on an up structure-break, fails Gate A outright.
func htfHardVeto(htf HTFContext, side types.Side) bool {
	switch side {
	case types.Long:
		return htf.StructureBreakDn
	case types.Short:
		return htf.StructureBreakUp
	default:
		return false
	}
}

// htfSoftBiasRequiresExtraConfirm implements spec §4.5.10's soft bias: an
// entry at/through a swing level (without an opposing break) needs one
// extra confirmation tick.
func htfSoftBiasRequiresExtraConfirm(htf HTFContext, side types.Side, price decimal.Decimal) bool {
	switch side {
	case types.Long:
		return !htf.StructureBreakDn && !htf.SwingLow.IsZero() && price.LessThanOrEqual(htf.SwingLow)
	case types.Short:
		return !htf.StructureBreakUp && !htf.SwingHigh.IsZero() && price.GreaterThanOrEqual(htf.SwingHigh)
	default:
		return false
	}
}

// gateB evaluates spec §4.5.5 Gate B: side-aligned flow.
func (r *Runtime) gateB(side types.Side) bool {
	if side == types.Flat {
		return false
	}
	obiDeepAligned := sideAligned(side, r.SmoothedObiDeep)
	cvdAligned := sideAligned(side, r.smoothedCvdSlope())
	return obiDeepAligned && math.Abs(r.SmoothedDeltaZ) >= r.cfg.GateBMinAbsDeltaZ && cvdAligned
}

func sideAligned(side types.Side, signedValue float64) bool {
	switch side {
	case types.Long:
		return signedValue > 0
	case types.Short:
		return signedValue < 0
	default:
		return false
	}
}

// gateC evaluates spec §4.5.5 Gate C: micro-distance from session VWAP and
// realized volatility bound.
func (r *Runtime) gateC(in Input) bool {
	if in.SessionVWAP.IsZero() {
		return false
	}
	dist := in.Mid.Sub(in.SessionVWAP).Abs().Div(in.SessionVWAP)
	distF, _ := dist.Float64()
	return distF <= r.cfg.GateCMaxVwapDistancePct && in.RealizedVol1m <= r.cfg.GateCMaxRealizedVol1m
}

// impulse evaluates spec §4.5.6: used only for chase-timeout fallback
// eligibility.
func (r *Runtime) impulse(in Input) bool {
	return in.TAS.PrintsPerSecond >= r.cfg.ImpulseMinPrintsPerSecond &&
		math.Abs(r.SmoothedDeltaZ) >= r.cfg.ImpulseMinAbsDeltaZ &&
		in.SpreadPct <= r.cfg.GateASpreadPctMax*r.cfg.ImpulseSpreadMultiplier
}
