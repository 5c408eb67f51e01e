package orchestrator

import (
	"math"

	"orderflow-core/pkg/types"
)

// evaluateExits implements spec §4.5.9's priority-ordered exit paths:
// EXIT_FLIP (2-step reversal) > CROSSMARKET_MISMATCH > EXIT_RISK. Only one
// path fires per tick; the exit ladder (maker attempts then one taker) is
// shared across all three.
func (r *Runtime) evaluateExits(in Input) (types.ExitStatus, []types.OrderIntent) {
	if !r.hasPosition() {
		r.resetExitEpisode()
		return types.ExitStatus{}, nil
	}

	if reason, fire := r.checkExitFlip(in); fire {
		return r.runExitLadder(in, reason)
	}
	if reason, fire := r.checkCrossMarketMismatch(in); fire {
		return r.runExitLadder(in, reason)
	}
	if reason, fire := r.checkExitRisk(in); fire {
		return r.runExitLadder(in, reason)
	}

	// checkExitFlip/checkCrossMarketMismatch already reset their own
	// persistence state when the adverse condition no longer holds.
	return types.ExitStatus{}, nil
}

// checkExitFlip implements the 2-step reversal: the legacy flow candidate
// must oppose the position side, persist for flipPersistConfirmations
// ticks, AND remain opposed for at least minFlipIntervalMs of wall time.
func (r *Runtime) checkExitFlip(in Input) (string, bool) {
	candidate := r.candidateSide(legacyObiDeep(in))
	opposesPosition := candidate != types.Flat && candidate != r.Side

	if !opposesPosition {
		r.FlipDetectedSide = types.Flat
		r.FlipFirstDetectedMs = 0
		r.FlipPersistenceCount = 0
		return "", false
	}

	if r.FlipDetectedSide != candidate {
		r.FlipDetectedSide = candidate
		r.FlipFirstDetectedMs = in.NowMs
		r.FlipPersistenceCount = 1
	} else {
		r.FlipPersistenceCount++
	}

	need := r.cfg.FlipPersistConfirmations
	if need <= 0 {
		need = 3
	}
	if r.FlipPersistenceCount >= need && in.NowMs-r.FlipFirstDetectedMs >= r.cfg.MinFlipIntervalMs {
		return "EXIT_FLIP", true
	}
	return "", false
}

// checkCrossMarketMismatch implements spec §4.5.11's anchor bias veto as an
// exit trigger: a position opposite the BTC-derived anchor side, sustained
// for at least crossMarketPersistMs, forces an exit (never applied to BTC
// itself).
func (r *Runtime) checkCrossMarketMismatch(in Input) (string, bool) {
	if in.Anchor.IsAnchorSymbol {
		return "", false
	}

	anchorSide := anchorBias(in.Anchor)
	if anchorSide == types.Flat || anchorSide == r.Side {
		r.CrossMarketMismatchActive = false
		return "", false
	}

	if !r.CrossMarketMismatchActive {
		r.CrossMarketMismatchActive = true
		r.CrossMarketMismatchSinceMs = in.NowMs
	}
	if in.NowMs-r.CrossMarketMismatchSinceMs >= r.cfg.CrossMarketPersistMs {
		r.Telemetry.CrossMarketVetoCount++
		return "CROSSMARKET_MISMATCH", true
	}
	return "", false
}

// checkExitRisk implements spec §4.5.9.3's three sub-reasons.
func (r *Runtime) checkExitRisk(in Input) (string, bool) {
	if in.OrderbookIntegrityLevel > r.cfg.ExitRiskIntegrityThreshold {
		return "EXIT_RISK:INTEGRITY", true
	}
	if in.Trendiness < r.cfg.ExitRiskTrendinessMin || in.Chop > r.cfg.ExitRiskChopMax {
		return "EXIT_RISK:REGIME", true
	}

	cvdOpposed := sideAligned(oppositeSide(r.Side), in.CVD.Slope5m)
	obiAdverse := sideAligned(oppositeSide(r.Side), legacyObiDeep(in))
	deltaZAdverse := math.Abs(r.SmoothedDeltaZ) >= r.cfg.GateBMinAbsDeltaZ && sideAligned(oppositeSide(r.Side), r.SmoothedDeltaZ)
	if cvdOpposed && obiAdverse && deltaZAdverse {
		return "EXIT_RISK:FLOW_FLIP", true
	}
	return "", false
}

// runExitLadder emits up to exitMakerAttempts MAKER exits at best-of-opposing
// side before falling back to exactly one TAKER_RISK_EXIT (spec §4.5.9).
func (r *Runtime) runExitLadder(in Input, reason string) (types.ExitStatus, []types.OrderIntent) {
	r.ExitRiskActive = true
	exitSide := oppositeSide(r.Side)

	maxAttempts := r.cfg.ExitMakerAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	if r.ExitTakerUsed {
		return types.ExitStatus{Active: true, Reason: reason}, nil
	}

	if r.ExitMakerAttemptsUsed < maxAttempts {
		r.ExitMakerAttemptsUsed++
		price := in.BestAsk
		if exitSide == types.Short {
			price = in.BestBid
		}
		order := types.OrderIntent{Kind: types.KindMakerPostOnly, Side: exitSide, Price: price, Qty: r.PositionQty}
		return types.ExitStatus{Active: true, Reason: reason}, []types.OrderIntent{order}
	}

	r.ExitTakerUsed = true
	order := types.OrderIntent{Kind: types.KindTaker, Side: exitSide, Qty: r.PositionQty}
	r.CooldownUntilMs = in.NowMs + r.cooldownDurationMs()
	return types.ExitStatus{Active: true, Reason: reason}, []types.OrderIntent{order}
}

func (r *Runtime) resetExitEpisode() {
	r.ExitRiskActive = false
	r.ExitMakerAttemptsUsed = 0
	r.ExitTakerUsed = false
	r.FlipDetectedSide = types.Flat
	r.FlipFirstDetectedMs = 0
	r.FlipPersistenceCount = 0
	r.CrossMarketMismatchActive = false
	r.CrossMarketMismatchSinceMs = 0
}

func oppositeSide(side types.Side) types.Side {
	switch side {
	case types.Long:
		return types.Short
	case types.Short:
		return types.Long
	default:
		return types.Flat
	}
}

func legacyObiDeep(in Input) float64 {
	v, _ := in.Legacy.OBIDeep.Float64()
	return v
}

// anchorBias implements spec §4.5.11's btcBias derivation.
func anchorBias(a AnchorContext) types.Side {
	switch {
	case a.BTCH1Up && a.BTCH4Up && !a.BTCH1Dn && !a.BTCH4Dn:
		return types.Long
	case a.BTCH1Dn && a.BTCH4Dn && !a.BTCH1Up && !a.BTCH4Up:
		return types.Short
	case a.BTCHasPosition:
		return a.BTCPositionSide
	default:
		return types.Flat
	}
}
