package orchestrator

import (
	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

const (
	chaseIdle     = "IDLE"
	chaseChasing  = "CHASING"
	chaseTimedOut = "TIMED_OUT"
)

// evaluateChase drives spec §4.5.7's entry chase state machine. gates is
// the AllEffective result from evaluateGates; allGatesRaw/impulseOK are
// needed separately for timeout-fallback eligibility, which only requires
// the raw gates (not the hysteresis-confirmed ones).
func (r *Runtime) evaluateChase(in Input, allGatesEffective, allGatesRaw, impulseOK bool, side types.Side) ([]types.OrderIntent, bool) {
	var orders []types.OrderIntent

	if in.NowMs < r.CooldownUntilMs {
		return orders, false
	}

	switch r.ChaseState {
	case chaseIdle:
		if !allGatesEffective {
			return orders, false
		}
		r.ChaseActive = true
		if !r.chaseWasActive() {
			r.ChaseStartTsMs = in.NowMs
			r.TakerFallbackUsed = false
		}
		r.ChaseState = chaseChasing
		r.RepricesUsed = 0
		r.ChaseLastRepriceTsMs = in.NowMs
		orders = r.chaseLayerOrders(in, side)
		return orders, false

	case chaseChasing:
		elapsed := in.NowMs - r.ChaseStartTsMs
		maxMs := int64(r.cfg.ChaseMaxSeconds) * 1000

		if elapsed >= maxMs || r.RepricesUsed >= r.cfg.ChaseMaxReprices {
			r.ChaseState = chaseTimedOut
			r.ChaseActive = false
			r.ChaseTimedOutCount++
			r.Telemetry.ChaseTimedOutCount++
			return r.chaseTimedOutFallback(in, allGatesRaw, impulseOK, side)
		}

		if allGatesEffective && in.NowMs-r.ChaseLastRepriceTsMs >= r.cfg.ChaseRepriceMs {
			orders = r.chaseLayerOrders(in, side)
			r.RepricesUsed++
			r.ChaseLastRepriceTsMs = in.NowMs
			return orders, false
		}

		if !allGatesRaw {
			r.abortChase(in.NowMs)
			return orders, false
		}

		return orders, false

	case chaseTimedOut:
		return r.chaseTimedOutFallback(in, allGatesRaw, impulseOK, side)

	default:
		r.ChaseState = chaseIdle
		return orders, false
	}
}

// chaseTimedOutFallback evaluates TIMED_OUT's taker-fallback eligibility.
// Reached either on the same tick the chase times out, or on a later tick
// if it wasn't yet eligible (spec §4.5.7).
func (r *Runtime) chaseTimedOutFallback(in Input, allGatesRaw, impulseOK bool, side types.Side) ([]types.OrderIntent, bool) {
	if r.TakerFallbackUsed {
		r.resetChase(in.NowMs)
		return nil, false
	}

	fallbackEligible := impulseOK && allGatesRaw
	if !fallbackEligible {
		r.resetChase(in.NowMs)
		return nil, false
	}

	notionalPct := r.cfg.MaxFallbackNotionalPct
	if notionalPct <= 0 || notionalPct > 0.25 {
		notionalPct = 0.25
	}
	r.TakerFallbackUsed = true
	order := types.OrderIntent{
		Kind:        types.KindTaker,
		Side:        side,
		NotionalPct: notionalPct,
	}
	r.resetChase(in.NowMs)
	return []types.OrderIntent{order}, true
}

func (r *Runtime) chaseWasActive() bool {
	return r.ChaseStartTsMs != 0 && r.ChaseActive
}

func (r *Runtime) abortChase(nowMs int64) {
	r.ChaseActive = false
	r.ChaseState = chaseIdle
	r.CooldownUntilMs = nowMs + r.cooldownDurationMs()
}

func (r *Runtime) resetChase(nowMs int64) {
	r.ChaseActive = false
	r.ChaseState = chaseIdle
	r.ChaseStartTsMs = 0
	r.RepricesUsed = 0
	r.CooldownUntilMs = nowMs + r.cooldownDurationMs()
}

func (r *Runtime) chaseLayerOrders(in Input, side types.Side) []types.OrderIntent {
	frac := r.cfg.ChaseLayerSpreadFrac
	if frac <= 0 {
		frac = 0.25
	}

	offset := decimal.NewFromFloat(frac * in.SpreadPct)
	one := decimal.NewFromInt(1)

	best := in.BestBid
	layered := best.Mul(one.Sub(offset))
	if side == types.Short {
		best = in.BestAsk
		layered = best.Mul(one.Add(offset))
	}

	return []types.OrderIntent{
		{Kind: types.KindMakerPostOnly, Side: side, Price: best},
		{Kind: types.KindMakerPostOnly, Side: side, Price: layered},
	}
}
