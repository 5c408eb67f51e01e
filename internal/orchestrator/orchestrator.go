package orchestrator

import "orderflow-core/pkg/types"

// Evaluate runs one tick of the per-symbol state machine (spec §4.5):
// position sync -> smoothing -> readiness -> side selection -> gates ->
// impulse -> exits (priority over entries) -> add ladder when a position is
// open, else anchor veto and chase, returning the Decision and mutating
// Runtime in place.
func (r *Runtime) Evaluate(in Input) types.Decision {
	r.SyncPosition(in.Position, in.HasPosition)
	r.smooth(in)

	ready, readyReasons := r.readiness(in)

	candidate := r.candidateSide(legacyObiDeep(in))
	r.updateSide(candidate, in.NowMs)

	decidingSide := r.MicroSide
	if r.hasPosition() {
		decidingSide = r.Side
	}

	gates := r.evaluateGates(in, ready, readyReasons, decidingSide)
	impulseOK := r.impulse(in)

	exitStatus, exitOrders := r.evaluateExits(in)
	if exitStatus.Active {
		return r.buildDecision(types.IntentExit, r.Side, gates, types.AddStatus{}, exitStatus, exitOrders)
	}

	if r.hasPosition() {
		if sideMismatchBlocksEntry(true, r.Side, r.MicroSide) {
			return r.buildDecision(types.IntentHold, r.Side, gates, types.AddStatus{}, exitStatus, nil)
		}
		addStatus, addOrders := r.evaluateAddLadder(in, gates.GateA)
		if addStatus.Triggered {
			return r.buildDecision(types.IntentAdd, r.Side, gates, addStatus, exitStatus, addOrders)
		}
		return r.buildDecision(types.IntentHold, r.Side, gates, types.AddStatus{}, exitStatus, nil)
	}

	if r.anchorVetoesEntry(in, r.MicroSide) {
		return r.buildDecision(types.IntentHold, r.MicroSide, gates, types.AddStatus{}, exitStatus, nil)
	}

	allGatesRaw := ready && gates.GateA && gates.GateB && gates.GateC && r.MicroSide != types.Flat
	chaseOrders, filledViaFallback := r.evaluateChase(in, gates.AllEffective, allGatesRaw, impulseOK, r.MicroSide)

	intent := types.IntentHold
	if len(chaseOrders) > 0 {
		intent = types.IntentEnter
		r.recordEntryIntent(in.NowMs)
	}
	// filledViaFallback marks a TAKER_ENTRY_FALLBACK order; baseQty/position
	// are seeded once the external FillSink confirms the fill (§4.5.2).
	_ = filledViaFallback

	return r.buildDecision(intent, r.MicroSide, gates, types.AddStatus{}, exitStatus, chaseOrders)
}

func (r *Runtime) buildDecision(intent types.IntentType, side types.Side, gates types.GateResult, add types.AddStatus, exit types.ExitStatus, orders []types.OrderIntent) types.Decision {
	var reasons []string
	if intent == types.IntentHold {
		reasons = gates.ReadyReasons
	}
	return types.Decision{
		Intent:   intent,
		Side:     side,
		Gates:    gates,
		Add:      add,
		ExitRisk: exit,
		Position: types.PositionView{
			Side:      r.Side,
			Qty:       r.PositionQty,
			EntryVWAP: r.EntryVWAP,
			BaseQty:   r.BaseQty,
			AddsUsed:  r.AddsUsed,
		},
		Orders: orders,
		Chase: types.ChaseStatus{
			State:         r.ChaseState,
			Active:        r.ChaseActive,
			ChaseStartTs:  r.ChaseStartTsMs,
			RepricesUsed:  r.RepricesUsed,
			TimedOutCount: r.ChaseTimedOutCount,
		},
		Telemetry: r.Telemetry,
		Reasons:   reasons,
	}
}
