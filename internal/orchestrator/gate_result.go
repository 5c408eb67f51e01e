package orchestrator

import "orderflow-core/pkg/types"

// evaluateGates runs readiness + gates A/B/C, updates entryConfirmCount,
// and returns the GateResult for telemetry plus the Decision subtree
// (spec §4.5.5).
func (r *Runtime) evaluateGates(in Input, ready bool, readyReasons []string, side types.Side) types.GateResult {
	a := r.gateA(in, side)
	b := r.gateB(side)
	c := r.gateC(in)

	allRaw := ready && a && b && c && side != types.Flat

	if allRaw {
		r.EntryConfirmCount++
		r.recordGateTrue(in.NowMs)
	} else {
		r.EntryConfirmCount = 0
	}

	need := r.cfg.EntryConfirmations
	if need <= 0 {
		need = 1
	}
	if htfSoftBiasRequiresExtraConfirm(in.HTF, side, in.Mid) {
		need++
	}

	allEffective := allRaw && r.EntryConfirmCount >= need

	return types.GateResult{
		Ready:             ready,
		ReadyReasons:      readyReasons,
		GateA:             a,
		GateB:             b,
		GateC:             c,
		AllRaw:            allRaw,
		AllEffective:      allEffective,
		EntryConfirmCount: r.EntryConfirmCount,
	}
}
