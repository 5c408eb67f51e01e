package orchestrator

import "orderflow-core/pkg/types"

// anchorVetoesEntry implements spec §4.5.11's hard_veto mode: an altcoin
// entry candidate opposite the BTC-derived anchor side is vetoed outright
// (no order emitted, counted in telemetry). Never applied to the anchor
// symbol itself.
func (r *Runtime) anchorVetoesEntry(in Input, candidate types.Side) bool {
	if in.Anchor.IsAnchorSymbol || !r.cfg.CrossMarketHardVeto {
		return false
	}
	bias := anchorBias(in.Anchor)
	if bias == types.Flat || candidate == types.Flat {
		return false
	}
	vetoed := bias != candidate
	if vetoed {
		r.Telemetry.CrossMarketVetoCount++
	}
	return vetoed
}

// sideMismatchBlocksEntry implements spec §4.5.12: an ENTRY candidate
// opposite an already-open position is blocked outright. Reversal must
// pass through an exit first; the system never auto-reverses in one step.
func sideMismatchBlocksEntry(hasPosition bool, positionSide, candidate types.Side) bool {
	return hasPosition && candidate != types.Flat && candidate != positionSide
}
