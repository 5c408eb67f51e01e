package orchestrator

import (
	"math"

	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

// evaluateAddLadder implements spec §4.5.8: up to maxAdds scale-ins,
// triggered on adverse-but-aligned excursion from the running entryVWAP.
func (r *Runtime) evaluateAddLadder(in Input, gateAPassed bool) (types.AddStatus, []types.OrderIntent) {
	if !r.hasPosition() {
		return types.AddStatus{}, nil
	}

	maxAdds := r.cfg.MaxAdds
	if maxAdds <= 0 {
		maxAdds = 2
	}
	if r.AddsUsed >= maxAdds {
		return types.AddStatus{}, nil
	}

	step := r.AddsUsed + 1 // 1-indexed step about to trigger
	stepAtr := atrMultipleForStep(r.cfg.AddAtrMultiple, step)
	atr3m, _ := in.ATR3m.Float64()
	offset := decimal.NewFromFloat(stepAtr * atr3m)

	var crossed bool
	switch r.Side {
	case types.Long:
		threshold := r.EntryVWAP.Sub(offset)
		crossed = in.Mid.LessThanOrEqual(threshold)
	case types.Short:
		threshold := r.EntryVWAP.Add(offset)
		crossed = in.Mid.GreaterThanOrEqual(threshold)
	default:
		return types.AddStatus{}, nil
	}
	if !crossed {
		return types.AddStatus{}, nil
	}

	if in.NowMs-r.LastAddTsMs < r.cfg.AddMinIntervalMs {
		return types.AddStatus{}, nil
	}
	if !r.sideAlignedFlowForAdd(in) {
		return types.AddStatus{}, nil
	}
	if !gateAPassed {
		return types.AddStatus{}, nil
	}

	qtyFactor := qtyFactorForStep(r.cfg.AddQtyFactor, step)
	addQty := r.BaseQty.Mul(decimal.NewFromFloat(qtyFactor))

	price := in.BestBid
	if r.Side == types.Short {
		price = in.BestAsk
	}

	r.applyAddFill(price, addQty)
	r.AddsUsed = step
	r.LastAddTsMs = in.NowMs

	order := types.OrderIntent{Kind: types.KindMakerPostOnly, Side: r.Side, Price: price, Qty: addQty}
	return types.AddStatus{Triggered: true, Step: step}, []types.OrderIntent{order}
}

// applyAddFill recomputes the running VWAP: entryVWAP := (prevPrice*prevQty +
// fillPrice*fillQty) / totalQty (spec §4.5.8).
func (r *Runtime) applyAddFill(fillPrice, fillQty decimal.Decimal) {
	prevNotional := r.EntryVWAP.Mul(r.PositionQty)
	fillNotional := fillPrice.Mul(fillQty)
	totalQty := r.PositionQty.Add(fillQty)
	if totalQty.IsZero() {
		return
	}
	r.EntryVWAP = prevNotional.Add(fillNotional).Div(totalQty)
	r.PositionQty = totalQty
}

func (r *Runtime) sideAlignedFlowForAdd(in Input) bool {
	obiDeep, _ := in.Legacy.OBIWeighted.Float64()
	cvdAligned := sideAligned(r.Side, in.CVD.Slope5m)
	obiAligned := sideAligned(r.Side, obiDeep)
	oiAligned := sideAligned(r.Side, in.OI.Delta) || math.Abs(in.OI.Delta) < r.cfg.GateAOIDropThreshold
	return cvdAligned && obiAligned && oiAligned
}

func atrMultipleForStep(multiples []float64, step int) float64 {
	idx := step - 1
	if idx >= 0 && idx < len(multiples) {
		return multiples[idx]
	}
	defaults := []float64{0.55, 1.10}
	if idx >= 0 && idx < len(defaults) {
		return defaults[idx]
	}
	return 1.0
}

func qtyFactorForStep(factors []float64, step int) float64 {
	idx := step - 1
	if idx >= 0 && idx < len(factors) {
		return factors[idx]
	}
	return 1.0
}
