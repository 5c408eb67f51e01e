// Package fillsink provides the default dry-run paper-fill ledger.
//
// spec.md calls the FillSink an external collaborator — the orchestrator
// only ever reads a PositionView back from it (§4.5.2) and never depends on
// its internals for correctness. This package supplies the in-process
// default so the core is runnable stand-alone: it simulates immediate
// fills for every emitted OrderIntent at the intent's own price (or the
// current mid for a TAKER, which carries no resting price), using the same
// weighted-average-cost-basis-on-buy / realize-on-reduce bookkeeping as the
// teacher's internal/strategy/inventory.go Inventory, generalized from
// YES/NO binary legs to a single LONG/SHORT futures position per symbol.
package fillsink

import (
	"sync"

	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

// position is one symbol's paper-traded holding.
type position struct {
	side        types.Side
	qty         decimal.Decimal
	entryVWAP   decimal.Decimal
	baseQty     decimal.Decimal
	addsUsed    int
	realizedPnL decimal.Decimal
}

// DryRunFillSink tracks one position per symbol, keyed and mutated only by
// that symbol's owning task — the mutex guards cross-symbol reads from the
// API/snapshot layer, not concurrent writers within a symbol.
type DryRunFillSink struct {
	mu   sync.Mutex
	pos  map[string]*position
}

// New creates an empty DryRunFillSink.
func New() *DryRunFillSink {
	return &DryRunFillSink{pos: make(map[string]*position)}
}

// Fill applies one emitted OrderIntent as an immediate paper execution at
// fillPrice (the intent's resting price for MAKER orders, or the current
// mid for a TAKER market order) and qty, returning the resulting position.
// qty also seeds BaseQty when the symbol opens a position from flat.
func (s *DryRunFillSink) Fill(symbol string, intent types.OrderIntent, fillPrice, qty decimal.Decimal) types.PositionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pos[symbol]
	if !ok {
		p = &position{side: types.Flat}
		s.pos[symbol] = p
	}

	switch {
	case p.side == types.Flat:
		p.side = intent.Side
		p.qty = qty
		p.entryVWAP = fillPrice
		p.baseQty = qty
		p.addsUsed = 0
	case intent.Side == p.side:
		// Same-side fill: either an add (tracked by the orchestrator's own
		// addsUsed, mirrored here) or a reprice/timeout-fallback entry fill
		// that lands before the orchestrator's add ladder engages — either
		// way, recompute the running VWAP.
		prevNotional := p.entryVWAP.Mul(p.qty)
		newNotional := fillPrice.Mul(qty)
		totalQty := p.qty.Add(qty)
		if !totalQty.IsZero() {
			p.entryVWAP = prevNotional.Add(newNotional).Div(totalQty)
		}
		p.qty = totalQty
	default:
		// Opposite-side fill: reduces or closes the position, realizing
		// PnL on the closed portion. Quantity beyond the open position is
		// not applied, so a fill never flips the side.
		closeQty := decimal.Min(qty, p.qty)
		pnlPerUnit := fillPrice.Sub(p.entryVWAP)
		if p.side == types.Short {
			pnlPerUnit = p.entryVWAP.Sub(fillPrice)
		}
		p.realizedPnL = p.realizedPnL.Add(pnlPerUnit.Mul(closeQty))
		p.qty = p.qty.Sub(closeQty)
		if p.qty.IsZero() {
			p.side = types.Flat
			p.entryVWAP = decimal.Zero
			p.baseQty = decimal.Zero
			p.addsUsed = 0
		}
	}

	return s.viewLocked(symbol)
}

// RecordAdd mirrors an add-ladder fill's addsUsed count, since the
// orchestrator's own runtime is the authority on ladder step count and this
// ledger only needs to echo it back through PositionView.
func (s *DryRunFillSink) RecordAdd(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pos[symbol]; ok {
		p.addsUsed++
	}
}

// Position returns the current PositionView for symbol and whether a
// position is open (spec §4.5.2's dryRunPosition.hasPosition).
func (s *DryRunFillSink) Position(symbol string) (types.PositionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(symbol), s.hasPositionLocked(symbol)
}

// RealizedPnL returns the symbol's cumulative realized PnL.
func (s *DryRunFillSink) RealizedPnL(symbol string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pos[symbol]; ok {
		return p.realizedPnL
	}
	return decimal.Zero
}

func (s *DryRunFillSink) viewLocked(symbol string) types.PositionView {
	p, ok := s.pos[symbol]
	if !ok {
		return types.PositionView{Side: types.Flat}
	}
	return types.PositionView{
		Side:      p.side,
		Qty:       p.qty,
		EntryVWAP: p.entryVWAP,
		BaseQty:   p.baseQty,
		AddsUsed:  p.addsUsed,
	}
}

func (s *DryRunFillSink) hasPositionLocked(symbol string) bool {
	p, ok := s.pos[symbol]
	return ok && p.side != types.Flat && !p.qty.IsZero()
}
