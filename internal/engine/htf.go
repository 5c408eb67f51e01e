package engine

import (
	"github.com/shopspring/decimal"

	"orderflow-core/internal/orchestrator"
)

// htfTracker derives the higher-timeframe swing levels and structure-break
// flags the orchestrator's HTF filter consumes (spec §4.5.10), from the
// same trade-print stream the flow aggregators see. It has no analogue in
// the teacher or the rest of the example pack — the teacher's single
// binary-outcome markets have no higher-timeframe structure to track — so
// it is new logic, kept deliberately small: a rolling window of closed-bar
// midpoints ((high+low)/2) per timeframe, with a break flagged when the
// latest closed bar's high or low trades through the prior swing level.
type htfTracker struct {
	h1 *barTimeframe
	h4 *barTimeframe
}

func newHTFTracker() *htfTracker {
	return &htfTracker{
		h1: newBarTimeframe(60 * 60_000),
		h4: newBarTimeframe(4 * 60 * 60_000),
	}
}

func (t *htfTracker) onTrade(tsMs int64, price decimal.Decimal) {
	t.h1.onTrade(tsMs, price)
	t.h4.onTrade(tsMs, price)
}

func (t *htfTracker) context() orchestrator.HTFContext {
	return orchestrator.HTFContext{
		H1BarStartPresent: t.h1.barStartPresent(),
		H4BarStartPresent: t.h4.barStartPresent(),
		SwingLow:          minDecimal(t.h1.swingLow, t.h4.swingLow),
		SwingHigh:         maxDecimal(t.h1.swingHigh, t.h4.swingHigh),
		StructureBreakUp:  t.h1.breakUp || t.h4.breakUp,
		StructureBreakDn:  t.h1.breakDn || t.h4.breakDn,
	}
}

// structureUp/structureDn report this timeframe pair's own up/down state,
// used by the cross-market anchor (spec §4.5.11), which needs BTC's H1/H4
// structure independently of the swing-level veto above.
func (t *htfTracker) structureUp() (h1, h4 bool) {
	return t.h1.up, t.h4.up
}

func (t *htfTracker) structureDn() (h1, h4 bool) {
	return t.h1.dn, t.h4.dn
}

const barTimeframeSwingWindow = 5

// barTimeframe aggregates trade prints into fixed-width bars (by floor of
// event time) and tracks a rolling swing high/low plus the most recent
// structure-break flags.
type barTimeframe struct {
	barMs int64

	curBarStart int64
	curHigh     decimal.Decimal
	curLow      decimal.Decimal
	haveBar     bool

	closes []decimal.Decimal

	swingHigh decimal.Decimal
	swingLow  decimal.Decimal

	up, dn         bool // latest closed bar's high/low went beyond the prior swing high/low
	breakUp, breakDn bool

	barsClosed int
}

func newBarTimeframe(barMs int64) *barTimeframe {
	return &barTimeframe{barMs: barMs}
}

func (b *barTimeframe) onTrade(tsMs int64, price decimal.Decimal) {
	barStart := (tsMs / b.barMs) * b.barMs

	if !b.haveBar {
		b.startBar(barStart, price)
		return
	}

	if barStart != b.curBarStart {
		b.closeBar()
		b.startBar(barStart, price)
		return
	}

	if price.GreaterThan(b.curHigh) {
		b.curHigh = price
	}
	if price.LessThan(b.curLow) {
		b.curLow = price
	}
}

func (b *barTimeframe) startBar(barStart int64, price decimal.Decimal) {
	b.curBarStart = barStart
	b.curHigh = price
	b.curLow = price
	b.haveBar = true
}

func (b *barTimeframe) closeBar() {
	b.barsClosed++

	prevSwingHigh, prevSwingLow := b.swingHigh, b.swingLow
	havePriorSwing := len(b.closes) >= barTimeframeSwingWindow

	b.closes = append(b.closes, b.curHigh.Add(b.curLow).Div(decimal.NewFromInt(2)))
	if len(b.closes) > barTimeframeSwingWindow {
		b.closes = b.closes[len(b.closes)-barTimeframeSwingWindow:]
	}

	b.swingHigh, b.swingLow = decimal.Zero, decimal.Zero
	for i, c := range b.closes {
		if i == 0 || c.GreaterThan(b.swingHigh) {
			b.swingHigh = c
		}
		if i == 0 || c.LessThan(b.swingLow) {
			b.swingLow = c
		}
	}

	b.up, b.dn = false, false
	b.breakUp, b.breakDn = false, false
	if havePriorSwing {
		if b.curHigh.GreaterThan(prevSwingHigh) {
			b.up = true
			b.breakUp = true
		}
		if b.curLow.LessThan(prevSwingLow) {
			b.dn = true
			b.breakDn = true
		}
	}
}

func (b *barTimeframe) barStartPresent() bool {
	return b.barsClosed >= barTimeframeSwingWindow
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	if a.LessThan(b) {
		return a
	}
	return b
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
