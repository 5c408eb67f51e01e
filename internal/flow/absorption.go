package flow

import (
	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

const (
	absorptionWindowMs     = 10_000
	absorptionMinRepeats    = 3
	absorptionPriceDriftPct = 0.0001 // 0.01% (spec §3 default)
)

// Absorption tracks the repeated-same-price, same-side absorption pattern
// (spec §3). Per spec §9's open-question decision, it uses event time
// (TradePrint.timestamp_ms) for both window membership and eviction —
// never wall-clock — so the detector replays identically given the same
// event stream.
type Absorption struct {
	threshold float64

	active     bool
	side       types.TradeSide
	firstPrice decimal.Decimal
	lastPrice  decimal.Decimal
	firstTsMs  int64
	lastTsMs   int64
	repeats    int
	lastSize   decimal.Decimal
	haveSize   bool
}

// NewAbsorption creates an absorption detector with the spec default drift threshold.
func NewAbsorption() *Absorption {
	return &Absorption{threshold: absorptionPriceDriftPct}
}

// BookSizeAt looks up the resting size at an exact price on the book.
type BookSizeAt func(price decimal.Decimal) (decimal.Decimal, bool)

// Update feeds one classified trade print and returns 1 if the absorption
// pattern is currently confirmed, 0 otherwise. Any violation of the four
// conditions resets the internal state (spec §3).
func (a *Absorption) Update(print types.TradePrint, bookSizeAt BookSizeAt) int {
	if print.Side != types.TradeBuy && print.Side != types.TradeSell {
		return 0
	}

	if !a.active {
		a.start(print, bookSizeAt)
		return 0
	}

	withinWindow := print.TimestampMs-a.firstTsMs <= absorptionWindowMs
	sameSide := print.Side == a.side
	drift := driftPct(a.firstPrice, print.Price)
	withinDrift := drift <= a.threshold

	if !withinWindow || !sameSide || !withinDrift {
		a.start(print, bookSizeAt)
		return 0
	}

	size, ok := bookSizeAt(print.Price)
	if a.haveSize && ok && size.LessThan(a.lastSize) {
		// Condition (iv) violated: resting size decreased.
		a.start(print, bookSizeAt)
		return 0
	}

	a.repeats++
	a.lastPrice = print.Price
	a.lastTsMs = print.TimestampMs
	if ok {
		a.lastSize = size
		a.haveSize = true
	}

	if a.repeats >= absorptionMinRepeats {
		return 1
	}
	return 0
}

func (a *Absorption) start(print types.TradePrint, bookSizeAt BookSizeAt) {
	a.active = true
	a.side = print.Side
	a.firstPrice = print.Price
	a.lastPrice = print.Price
	a.firstTsMs = print.TimestampMs
	a.lastTsMs = print.TimestampMs
	a.repeats = 1
	a.haveSize = false
	if size, ok := bookSizeAt(print.Price); ok {
		a.lastSize = size
		a.haveSize = true
	}
}

func driftPct(first, last decimal.Decimal) float64 {
	if first.IsZero() {
		return 0
	}
	diff := last.Sub(first).Abs()
	ratio, _ := diff.Div(first.Abs()).Float64()
	return clean(ratio)
}
