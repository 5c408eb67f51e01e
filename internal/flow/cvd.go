package flow

import (
	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

const (
	cvd1m  = 60_000
	cvd5m  = 5 * 60_000
	cvd15m = 15 * 60_000

	cvdHistoryMaxLen = 60
)

// cvdTimeframe tracks one rolling window plus a bounded history of its
// cumulative value, used to compute the OLS slope (spec §3, §4.3).
type cvdTimeframe struct {
	window  *rollingWindow
	history *boundedHistory
}

func newCVDTimeframe(windowMs int64) *cvdTimeframe {
	return &cvdTimeframe{
		window:  newRollingWindow(windowMs),
		history: newBoundedHistory(cvdHistoryMaxLen),
	}
}

func (c *cvdTimeframe) add(tsMs int64, signedQty float64) {
	c.window.add(tsMs, signedQty)
	c.history.push(c.window.sum())
}

func (c *cvdTimeframe) value() float64 {
	return c.window.sum()
}

func (c *cvdTimeframe) slope() float64 {
	return olsSlope(c.history.values)
}

// CVD is the multi-timeframe cumulative signed volume aggregator (spec §3).
type CVD struct {
	tf1m, tf5m, tf15m *cvdTimeframe
	sessionCVD        decimal.Decimal
}

// NewCVD creates a CVD tracker across the 1m/5m/15m timeframes.
func NewCVD() *CVD {
	return &CVD{
		tf1m:   newCVDTimeframe(cvd1m),
		tf5m:   newCVDTimeframe(cvd5m),
		tf15m:  newCVDTimeframe(cvd15m),
	}
}

// Add records a classified trade print's signed volume (buy positive, sell negative).
func (c *CVD) Add(print types.TradePrint) {
	qty, _ := print.Qty.Float64()
	signed := qty
	if print.Side == types.TradeSell {
		signed = -qty
	}
	if print.Side != types.TradeBuy && print.Side != types.TradeSell {
		return
	}

	c.tf1m.add(print.TimestampMs, signed)
	c.tf5m.add(print.TimestampMs, signed)
	c.tf15m.add(print.TimestampMs, signed)

	if print.Side == types.TradeBuy {
		c.sessionCVD = c.sessionCVD.Add(print.Qty)
	} else {
		c.sessionCVD = c.sessionCVD.Sub(print.Qty)
	}
}

// View returns the public CVD snapshot for the current tick.
func (c *CVD) View() types.CVDView {
	return types.CVDView{
		CVD1m:      decimal.NewFromFloat(c.tf1m.value()),
		CVD5m:      decimal.NewFromFloat(c.tf5m.value()),
		CVD15m:     decimal.NewFromFloat(c.tf15m.value()),
		Slope1m:    c.tf1m.slope(),
		Slope5m:    c.tf5m.slope(),
		Slope15m:   c.tf15m.slope(),
		SessionCVD: c.sessionCVD,
	}
}

// Slope5mSign classifies the 5m slope into UP/DOWN/FLAT for
// DeterministicState.cvd_slope_sign.
func (c *CVD) Slope5mSign() types.TrendSign {
	s := c.tf5m.slope()
	switch {
	case s > 0:
		return types.SignUp
	case s < 0:
		return types.SignDown
	default:
		return types.SignFlat
	}
}
