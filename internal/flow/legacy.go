package flow

import (
	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

const (
	obiWeightedDepth = 10
	obiDeepDepth      = 50

	delta1sWindowMs = 1_000
	delta5sWindowMs = 5_000

	deltaHistoryMaxLen = 60
	deltaSampleEveryMs = 1_000
)

// LegacyMetrics computes the OBI/delta/Z-score/VWAP/session-CVD bundle
// (spec §3). Grounded on the ninja0404 feature-extractor's top-N OBI
// formula and the teacher's general rolling-window style.
type LegacyMetrics struct {
	delta1s *rollingWindow
	delta5s *rollingWindow

	deltaHistory    *boundedHistory
	lastSampleAtMs  int64

	sessionCVD decimal.Decimal
	cvdHistory *boundedHistory

	notional decimal.Decimal
	volume   decimal.Decimal
}

// NewLegacyMetrics creates a LegacyMetrics tracker.
func NewLegacyMetrics() *LegacyMetrics {
	return &LegacyMetrics{
		delta1s:      newRollingWindow(delta1sWindowMs),
		delta5s:      newRollingWindow(delta5sWindowMs),
		deltaHistory: newBoundedHistory(deltaHistoryMaxLen),
		cvdHistory:   newBoundedHistory(deltaHistoryMaxLen),
	}
}

// Add records a classified trade print's contribution to delta windows,
// session CVD, and VWAP accumulators.
func (l *LegacyMetrics) Add(print types.TradePrint) {
	if print.Side != types.TradeBuy && print.Side != types.TradeSell {
		return
	}

	qty, _ := print.Qty.Float64()
	signed := qty
	if print.Side == types.TradeSell {
		signed = -qty
	}
	l.delta1s.add(print.TimestampMs, signed)
	l.delta5s.add(print.TimestampMs, signed)

	if print.Side == types.TradeBuy {
		l.sessionCVD = l.sessionCVD.Add(print.Qty)
	} else {
		l.sessionCVD = l.sessionCVD.Sub(print.Qty)
	}

	l.notional = l.notional.Add(print.Price.Mul(print.Qty))
	l.volume = l.volume.Add(print.Qty)

	l.sampleIfDue(print.TimestampMs)
}

// sampleIfDue appends one delta1s/session-CVD sample per deltaSampleEveryMs
// of event time, bounding history to <= 60 samples (spec §4.3).
func (l *LegacyMetrics) sampleIfDue(nowMs int64) {
	if nowMs-l.lastSampleAtMs < deltaSampleEveryMs {
		return
	}
	l.lastSampleAtMs = nowMs
	l.deltaHistory.push(l.delta1s.sum())
	cvdFloat, _ := l.sessionCVD.Float64()
	l.cvdHistory.push(cvdFloat)
}

// View computes the current public snapshot. bidLevels/askLevels are the
// book's top-N cumulative levels (deepest side must cover obiDeepDepth).
func (l *LegacyMetrics) View(bidLevels, askLevels []types.CumulativeLevel, mid decimal.Decimal) types.LegacyMetricsView {
	obiWeighted := sumLevels(bidLevels, obiWeightedDepth).Sub(sumLevels(askLevels, obiWeightedDepth))
	obiDeep := sumLevels(bidLevels, obiDeepDepth).Sub(sumLevels(askLevels, obiDeepDepth))

	d1 := l.delta1s.sum()
	d5 := l.delta5s.sum()
	dz := zScore(d1, l.deltaHistory.values)

	cvdSlope := olsSlope(l.cvdHistory.values)

	var vwap decimal.Decimal
	if !l.volume.IsZero() {
		vwap = l.notional.Div(l.volume)
	}

	return types.LegacyMetricsView{
		OBIWeighted: obiWeighted,
		OBIDeep:     obiDeep,
		Delta1s:     decimal.NewFromFloat(d1),
		Delta5s:     decimal.NewFromFloat(d5),
		DeltaZ:      dz,
		SessionCVD:  l.sessionCVD,
		CVDSlope:    cvdSlope,
		VWAP:        vwap,
		Mid:         mid,
	}
}

func sumLevels(levels []types.CumulativeLevel, depth int) decimal.Decimal {
	sum := decimal.Zero
	for i, l := range levels {
		if i >= depth {
			break
		}
		sum = sum.Add(l.Size)
	}
	return sum
}
