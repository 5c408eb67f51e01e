package flow

import (
	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

const (
	defaultTASWindowMs  = 10_000
	burstSubWindowMs    = 1_000
	burstCountThreshold = 8
)

// TimeAndSales is the rolling time-and-sales aggregator (spec §3).
type TimeAndSales struct {
	windowMs int64
	prints   []types.TradePrint
}

// NewTimeAndSales creates a TAS aggregator with the default 10s window.
func NewTimeAndSales() *TimeAndSales {
	return &TimeAndSales{windowMs: defaultTASWindowMs}
}

// Add records a classified trade print. Aggregators are only fed when
// side ∈ {buy, sell} (spec §4.3); unknown-side prints are the caller's
// responsibility to filter before calling Add.
func (t *TimeAndSales) Add(print types.TradePrint) {
	t.prints = append(t.prints, print)
	t.prune(print.TimestampMs)
}

func (t *TimeAndSales) prune(nowMs int64) {
	cutoff := nowMs - t.windowMs
	i := 0
	for i < len(t.prints) && t.prints[i].TimestampMs < cutoff {
		i++
	}
	if i > 0 {
		t.prints = t.prints[i:]
	}
}

// View computes the current public snapshot. nowMs is the event-time clock
// used both to prune the window and to compute print latency.
func (t *TimeAndSales) View(nowMs int64) types.TimeAndSalesView {
	t.prune(nowMs)

	var buyCount, sellCount int
	buyVol := decimal.Zero
	sellVol := decimal.Zero
	var latencySum float64
	var latencyCount int

	burstCutoff := nowMs - burstSubWindowMs
	burstBuy, burstSell := 0, 0

	for _, p := range t.prints {
		switch p.Side {
		case types.TradeBuy:
			buyCount++
			buyVol = buyVol.Add(p.Qty)
		case types.TradeSell:
			sellCount++
			sellVol = sellVol.Add(p.Qty)
		}

		// Future-dated trade timestamps clamp latency at 0 (spec §8 boundary case).
		latency := float64(nowMs - p.TimestampMs)
		if latency < 0 {
			latency = 0
		}
		latencySum += latency
		latencyCount++

		if p.TimestampMs >= burstCutoff {
			switch p.Side {
			case types.TradeBuy:
				burstBuy++
			case types.TradeSell:
				burstSell++
			}
		}
	}

	var avgLatency float64
	if latencyCount > 0 {
		avgLatency = latencySum / float64(latencyCount)
	}

	burstDetected := false
	burstSide := types.TradeUnknown
	if burstBuy >= burstCountThreshold {
		burstDetected = true
		burstSide = types.TradeBuy
	} else if burstSell >= burstCountThreshold {
		burstDetected = true
		burstSide = types.TradeSell
	}

	printsPerSecond := float64(len(t.prints)) / (float64(t.windowMs) / 1000.0)

	return types.TimeAndSalesView{
		BuyCount:             buyCount,
		SellCount:            sellCount,
		AggressiveBuyVolume:  buyVol,
		AggressiveSellVolume: sellVol,
		PrintsPerSecond:      clean(printsPerSecond),
		BurstDetected:        burstDetected,
		BurstSide:            burstSide,
		AvgLatencyMs:         clean(avgLatency),
	}
}
