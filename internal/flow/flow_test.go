package flow

import (
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

func print(price, qty float64, side types.TradeSide, tsMs int64) types.TradePrint {
	return types.TradePrint{
		Price:       decimal.NewFromFloat(price),
		Qty:         decimal.NewFromFloat(qty),
		Side:        side,
		TimestampMs: tsMs,
	}
}

func TestTimeAndSalesLatencyClampedAtZero(t *testing.T) {
	t.Parallel()
	tas := NewTimeAndSales()
	// Future-dated trade timestamp relative to "now".
	tas.Add(print(100, 1, types.TradeBuy, 10_000))
	view := tas.View(9_000)
	if view.AvgLatencyMs != 0 {
		t.Fatalf("AvgLatencyMs = %v, want 0 (clamped)", view.AvgLatencyMs)
	}
}

func TestTimeAndSalesBurstDetection(t *testing.T) {
	t.Parallel()
	tas := NewTimeAndSales()
	base := int64(0)
	for i := 0; i < burstCountThreshold; i++ {
		tas.Add(print(100, 1, types.TradeBuy, base+int64(i)))
	}
	view := tas.View(base + 500)
	if !view.BurstDetected || view.BurstSide != types.TradeBuy {
		t.Fatalf("expected burst detected on buy side, got %+v", view)
	}
}

func TestCVDSlopePositiveOnSustainedBuying(t *testing.T) {
	t.Parallel()
	c := NewCVD()
	for i := 0; i < 20; i++ {
		c.Add(print(100, 1, types.TradeBuy, int64(i)*1000))
	}
	if c.Slope5mSign() != types.SignUp {
		t.Fatalf("Slope5mSign = %v, want UP after sustained buying", c.Slope5mSign())
	}
}

func TestAbsorptionConfirmsAfterThreeRepeats(t *testing.T) {
	t.Parallel()
	a := NewAbsorption()
	sizeAt := func(p decimal.Decimal) (decimal.Decimal, bool) { return decimal.NewFromInt(10), true }

	if got := a.Update(print(100, 1, types.TradeBuy, 0), sizeAt); got != 0 {
		t.Fatalf("first print should not confirm, got %d", got)
	}
	if got := a.Update(print(100, 1, types.TradeBuy, 100), sizeAt); got != 0 {
		t.Fatalf("second print should not confirm, got %d", got)
	}
	if got := a.Update(print(100, 1, types.TradeBuy, 200), sizeAt); got != 1 {
		t.Fatalf("third print should confirm, got %d", got)
	}
}

func TestAbsorptionResetsOnPriceDrift(t *testing.T) {
	t.Parallel()
	a := NewAbsorption()
	sizeAt := func(p decimal.Decimal) (decimal.Decimal, bool) { return decimal.NewFromInt(10), true }

	a.Update(print(100, 1, types.TradeBuy, 0), sizeAt)
	a.Update(print(100, 1, types.TradeBuy, 100), sizeAt)
	// Drift far beyond the 0.01% default threshold resets the run.
	got := a.Update(print(105, 1, types.TradeBuy, 200), sizeAt)
	if got != 0 {
		t.Fatalf("expected reset (0) on large price drift, got %d", got)
	}
}

func TestAbsorptionResetsOnDecreasingSize(t *testing.T) {
	t.Parallel()
	a := NewAbsorption()
	sizes := []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(10), decimal.NewFromInt(5)}
	i := 0
	sizeAt := func(p decimal.Decimal) (decimal.Decimal, bool) {
		d := sizes[i]
		if i < len(sizes)-1 {
			i++
		}
		return d, true
	}

	a.Update(print(100, 1, types.TradeBuy, 0), sizeAt)
	a.Update(print(100, 1, types.TradeBuy, 100), sizeAt)
	got := a.Update(print(100, 1, types.TradeBuy, 200), sizeAt)
	if got != 0 {
		t.Fatalf("expected reset (0) when resting size decreases, got %d", got)
	}
}

func TestLegacyMetricsOBIAndVWAP(t *testing.T) {
	t.Parallel()
	l := NewLegacyMetrics()
	l.Add(print(100, 2, types.TradeBuy, 0))
	l.Add(print(101, 1, types.TradeSell, 1))

	bidLevels := []types.CumulativeLevel{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(5)}}
	askLevels := []types.CumulativeLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(3)}}

	view := l.View(bidLevels, askLevels, decimal.NewFromFloat(100.5))
	wantOBI := decimal.NewFromInt(5).Sub(decimal.NewFromInt(3))
	if !view.OBIWeighted.Equal(wantOBI) {
		t.Fatalf("OBIWeighted = %s, want %s", view.OBIWeighted, wantOBI)
	}

	wantVWAP := decimal.NewFromFloat(100 * 2).Add(decimal.NewFromFloat(101)).Div(decimal.NewFromInt(3))
	if !view.VWAP.Equal(wantVWAP) {
		t.Fatalf("VWAP = %s, want %s", view.VWAP, wantVWAP)
	}
}
