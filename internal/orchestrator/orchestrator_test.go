package orchestrator

import (
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-core/internal/config"
	"orderflow-core/pkg/types"
)

func testConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		MinBarsLoaded:            360,
		MinPrintsPerSecond:       0.1,
		DeltaZAlpha:              0.4,
		ObiWeightedAlpha:         0.4,
		CvdSlopeMedianWindow:     5,
		SideScoreDeltaZWeight:    0.65,
		SideScoreCvdSlopeWeight:  12,
		SideScoreObiDeepWeight:   0.35,
		ConsecutiveConfirmations: 3,
		MinHoldMs:                0,
		MinFlipIntervalMs:        0,
		GateATrendinessMin:       0.2,
		GateAChopMax:             0.8,
		GateAVolOfVolMax:         0.9,
		GateASpreadPctMax:        0.01,
		GateAOIDropThreshold:     -1000,
		GateBMinAbsDeltaZ:        0.1,
		GateCMaxVwapDistancePct:  0.05,
		GateCMaxRealizedVol1m:    10,
		EntryConfirmations:       3,
		ImpulseMinPrintsPerSecond: 0.1,
		ImpulseMinAbsDeltaZ:      0.1,
		ImpulseSpreadMultiplier:  1.2,
		ChaseMaxSeconds:          12,
		ChaseRepriceMs:           1000,
		ChaseMaxReprices:         5,
		ChaseLayerSpreadFrac:     0.25,
		MaxFallbackNotionalPct:   0.25,
		CooldownAfterAbortMs:     1000,
		MaxAdds:                  2,
		AddAtrMultiple:           []float64{0.55, 1.10},
		AddQtyFactor:             []float64{1.0, 1.0},
		AddMinIntervalMs:         0,
		ExitMakerAttempts:        2,
		FlipPersistConfirmations: 2,
		CrossMarketPersistMs:     30_000,
		ExitRiskTrendinessMin:    0.2,
		ExitRiskChopMax:          0.55,
		ExitRiskIntegrityThreshold: 0.9,
		CrossMarketAnchorSymbol:  "BTCUSDT",
		CrossMarketHardVeto:      true,
	}
}

func readyInput(nowMs int64) Input {
	return Input{
		NowMs:          nowMs,
		BackfillDone:   true,
		BarsLoaded:     500,
		SessionVWAPSet: true,
		HTF: HTFContext{
			H1BarStartPresent: true,
			H4BarStartPresent: true,
		},
		BestBid:       decimal.NewFromFloat(99.9),
		BestAsk:       decimal.NewFromFloat(100.1),
		Mid:           decimal.NewFromFloat(100),
		SpreadPct:     0.002,
		SessionVWAP:   decimal.NewFromFloat(100),
		RealizedVol1m: 1,
		ATR3m:         decimal.NewFromFloat(10),
		Trendiness:    0.5,
		Chop:          0.1,
		VolOfVol:      0.1,
		TAS:           types.TimeAndSalesView{PrintsPerSecond: 5},
		CVD:           types.CVDView{Slope5m: 1},
		Legacy:        types.LegacyMetricsView{DeltaZ: 1, OBIWeighted: decimal.NewFromFloat(0.5), OBIDeep: decimal.NewFromFloat(0.5)},
		OI:            types.DerivativeMetricView{Delta: 10},
	}
}

// (i) Readiness HOLD -> ENTRY.
func TestReadinessHoldThenEntryOnConfirmedTicks(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())

	notReady := Input{NowMs: 0, BackfillDone: false, BarsLoaded: 200}
	for i := 0; i < 10; i++ {
		notReady.NowMs = int64(i)
		d := r.Evaluate(notReady)
		if d.Intent != types.IntentHold {
			t.Fatalf("tick %d: expected HOLD while not ready, got %s", i, d.Intent)
		}
		if len(d.Orders) != 0 {
			t.Fatalf("tick %d: expected zero orders while not ready", i)
		}
	}

	var entryTick types.Decision
	found := false
	for i := 0; i < 10 && !found; i++ {
		in := readyInput(int64(1000 + i*10))
		d := r.Evaluate(in)
		if d.Intent == types.IntentEnter {
			entryTick = d
			found = true
		}
	}

	if !found {
		t.Fatalf("expected an ENTER tick within the confirmation window")
	}
	if len(entryTick.Orders) != 2 {
		t.Fatalf("expected exactly two MAKER post-only orders, got %d", len(entryTick.Orders))
	}
	for _, o := range entryTick.Orders {
		if o.Kind != types.KindMakerPostOnly {
			t.Fatalf("expected MAKER_POST_ONLY orders, got %s", o.Kind)
		}
	}
}

// (ii) Chase timeout fallback.
func TestChaseTimeoutProducesExactlyOneTakerFallback(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())

	var warmup types.Decision
	for i := 0; i < 6; i++ {
		in := readyInput(int64(1000 + i*10))
		warmup = r.Evaluate(in)
	}
	if warmup.Chase.State != chaseChasing {
		t.Fatalf("expected CHASING after warmup confirmations, got %s", warmup.Chase.State)
	}
	chaseStart := warmup.Chase.ChaseStartTs

	in1 := readyInput(chaseStart + 12_500)
	d1 := r.Evaluate(in1)

	if d1.Chase.TimedOutCount != 1 {
		t.Fatalf("expected chaseTimedOutCount=1, got %d", d1.Chase.TimedOutCount)
	}
	if len(d1.Orders) != 1 || d1.Orders[0].Kind != types.KindTaker {
		t.Fatalf("expected exactly one TAKER order, got %+v", d1.Orders)
	}
	if d1.Orders[0].NotionalPct != 0.25 {
		t.Fatalf("expected notionalPct=0.25, got %f", d1.Orders[0].NotionalPct)
	}

	in2 := readyInput(chaseStart + 12_600)
	d2 := r.Evaluate(in2)
	if d2.Chase.TimedOutCount != 1 {
		t.Fatalf("expected chaseTimedOutCount to stay at 1, got %d", d2.Chase.TimedOutCount)
	}
	if len(d2.Orders) != 0 {
		t.Fatalf("expected no further taker fallback once used, got %+v", d2.Orders)
	}
}

// (iii) Add ladder.
func TestAddLadderTriggersTwoAddsThenStops(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	r.Side = types.Long
	r.PositionQty = decimal.NewFromInt(1)
	r.EntryVWAP = decimal.NewFromInt(100)
	r.BaseQty = decimal.NewFromInt(1)

	in := readyInput(0)
	in.HasPosition = true
	in.Position = types.PositionView{Side: types.Long, Qty: decimal.NewFromInt(1), EntryVWAP: decimal.NewFromInt(100), BaseQty: decimal.NewFromInt(1)}
	in.Mid = decimal.NewFromFloat(94.5)
	in.CVD.Slope5m = 1
	in.Legacy.OBIWeighted = decimal.NewFromFloat(0.5)
	in.OI.Delta = 10

	d1 := r.Evaluate(in)
	if !d1.Add.Triggered || d1.Add.Step != 1 {
		t.Fatalf("expected ADD_1 to trigger, got %+v", d1.Add)
	}

	in2 := in
	in2.NowMs = 91_000
	in2.HasPosition = true
	in2.Position = types.PositionView{Side: types.Long, Qty: r.PositionQty, EntryVWAP: r.EntryVWAP, BaseQty: r.BaseQty, AddsUsed: r.AddsUsed}
	vwap, _ := r.EntryVWAP.Float64()
	in2.Mid = decimal.NewFromFloat(vwap - 1.10*10)

	d2 := r.Evaluate(in2)
	if !d2.Add.Triggered || d2.Add.Step != 2 {
		t.Fatalf("expected ADD_2 to trigger, got %+v", d2.Add)
	}

	in3 := in2
	in3.NowMs = 200_000
	in3.HasPosition = true
	in3.Position = types.PositionView{Side: types.Long, Qty: r.PositionQty, EntryVWAP: r.EntryVWAP, BaseQty: r.BaseQty, AddsUsed: r.AddsUsed}
	vwap2, _ := r.EntryVWAP.Float64()
	in3.Mid = decimal.NewFromFloat(vwap2 - 5*10)

	d3 := r.Evaluate(in3)
	if d3.Add.Triggered {
		t.Fatalf("expected no ADD_3, got %+v", d3.Add)
	}
	if r.AddsUsed != 2 {
		t.Fatalf("expected addsUsed=2, got %d", r.AddsUsed)
	}
}

// (iv) Exit ladder.
func TestExitRiskLadderClosesPositionAfterMakerAttempts(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	r.Side = types.Long
	r.PositionQty = decimal.NewFromInt(1)
	r.EntryVWAP = decimal.NewFromInt(100)
	r.BaseQty = decimal.NewFromInt(1)

	in := readyInput(0)
	in.HasPosition = true
	in.Position = types.PositionView{Side: types.Long, Qty: decimal.NewFromInt(1), EntryVWAP: decimal.NewFromInt(100)}
	in.Trendiness = 0.50
	in.Chop = 0.60

	d1 := r.Evaluate(in)
	if !d1.ExitRisk.Active || d1.ExitRisk.Reason != "EXIT_RISK:REGIME" {
		t.Fatalf("tick1: expected EXIT_RISK:REGIME, got %+v", d1.ExitRisk)
	}
	if len(d1.Orders) != 1 || d1.Orders[0].Kind != types.KindMakerPostOnly {
		t.Fatalf("tick1: expected one MAKER exit attempt, got %+v", d1.Orders)
	}

	in2 := in
	in2.NowMs = 1000
	in2.HasPosition = true
	d2 := r.Evaluate(in2)
	if len(d2.Orders) != 1 || d2.Orders[0].Kind != types.KindMakerPostOnly {
		t.Fatalf("tick2: expected second MAKER exit attempt, got %+v", d2.Orders)
	}

	in3 := in
	in3.NowMs = 2000
	in3.HasPosition = true
	d3 := r.Evaluate(in3)
	if len(d3.Orders) != 1 || d3.Orders[0].Kind != types.KindTaker {
		t.Fatalf("tick3: expected TAKER exit, got %+v", d3.Orders)
	}
	if !r.ExitTakerUsed {
		t.Fatalf("expected exitTakerUsed=true after taker exit")
	}
}

// (v) Cross-market mismatch exit.
func TestCrossMarketMismatchExitsAfterPersistWindow(t *testing.T) {
	r := NewRuntime("ETHUSDT", testConfig())
	r.Side = types.Long
	r.PositionQty = decimal.NewFromInt(1)

	in := readyInput(0)
	in.HasPosition = true
	in.Position = types.PositionView{Side: types.Long, Qty: decimal.NewFromInt(1)}
	in.Anchor = AnchorContext{BTCH1Dn: true, BTCH4Dn: true}

	d0 := r.Evaluate(in)
	if d0.ExitRisk.Active {
		t.Fatalf("t0: expected no exit yet, got %+v", d0.ExitRisk)
	}

	in29 := in
	in29.NowMs = 29_000
	d29 := r.Evaluate(in29)
	if d29.ExitRisk.Active {
		t.Fatalf("t0+29s: expected still HOLD, got %+v", d29.ExitRisk)
	}

	in31 := in
	in31.NowMs = 31_000
	d31 := r.Evaluate(in31)
	if !d31.ExitRisk.Active || d31.ExitRisk.Reason != "CROSSMARKET_MISMATCH" {
		t.Fatalf("t0+31s: expected CROSSMARKET_MISMATCH, got %+v", d31.ExitRisk)
	}
}

// (vi) 2-step reversal.
func TestTwoStepReversalEmitsExitFlipNeverDirectEntry(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	r.Side = types.Long
	r.PositionQty = decimal.NewFromInt(1)

	in := readyInput(0)
	in.HasPosition = true
	in.Position = types.PositionView{Side: types.Long, Qty: decimal.NewFromInt(1)}
	in.Legacy.DeltaZ = -1
	in.CVD.Slope5m = -1
	in.Legacy.OBIWeighted = decimal.NewFromFloat(-0.5)

	d1 := r.Evaluate(in)
	if d1.Intent == types.IntentEnter {
		t.Fatalf("never expect a direct ENTER while position is open")
	}

	in2 := in
	in2.NowMs = r.cfg.MinFlipIntervalMs + 1
	d2 := r.Evaluate(in2)

	if d2.Intent != types.IntentExit || d2.ExitRisk.Reason != "EXIT_FLIP" {
		t.Fatalf("expected EXIT_FLIP, got intent=%s exit=%+v", d2.Intent, d2.ExitRisk)
	}
}

func TestSideMismatchGuardBlocksEntryOppositeOpenPosition(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	r.Side = types.Long
	r.PositionQty = decimal.NewFromInt(1)

	in := readyInput(0)
	in.HasPosition = true
	in.Position = types.PositionView{Side: types.Long, Qty: decimal.NewFromInt(1)}
	in.Legacy.DeltaZ = -1
	in.CVD.Slope5m = -0.01
	in.Legacy.OBIWeighted = decimal.NewFromFloat(-0.01)

	d := r.Evaluate(in)
	if d.Intent == types.IntentEnter {
		t.Fatalf("expected entry to be blocked while an opposite-side position is open")
	}
}

func TestAnchorHardVetoBlocksAltcoinEntryOppositeBias(t *testing.T) {
	r := NewRuntime("ETHUSDT", testConfig())

	var last types.Decision
	for i := 0; i < 6; i++ {
		in := readyInput(int64(1000 + i*10))
		in.Anchor = AnchorContext{BTCH1Dn: true, BTCH4Dn: true}
		last = r.Evaluate(in)
	}

	if last.Intent == types.IntentEnter {
		t.Fatalf("expected anchor hard veto to block a LONG candidate against a SHORT bias")
	}
	if r.Telemetry.CrossMarketVetoCount == 0 {
		t.Fatalf("expected cross-market veto telemetry to increment")
	}
}
