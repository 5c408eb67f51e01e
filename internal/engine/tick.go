package engine

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-core/internal/orchestrator"
	"orderflow-core/internal/risk"
	"orderflow-core/internal/state"
	"orderflow-core/pkg/types"
)

// These scale constants turn continuous readings the flow/book packages
// already expose into the [0,1]-ish proxies state.RawInputs expects for
// trendiness/chop/burst/liquidity-risk. spec.md fixes the downstream
// classification thresholds but not how to derive these particular inputs
// from this venue's raw feed, so the derivation itself is an engine-level
// judgment call, recorded in DESIGN.md.
const (
	trendinessSlopeScale = 500.0
	burstPrintsScale     = 5.0
	liqProxyOIScale      = 10.0
	snapshotDepthLevels  = 20
	obiSumDepthLevels    = 100

	// bookStaleMaxAgeMs is spec §7's "no intent is emitted while the book
	// is stale beyond 3s".
	bookStaleMaxAgeMs = 3_000
)

// evaluateTick runs one full pipeline pass for the symbol: assemble
// RawInputs from the book/flow/derivatives state, classify, evaluate the
// orchestrator, merge the advisor policy, govern, size and apply any
// emitted orders against the FillSink, and publish the resulting
// MetricsSnapshot.
func (t *symbolTask) evaluateTick() {
	bestBid, okBid := t.book.BestBid()
	bestAsk, okAsk := t.book.BestAsk()
	if !okBid || !okAsk {
		return
	}
	mid := t.book.MidPrice()
	if mid.IsZero() {
		return
	}
	nowMs := time.Now().UnixMilli()
	t.book.RefreshStaleness(nowMs, bookStaleMaxAgeMs)
	midF, _ := mid.Float64()

	t.midHistory = append(t.midHistory, midF)
	if len(t.midHistory) > midHistoryMax {
		t.midHistory = t.midHistory[len(t.midHistory)-midHistoryMax:]
	}
	realizedVol := stdDev(computeReturns(t.midHistory))
	t.volHistory = append(t.volHistory, realizedVol)
	if len(t.volHistory) > midHistoryMax {
		t.volHistory = t.volHistory[len(t.volHistory)-midHistoryMax:]
	}
	volOfVol := stdDev(t.volHistory)

	t.barsLoaded++

	deepBids := t.book.TopBids(obiSumDepthLevels)
	deepAsks := t.book.TopAsks(obiSumDepthLevels)
	legacyView := t.legacy.View(deepBids, deepAsks, mid)
	tasView := t.tas.View(nowMs)
	cvdView := t.cvd.View()

	spreadAbs := bestAsk.Price.Sub(bestBid.Price)
	spreadPct := 0.0
	if !mid.IsZero() {
		spreadPct, _ = spreadAbs.Div(mid).Float64()
	}
	spreadBps := spreadPct * 10_000
	slippageBps := spreadBps * 0.5

	volPercentile := t.extractor.VolatilityPercentile(realizedVol)

	trendiness := clampUnit(math.Abs(cvdView.Slope5m) / trendinessSlopeScale)
	chop := clampUnit(1 - trendiness)

	delta1sF, _ := legacyView.Delta1s.Float64()
	cvd5mF, _ := cvdView.CVD5m.Float64()
	obiDeepF, _ := legacyView.OBIDeep.Float64()
	obiWeightedF, _ := legacyView.OBIWeighted.Float64()

	buyVolF, _ := tasView.AggressiveBuyVolume.Float64()
	sellVolF, _ := tasView.AggressiveSellVolume.Float64()
	totalVol := buyVolF + sellVolF
	vpin, aggImbalance := 0.0, 0.0
	if totalVol > 0 {
		vpin = math.Abs(buyVolF-sellVolF) / totalVol
		aggImbalance = (buyVolF - sellVolF) / totalVol
	}

	burstScore := clampUnit(tasView.PrintsPerSecond / burstPrintsScale)
	if tasView.BurstDetected {
		burstScore = 1.0
	}

	oiAligned := 0.0
	if signOf(t.lastOI.Delta) != 0 && signOf(delta1sF) != 0 {
		if signOf(t.lastOI.Delta) == signOf(delta1sF) {
			oiAligned = 1
		} else {
			oiAligned = -1
		}
	}
	liqProxy := clampUnit(math.Abs(t.lastOI.Delta) * liqProxyOIScale)

	absorptionValue := 0.0
	if t.lastAbsorptionConfirmed {
		absorptionValue = 1.0
	}

	raw := state.RawInputs{
		AbsorptionConfirmed: t.lastAbsorptionConfirmed,
		AbsorptionValue:     absorptionValue,
		DeltaZ:              legacyView.DeltaZ,
		CVD:                 cvd5mF,
		VolatilityPercentile: volPercentile,
		VolOfVol:            volOfVol,
		Trendiness:          trendiness,
		Chop:                chop,
		LiqProxy:            liqProxy,
		OIChangePct:         t.lastOI.Delta,
		DeltaSign:           signOf(delta1sF),
		VPIN:                vpin,
		BurstScore:          burstScore,
		ImpactCoeff:         slippageBps / 10_000,
		SpreadBps:           spreadBps,
		SlippageBps:         slippageBps,
		Delta:               delta1sF,
		ObiDeep:             obiDeepF,
		ObiWeighted:         obiWeightedF,
		AggressiveImbalance: aggImbalance,
		OIAligned:           oiAligned,
		// No spot feed exists in a venue-internal futures core, so the
		// funding rate itself stands in for the perp/spot basis signal
		// (same sign convention: positive funding ~ perp trading rich).
		PerpBasis: t.lastFunding.Value,
	}

	detState := t.extractor.Extract(raw, t.cvd.Slope5mSign(), signTrend(t.lastOI.Delta), spreadBps, slippageBps)

	pos, hasPosition := t.eng.fillSink.Position(t.symbol)

	integrityLevel := 1.0
	switch t.book.UIState() {
	case types.StateLive:
		integrityLevel = 1.0
	case types.StateStale:
		integrityLevel = 0.3
	case types.StateResyncing:
		integrityLevel = 0.0
	}

	atr3m := decimal.NewFromFloat(realizedVol * midF)

	input := orchestrator.Input{
		NowMs: nowMs,

		BackfillDone:   t.barsLoaded >= t.cfg.Orchestrator.MinBarsLoaded,
		BarsLoaded:     t.barsLoaded,
		SessionVWAPSet: !legacyView.VWAP.IsZero(),
		HTF:            t.htf.context(),

		Position:    pos,
		HasPosition: hasPosition,

		BestBid: bestBid.Price,
		BestAsk: bestAsk.Price,
		Mid:     mid,

		SpreadPct:               spreadPct,
		SessionVWAP:             legacyView.VWAP,
		RealizedVol1m:           realizedVol,
		ATR3m:                   atr3m,
		OrderbookIntegrityLevel: integrityLevel,

		Trendiness: trendiness,
		Chop:       chop,
		VolOfVol:   volOfVol,

		State:  detState,
		TAS:    tasView,
		CVD:    cvdView,
		Legacy: legacyView,
		OI:     t.lastOI,

		Anchor: t.eng.anchorContext(t.symbol),
	}

	decision := t.runtime.Evaluate(input)

	t.requestAdvisor(types.AdvisorRequest{Symbol: t.symbol, State: detState, Position: pos})
	policy := mergePolicy(decision, t.lastAdvisorResp, t.haveAdvisorResp)

	currentNotional := 0.0
	if hasPosition {
		currentNotional, _ = pos.Qty.Mul(mid).Float64()
	}
	unrealizedFraction := t.unrealizedPnLFraction(pos, hasPosition, mid)

	governed := t.eng.governor.Govern(risk.Input{
		Decision:              decision,
		Policy:                policy,
		State:                 detState,
		Snapshot:              types.MetricsSnapshot{Symbol: t.symbol},
		CurrentNotional:       currentNotional,
		UnrealizedPnLFraction: unrealizedFraction,
	})

	if t.book.IsStale(nowMs, bookStaleMaxAgeMs) {
		governed.Decision.Orders = nil
	}
	t.applyOrders(&governed, mid)

	snapshot := types.MetricsSnapshot{
		Type:               "metrics",
		Symbol:             t.symbol,
		State:              t.book.UIState(),
		TimeAndSales:       tasView,
		CVD:                cvdView,
		Absorption:         boolToInt(t.lastAbsorptionConfirmed),
		OpenInterest:       t.lastOI,
		Funding:            t.lastFunding,
		LegacyMetrics:      legacyView,
		Bids:               t.book.TopBids(snapshotDepthLevels),
		Asks:               t.book.TopAsks(snapshotDepthLevels),
		MidPrice:           mid,
		LastUpdateID:       t.book.LastUpdateID(),
		DeterministicState: detState,
		Decision:           governed.Decision,
	}

	t.snapMu.Lock()
	t.lastSnapshot = snapshot
	t.haveSnapshot = true
	t.snapMu.Unlock()

	if t.eng.publishMetrics != nil {
		t.eng.publishMetrics(snapshot)
	}

	positionAfter, hasPositionAfter := t.eng.fillSink.Position(t.symbol)
	h1Up, h4Up := t.htf.structureUp()
	h1Dn, h4Dn := t.htf.structureDn()
	t.eng.recordHTF(t.symbol, h1Up, h4Up, h1Dn, h4Dn, hasPositionAfter, positionAfter.Side)

	if !hasPositionAfter {
		t.eng.maybeRetireSymbol(t.symbol)
	}
}

// applyOrders sizes each emitted OrderIntent and applies it to the
// DryRunFillSink, mutating governed.Decision.Orders in place so the
// published snapshot reflects the quantities actually filled.
func (t *symbolTask) applyOrders(governed *types.GovernedDecision, mid decimal.Decimal) {
	for i := range governed.Decision.Orders {
		order := &governed.Decision.Orders[i]

		fillPrice := order.Price
		if order.Kind == types.KindTaker || fillPrice.IsZero() {
			fillPrice = mid
		}

		qty := order.Qty
		if qty.IsZero() && !fillPrice.IsZero() {
			notional := t.cfg.Risk.EntryNotional
			if order.NotionalPct > 0 {
				notional = t.cfg.Risk.MaxPositionNotional * order.NotionalPct
			}
			qty = decimal.NewFromFloat(notional).Div(fillPrice)
		}
		order.Qty = qty

		t.eng.fillSink.Fill(t.symbol, *order, fillPrice, qty)
		if governed.Decision.Intent == types.IntentAdd {
			t.eng.fillSink.RecordAdd(t.symbol)
		}
	}
}

// unrealizedPnLFraction computes today's equity drift against the
// day-start baseline (spec §9 decision: a fraction, not a percent/bps).
func (t *symbolTask) unrealizedPnLFraction(pos types.PositionView, hasPosition bool, mid decimal.Decimal) float64 {
	unrealized := decimal.Zero
	if hasPosition {
		if pos.Side == types.Long {
			unrealized = mid.Sub(pos.EntryVWAP).Mul(pos.Qty)
		} else {
			unrealized = pos.EntryVWAP.Sub(mid).Mul(pos.Qty)
		}
	}
	realized := t.eng.fillSink.RealizedPnL(t.symbol)
	currentEquity, _ := realized.Add(unrealized).Float64()

	baseline, err := t.eng.equity.Baseline(t.symbol, currentEquity)
	if err != nil {
		t.logger.Warn("equity baseline lookup failed", "error", err)
		return 0
	}
	if baseline == 0 {
		return 0
	}
	return (currentEquity - baseline) / math.Abs(baseline)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func signTrend(v float64) types.TrendSign {
	switch {
	case v > 0:
		return types.SignUp
	case v < 0:
		return types.SignDown
	default:
		return types.SignFlat
	}
}

func computeReturns(mids []float64) []float64 {
	if len(mids) < 2 {
		return nil
	}
	out := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		prev := mids[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, (mids[i]-prev)/prev)
	}
	return out
}
