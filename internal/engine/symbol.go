package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-core/internal/book"
	"orderflow-core/internal/config"
	"orderflow-core/internal/exchange"
	"orderflow-core/internal/flow"
	"orderflow-core/internal/orchestrator"
	"orderflow-core/internal/state"
	"orderflow-core/pkg/types"
)

const (
	tickInterval   = 250 * time.Millisecond
	restCallTimeout = 10 * time.Second
	midHistoryMax  = 180
)

// completion is a closure posted back onto a symbolTask's own goroutine by
// an async REST/advisor call, so the result is applied without the task
// goroutine ever blocking on the network round trip (spec §5's "resync and
// advisor calls are suspension points bounded by a single in-flight guard;
// WS frames are still applied while one is pending").
type completion func(t *symbolTask)

// symbolTask owns one symbol's entire processing pipeline: book, flow
// aggregators, state extractor, orchestrator runtime, and the last
// published MetricsSnapshot. Every field below is touched only by this
// task's own goroutine (run) — the arena+index model spec §9 calls for, in
// place of the teacher's shared-ownership marketSlot map. The Engine that
// owns this task reaches it only through the inbox/completions channels and
// the read-only cached snapshot guarded by snapMu.
type symbolTask struct {
	symbol string
	cfg    *config.Config
	logger *slog.Logger

	book       *book.OrderBook
	tas        *flow.TimeAndSales
	cvd        *flow.CVD
	legacy     *flow.LegacyMetrics
	absorption *flow.Absorption
	extractor  *state.StateExtractor
	htf        *htfTracker
	runtime    *orchestrator.Runtime

	rest *exchange.RESTClient

	inbox       chan exchange.RawFrame
	completions chan completion

	resyncPending   bool
	advisorPending  bool
	haveAdvisorResp bool
	lastAdvisorResp types.AdvisorPolicy

	lastOI      types.DerivativeMetricView
	lastFunding types.DerivativeMetricView

	lastAbsorptionConfirmed bool

	midHistory []float64
	volHistory []float64
	barsLoaded int

	snapMu       sync.RWMutex
	lastSnapshot types.MetricsSnapshot
	haveSnapshot bool

	eng *Engine
}

func newSymbolTask(eng *Engine, symbol string) *symbolTask {
	return &symbolTask{
		symbol:      symbol,
		cfg:         eng.cfg,
		logger:      eng.logger.With("symbol", symbol),
		book:        book.New(symbol),
		tas:         flow.NewTimeAndSales(),
		cvd:         flow.NewCVD(),
		legacy:      flow.NewLegacyMetrics(),
		absorption:  flow.NewAbsorption(),
		extractor:   state.NewStateExtractor(),
		htf:         newHTFTracker(),
		runtime:     orchestrator.NewRuntime(symbol, eng.cfg.Orchestrator),
		rest:        eng.rest,
		inbox:       make(chan exchange.RawFrame, 1024),
		completions: make(chan completion, 16),
		eng:         eng,
	}
}

// run is the single-threaded cooperative loop (spec §5): book application,
// flow aggregation, the periodic tick evaluation, and the derivatives
// pollers all happen on this one goroutine, in strict arrival order.
func (t *symbolTask) run(ctx context.Context) {
	defer t.eng.wg.Done()

	tickTicker := time.NewTicker(tickInterval)
	oiTicker := time.NewTicker(t.cfg.Venue.OIPollInterval)
	fundingTicker := time.NewTicker(t.cfg.Venue.FundingPollInterval)
	defer tickTicker.Stop()
	defer oiTicker.Stop()
	defer fundingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-t.inbox:
			if !ok {
				return
			}
			t.handleFrame(ctx, frame)

		case fn := <-t.completions:
			fn(t)

		case <-oiTicker.C:
			t.pollOI(ctx)

		case <-fundingTicker.C:
			t.pollFunding(ctx)

		case <-tickTicker.C:
			t.evaluateTick()
		}
	}
}

func (t *symbolTask) handleFrame(ctx context.Context, frame exchange.RawFrame) {
	if t.eng.publishRaw != nil {
		t.eng.publishRaw(t.symbol, frame.Payload)
	}

	switch frame.EventType {
	case "depthUpdate":
		var diff types.DepthDiffFrame
		if err := json.Unmarshal(frame.Payload, &diff); err != nil {
			t.logger.Warn("malformed depth diff, dropped", "error", err)
			return
		}
		outcome := t.book.ApplyDiff(diff, diff.EventTimeMs)
		if outcome == book.DiffGap {
			t.beginResync(ctx)
		}

	case "aggTrade":
		var trade types.AggTradeFrame
		if err := json.Unmarshal(frame.Payload, &trade); err != nil {
			t.logger.Warn("malformed agg trade, dropped", "error", err)
			return
		}
		price, err := decimal.NewFromString(trade.Price)
		if err != nil {
			return
		}
		qty, err := decimal.NewFromString(trade.Qty)
		if err != nil {
			return
		}
		// Binance-convention aggressor inference: "m" true means the buyer
		// was the resting maker, so the trade was seller-initiated.
		side := types.TradeBuy
		if trade.IsBuyerMaker {
			side = types.TradeSell
		}
		print := types.TradePrint{Price: price, Qty: qty, Side: side, TimestampMs: trade.TradeTimeMs}

		t.tas.Add(print)
		t.cvd.Add(print)
		t.legacy.Add(print)
		t.lastAbsorptionConfirmed = t.absorption.Update(print, t.book.LevelSize) == 1
		t.htf.onTrade(print.TimestampMs, print.Price)

	default:
		// miniTicker and any other discriminator: forwarded raw above,
		// nothing to apply internally.
	}
}

func (t *symbolTask) beginResync(ctx context.Context) {
	if !t.book.BeginResync() {
		return
	}
	t.resyncPending = true
	go func() {
		cctx, cancel := context.WithTimeout(ctx, restCallTimeout)
		defer cancel()
		snap, err := t.rest.FetchDepth(cctx, t.symbol, t.cfg.Venue.DepthLimit)
		t.completions <- func(t *symbolTask) {
			defer t.book.EndResyncAttempt()
			t.resyncPending = false
			if err != nil {
				t.logger.Warn("resync fetch failed", "error", err)
				return
			}
			if err := t.book.ApplySnapshot(snap, time.Now().UnixMilli()); err != nil {
				t.logger.Warn("resync snapshot rejected", "error", err)
			}
		}
	}()
}

func (t *symbolTask) pollOI(ctx context.Context) {
	go func() {
		cctx, cancel := context.WithTimeout(ctx, restCallTimeout)
		defer cancel()
		val, err := t.rest.FetchOpenInterest(cctx, t.symbol)
		t.completions <- func(t *symbolTask) {
			if err != nil {
				t.logger.Warn("open interest poll failed", "error", err)
				return
			}
			delta := 0.0
			if prev := t.lastOI.Value; prev != 0 {
				delta = (val - prev) / prev
			}
			t.lastOI = types.DerivativeMetricView{Value: val, Delta: delta}
		}
	}()
}

func (t *symbolTask) pollFunding(ctx context.Context) {
	go func() {
		cctx, cancel := context.WithTimeout(ctx, restCallTimeout)
		defer cancel()
		val, err := t.rest.FetchFundingRate(cctx, t.symbol)
		t.completions <- func(t *symbolTask) {
			if err != nil {
				t.logger.Warn("funding rate poll failed", "error", err)
				return
			}
			delta := val - t.lastFunding.Value
			t.lastFunding = types.DerivativeMetricView{Value: val, Delta: delta}
		}
	}()
}

func (t *symbolTask) requestAdvisor(req types.AdvisorRequest) {
	if t.advisorPending || !t.cfg.Advisor.Enabled {
		return
	}
	t.advisorPending = true
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), time.Duration(t.cfg.Advisor.TimeoutMs)*time.Millisecond)
		defer cancel()
		policy, err := t.eng.advisor.Advise(cctx, req)
		t.completions <- func(t *symbolTask) {
			t.advisorPending = false
			if err != nil {
				t.logger.Debug("advisor call failed, keeping deterministic policy", "error", err)
				return
			}
			t.lastAdvisorResp = policy
			t.haveAdvisorResp = true
		}
	}()
}

// mergePolicy implements spec §4.7's guarantee: the advisor may only
// confirm or narrow (toward HOLD) the orchestrator's own deterministic
// intent/side — it can never grant an intent the deterministic path didn't
// already produce, so a disabled or failing advisor (which answers with a
// neutral HOLD/Flat/zero-confidence fallback) never forces every tick to
// HOLD.
func mergePolicy(decision types.Decision, resp types.AdvisorPolicy, haveResp bool) types.AdvisorPolicy {
	deterministic := types.AdvisorPolicy{Intent: decision.Intent, Side: decision.Side, RiskMultiplier: 1, Confidence: 1}
	if !haveResp {
		return deterministic
	}
	switch {
	case resp.Intent == decision.Intent:
		return types.AdvisorPolicy{Intent: decision.Intent, Side: decision.Side, RiskMultiplier: resp.RiskMultiplier, Confidence: resp.Confidence}
	case resp.Intent == types.IntentHold:
		return resp
	default:
		return deterministic
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

func signOf(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
