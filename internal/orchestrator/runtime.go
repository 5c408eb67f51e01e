// Package orchestrator implements the per-symbol entry/add/exit state
// machine (spec §4.5): a single-threaded evaluator that turns one tick's
// market snapshot, deterministic state, and position view into a Decision.
//
// Grounded on the teacher's internal/strategy/maker.go quoteUpdate tick
// function (guarded staged pipeline, struct-held runtime fields, heavy
// slog.Debug instrumentation) and internal/strategy/inventory.go's
// running-VWAP-on-fill update (reused for the add-ladder's entryVwap
// recompute).
package orchestrator

import (
	"github.com/shopspring/decimal"

	"orderflow-core/internal/config"
	"orderflow-core/pkg/types"
)

// Runtime holds the scalar fields of per-symbol orchestrator state
// (spec §3's OrchestratorRuntime) that persist tick-to-tick.
type Runtime struct {
	Symbol string
	cfg    config.OrchestratorConfig

	// Position (§4.5.2)
	Side        types.Side
	PositionQty decimal.Decimal
	EntryVWAP   decimal.Decimal
	BaseQty     decimal.Decimal
	AddsUsed    int
	LastAddTsMs int64
	CooldownUntilMs int64

	// Chase (§4.5.7)
	ChaseState         string // IDLE|CHASING|TIMED_OUT
	ChaseActive        bool
	ChaseStartTsMs     int64 // sticky: set only on false->true
	ChaseLastRepriceTsMs int64
	RepricesUsed       int
	ChaseTimedOutCount int
	TakerFallbackUsed  bool

	// Hysteresis / side selection (§4.5.4)
	MicroSide            types.Side
	ConfirmCountLong      int
	ConfirmCountShort     int
	EntryConfirmCount     int
	LastSideChangeTsMs    int64

	// Smoothing (§4.5.3)
	SmoothedDeltaZ       float64
	SmoothedObiWeighted  float64
	SmoothedObiDeep      float64
	cvdSlopeWindow       []float64

	// Reversal (§4.5.9.1)
	FlipDetectedSide     types.Side
	FlipFirstDetectedMs  int64
	FlipPersistenceCount int

	// Exit (§4.5.9)
	ExitRiskActive             bool
	ExitMakerAttemptsUsed      int
	ExitTakerUsed              bool
	CrossMarketMismatchActive  bool
	CrossMarketMismatchSinceMs int64

	// 5-minute rolling event lists (timestamps only, pruned on each push)
	sideFlipEvents    []int64
	gateTrueEvents    []int64
	entryIntentEvents []int64

	// Telemetry counters (monotonic)
	Telemetry types.Telemetry
}

// NewRuntime creates a fresh Runtime for symbol.
func NewRuntime(symbol string, cfg config.OrchestratorConfig) *Runtime {
	return &Runtime{
		Symbol:     symbol,
		cfg:        cfg,
		Side:       types.Flat,
		MicroSide:  types.Flat,
		ChaseState: "IDLE",
	}
}

// SyncPosition adopts or zeroes the position fields from the external
// FillSink's authoritative view (spec §4.5.2). When flat the micro side
// (last detected directional signal) is retained across ticks.
func (r *Runtime) SyncPosition(pos types.PositionView, hasPosition bool) {
	if hasPosition {
		r.Side = pos.Side
		r.PositionQty = pos.Qty
		r.EntryVWAP = pos.EntryVWAP
		r.BaseQty = pos.BaseQty
		r.AddsUsed = pos.AddsUsed
		return
	}
	r.Side = types.Flat
	r.PositionQty = decimal.Zero
	r.EntryVWAP = decimal.Zero
	r.BaseQty = decimal.Zero
	r.AddsUsed = 0
}

func (r *Runtime) hasPosition() bool {
	return r.Side != types.Flat && !r.PositionQty.IsZero()
}

// cooldownDurationMs is spec §6's re-entry cooldown after a taker exit,
// timeout-fallback, or chase-abort (§4.5.7/§4.5.9): the configured fixed
// CooldownAfterAbortMs, or ReentryCooldownBars worth of bars, whichever is
// longer.
func (r *Runtime) cooldownDurationMs() int64 {
	fromBars := int64(r.cfg.ReentryCooldownBars) * r.cfg.BarIntervalMs
	if fromBars > r.cfg.CooldownAfterAbortMs {
		return fromBars
	}
	return r.cfg.CooldownAfterAbortMs
}

func pushEvent(events []int64, nowMs, windowMs int64) []int64 {
	events = append(events, nowMs)
	cutoff := nowMs - windowMs
	kept := events[:0]
	for _, ts := range events {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

const fiveMinuteWindowMs = 5 * 60 * 1000

func (r *Runtime) recordSideFlip(nowMs int64) {
	r.sideFlipEvents = pushEvent(r.sideFlipEvents, nowMs, fiveMinuteWindowMs)
	r.Telemetry.SideFlipCount++
}

func (r *Runtime) recordGateTrue(nowMs int64) {
	r.gateTrueEvents = pushEvent(r.gateTrueEvents, nowMs, fiveMinuteWindowMs)
}

func (r *Runtime) recordEntryIntent(nowMs int64) {
	r.entryIntentEvents = pushEvent(r.entryIntentEvents, nowMs, fiveMinuteWindowMs)
}
