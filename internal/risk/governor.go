// Package risk enforces the final, synchronous guardrail pass between the
// orchestrator's candidate decision and the order intents it is allowed to
// emit.
//
// Unlike the teacher's internal/risk, which runs as a standalone goroutine
// consuming PositionReports off a channel and emitting async KillSignals,
// RiskGovernor.Govern is a pure per-tick function: the orchestrator calls it
// once per symbol per tick with the candidate decision, advisor policy,
// deterministic state, and metrics snapshot, and gets back a GovernedDecision
// immediately. The rule set below (hard conditions, drawdown, execution
// quality, entry/add/reduce gating, adaptive sizing) mirrors the teacher's
// exposure-headroom and price-movement kill-switch checks, restructured into
// the eight ordered rules spec'd for this venue.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"orderflow-core/internal/config"
	"orderflow-core/pkg/types"
)

// Governor applies the ordered guardrail rules to a candidate decision.
type Governor struct {
	cfg    config.RiskConfig
	logger *slog.Logger
}

// NewGovernor creates a RiskGovernor bound to the given risk configuration.
func NewGovernor(cfg config.RiskConfig, logger *slog.Logger) *Governor {
	return &Governor{cfg: cfg, logger: logger.With("component", "risk")}
}

// Input bundles everything the Governor needs to re-judge one tick's
// candidate decision. UnrealizedPnLFraction follows the spec.md §9 open
// question: it is a fraction (0.01 == 1%), not a percent or bps value —
// see DESIGN.md's open-question decision for the rationale.
type Input struct {
	Decision             types.Decision
	Policy               types.AdvisorPolicy
	State                types.DeterministicState
	Snapshot             types.MetricsSnapshot
	CurrentNotional      float64
	UnrealizedPnLFraction float64
}

// Govern applies the eight ordered rules (spec §4.6) and returns the final
// GovernedDecision. Each rule that fires appends a human-readable reason;
// later rules still observe the possibly-rewritten intent/side from earlier
// ones.
func (g *Governor) Govern(in Input) types.GovernedDecision {
	decision := in.Decision
	decision.Intent = in.Policy.Intent
	decision.Side = in.Policy.Side

	reasons := make([]string, 0, 4)
	hasPosition := decision.Position.Side != types.Flat && !decision.Position.Qty.IsZero()

	// Rule 1: hard conditions force a reduce (or hold if flat).
	if g.hardConditionTripped(in) {
		if hasPosition {
			decision.Intent = types.IntentReduce
			decision.Side = decision.Position.Side
			reasons = append(reasons, "hard_condition: forced reduce")
		} else {
			decision.Intent = types.IntentHold
			reasons = append(reasons, "hard_condition: forced hold (flat)")
		}
	}

	// Rule 2: daily loss cap / drawdown reduce.
	if in.UnrealizedPnLFraction <= -g.cfg.DailyLossCapFraction {
		if hasPosition {
			decision.Intent = types.IntentReduce
			decision.Side = decision.Position.Side
		} else {
			decision.Intent = types.IntentHold
		}
		reasons = append(reasons, fmt.Sprintf("daily_loss_cap: pnl_fraction=%.4f <= -%.4f", in.UnrealizedPnLFraction, g.cfg.DailyLossCapFraction))
	} else if in.UnrealizedPnLFraction <= -g.cfg.DrawdownReduceFraction && hasPosition {
		decision.Intent = types.IntentReduce
		decision.Side = decision.Position.Side
		reasons = append(reasons, fmt.Sprintf("drawdown_reduce: pnl_fraction=%.4f <= -%.4f", in.UnrealizedPnLFraction, g.cfg.DrawdownReduceFraction))
	}

	// Rule 3: execution quality blocks ENTER/ADD.
	if in.State.Execution != types.ExecutionHealthy && (decision.Intent == types.IntentEnter || decision.Intent == types.IntentAdd) {
		decision.Intent = types.IntentHold
		reasons = append(reasons, fmt.Sprintf("execution_not_healthy: %s blocks %s", in.State.Execution, in.Policy.Intent))
	}

	// Rule 4: ENTER requires flat and positive notional limit, plus the
	// counter-trend guard.
	if decision.Intent == types.IntentEnter {
		if hasPosition || g.cfg.MaxPositionNotional <= 0 {
			decision.Intent = types.IntentHold
			reasons = append(reasons, "enter_blocked: not flat or no notional limit configured")
		} else if g.counterTrend(in) {
			decision.Intent = types.IntentHold
			reasons = append(reasons, "counter_trend_guard: trendiness+score gap vetoed entry")
		}
	}

	// Rule 5: ADD requires same-side position and exposure headroom.
	if decision.Intent == types.IntentAdd {
		maxExposure := g.cfg.MaxPositionNotional * g.cfg.MaxExposureMultiplier
		if !hasPosition || decision.Position.Side != decision.Side || in.CurrentNotional >= maxExposure {
			decision.Intent = types.IntentHold
			reasons = append(reasons, fmt.Sprintf("add_blocked: notional=%.2f max_exposure=%.2f", in.CurrentNotional, maxExposure))
		}
	}

	// Rule 6: REDUCE without a hard risk trigger and within the notional
	// floor is downgraded to HOLD.
	if decision.Intent == types.IntentReduce && !g.hardConditionTripped(in) && in.CurrentNotional <= g.cfg.MaxPositionNotional {
		decision.Intent = types.IntentHold
		reasons = append(reasons, "notional_floor_protect: reduce downgraded to hold")
	}

	// Rule 7: optional loser-realize block.
	if g.cfg.LoserRealizeBlockEnabled && in.UnrealizedPnLFraction < 0 && !g.hardConditionTripped(in) &&
		(decision.Intent == types.IntentReduce || decision.Intent == types.IntentExit) {
		decision.Intent = types.IntentHold
		reasons = append(reasons, "loser_realize_block: refused to realize a loss absent hard risk")
	}

	// Rule 8: adaptive risk multiplier.
	multiplier := g.adaptiveMultiplier(in.Policy.RiskMultiplier, in.UnrealizedPnLFraction, g.hardConditionTripped(in))

	g.logger.Debug("governed decision",
		"symbol", in.Snapshot.Symbol,
		"policy_intent", in.Policy.Intent,
		"final_intent", decision.Intent,
		"risk_multiplier", multiplier,
		"reasons", reasons,
	)

	return types.GovernedDecision{
		Decision:       decision,
		RiskMultiplier: multiplier,
		Reasons:        reasons,
	}
}

func (g *Governor) hardConditionTripped(in Input) bool {
	return in.State.ExpectedSlippageBps >= g.cfg.SlippageHardBps ||
		in.State.Toxicity == types.ToxicityToxic ||
		in.State.VolatilityPercentile >= g.cfg.VolHardLimitPct ||
		in.State.ExpectedSlippageBps >= g.cfg.HardLiqRiskThreshold
}

func (g *Governor) counterTrend(in Input) bool {
	if in.State.Regime != types.RegimeTrend {
		return false
	}
	if in.State.Regime == types.RegimeTrend && in.Policy.Confidence < g.cfg.CounterTrendScoreGap {
		return in.State.VolatilityPercentile >= g.cfg.CounterTrendTrendinessThreshold*100
	}
	return false
}

// adaptiveMultiplier scales the advisor's suggested multiplier: winners
// scale toward 2x (capped), losers are halved, and the final value is
// clamped to [0.01, 2.0] (spec §4.6 rule 8). When hard risk is tripped
// (spec §8.8), the multiplier is additionally capped at max(1, base) so a
// winning position can't scale risk up while hard conditions hold.
func (g *Governor) adaptiveMultiplier(base, pnlFraction float64, hardTripped bool) float64 {
	m := base
	if pnlFraction >= 0 {
		// pnl% == pnlFraction*100, so 1 + pnl%/100 == 1 + pnlFraction.
		m = m * math.Min(2, 1+pnlFraction)
	} else {
		m = m * 0.5
	}
	if m < 0.01 {
		m = 0.01
	}
	if m > 2.0 {
		m = 2.0
	}
	if hardTripped {
		if cap := math.Max(1, base); m > cap {
			m = cap
		}
	}
	return m
}
