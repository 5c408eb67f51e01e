// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the core — book levels, venue
// frames, the stabilized categorical state, and the orchestrator's decision
// output. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents a position or order direction.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
	Flat  Side = "FLAT"
)

// TradeSide is the aggressor side of a trade print, derived by comparing
// the print price to the book's best bid/ask at print time.
type TradeSide string

const (
	TradeBuy     TradeSide = "buy"
	TradeSell    TradeSide = "sell"
	TradeUnknown TradeSide = "unknown"
)

// UIState is the book's observability state, surfaced to subscribers.
type UIState string

const (
	StateLive      UIState = "LIVE"
	StateStale     UIState = "STALE"
	StateResyncing UIState = "RESYNCING"
)

// DepthSource labels whether a served depth response came from the local
// cache or a fresh REST fetch.
type DepthSource string

const (
	SourceCache DepthSource = "cache"
	SourceFresh DepthSource = "fresh"
)

// OrderKind distinguishes passive post-only entries from marketable
// fallback/exit orders.
type OrderKind string

const (
	KindMakerPostOnly OrderKind = "MAKER_POST_ONLY"
	KindTaker         OrderKind = "TAKER"
)

// IntentType is the orchestrator's top-level decision for a tick.
type IntentType string

const (
	IntentHold   IntentType = "HOLD"
	IntentEnter  IntentType = "ENTER"
	IntentAdd    IntentType = "ADD"
	IntentExit   IntentType = "EXIT"
	IntentReduce IntentType = "REDUCE"
	IntentHoldFallback IntentType = "HOLD_FALLBACK"
)

// OrderLabel tags the specific role an emitted order plays, used by tests
// and telemetry to recognize scenario outcomes.
type OrderLabel string

const (
	LabelEntry               OrderLabel = "ENTRY"
	LabelTakerEntryFallback  OrderLabel = "TAKER_ENTRY_FALLBACK"
	LabelAdd1                OrderLabel = "ADD_1"
	LabelAdd2                OrderLabel = "ADD_2"
	LabelExitRiskMaker       OrderLabel = "EXIT_RISK_MAKER"
	LabelExitRiskTaker       OrderLabel = "TAKER_RISK_EXIT"
	LabelExitFlipMaker       OrderLabel = "EXIT_FLIP_MAKER"
	LabelExitFlipTaker       OrderLabel = "EXIT_FLIP_TAKER"
	LabelExitCrossMktMaker   OrderLabel = "EXIT_CROSSMARKET_MAKER"
	LabelExitCrossMktTaker   OrderLabel = "EXIT_CROSSMARKET_TAKER"
)

// ————————————————————————————————————————————————————————————————————————
// Book & venue frames
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level. Size == 0 in a diff means
// "remove this level"; Size > 0 in a book snapshot.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// CumulativeLevel is a book level annotated with the running total used in
// the outgoing MetricsSnapshot ladder (`[price, size, cumulative]`).
type CumulativeLevel struct {
	Price      decimal.Decimal
	Size       decimal.Decimal
	Cumulative decimal.Decimal
}

// MarshalJSON renders a CumulativeLevel as the wire tuple `[price,size,cumulative]`.
func (l CumulativeLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{l.Price.String(), l.Size.String(), l.Cumulative.String()})
}

// DepthSnapshotWire is the REST depth-snapshot response shape:
// `GET /fapi/v1/depth?symbol=S&limit=L -> {lastUpdateId, bids, asks}`.
type DepthSnapshotWire struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// DepthDiffFrame is the venue-native incremental depth update:
// `depthUpdate: {U,u,pu?,b:[[p,q],...],a:[[p,q],...]}`.
type DepthDiffFrame struct {
	EventType         string      `json:"e"`
	EventTimeMs       int64       `json:"E"`
	Symbol            string      `json:"s"`
	FirstUpdateID     uint64      `json:"U"`
	FinalUpdateID     uint64      `json:"u"`
	PrevFinalUpdateID uint64      `json:"pu"`
	Bids              [][2]string `json:"b"`
	Asks              [][2]string `json:"a"`
}

// AggTradeFrame is the venue-native aggregated-trade frame:
// `aggTrade: {E,T,s,p,q}`.
type AggTradeFrame struct {
	EventType   string `json:"e"`
	EventTimeMs int64  `json:"E"`
	TradeTimeMs int64  `json:"T"`
	Symbol      string `json:"s"`
	Price       string `json:"p"`
	Qty         string `json:"q"`
	IsBuyerMaker bool  `json:"m"`
}

// MiniTickerFrame is forwarded to subscribers unchanged; the core never
// inspects its fields, so it is kept as a raw JSON envelope plus the
// discriminator fields needed for routing.
type MiniTickerFrame struct {
	EventType string          `json:"e"`
	Symbol    string          `json:"s"`
	Raw       json.RawMessage `json:"-"`
}

// TradePrint is a decoded, side-classified trade used to feed flow
// aggregators. Side is computed by BookManager/Feed glue at ingestion time,
// not carried on the wire.
type TradePrint struct {
	Price       decimal.Decimal
	Qty         decimal.Decimal
	Side        TradeSide
	TimestampMs int64
}

// ————————————————————————————————————————————————————————————————————————
// Deterministic categorical state (spec §3)
// ————————————————————————————————————————————————————————————————————————

type FlowState string

const (
	FlowExpansion  FlowState = "EXPANSION"
	FlowExhaustion FlowState = "EXHAUSTION"
	FlowAbsorption FlowState = "ABSORPTION"
	FlowNeutral    FlowState = "NEUTRAL"
)

type RegimeState string

const (
	RegimeTrend        RegimeState = "TREND"
	RegimeChop         RegimeState = "CHOP"
	RegimeTransition   RegimeState = "TRANSITION"
	RegimeVolExpansion RegimeState = "VOL_EXPANSION"
)

type DerivativesState string

const (
	DerivLongBuild   DerivativesState = "LONG_BUILD"
	DerivShortBuild  DerivativesState = "SHORT_BUILD"
	DerivDeleverage  DerivativesState = "DELEVERAGING"
	DerivSqueezeRisk DerivativesState = "SQUEEZE_RISK"
)

type ToxicityState string

const (
	ToxicityClean      ToxicityState = "CLEAN"
	ToxicityAggressive ToxicityState = "AGGRESSIVE"
	ToxicityToxic      ToxicityState = "TOXIC"
)

type ExecutionState string

const (
	ExecutionHealthy        ExecutionState = "HEALTHY"
	ExecutionWideningSpread ExecutionState = "WIDENING_SPREAD"
	ExecutionLowResiliency  ExecutionState = "LOW_RESILIENCY"
)

type DirectionalBias string

const (
	BiasLong    DirectionalBias = "LONG"
	BiasShort   DirectionalBias = "SHORT"
	BiasNeutral DirectionalBias = "NEUTRAL"
)

// TrendSign is used for cvd_slope_sign / oi_direction.
type TrendSign string

const (
	SignUp   TrendSign = "UP"
	SignDown TrendSign = "DOWN"
	SignFlat TrendSign = "FLAT"
)

// DeterministicState is the stabilized categorical snapshot produced by the
// StateExtractor once per tick.
type DeterministicState struct {
	Flow                FlowState        `json:"flow"`
	Regime              RegimeState      `json:"regime"`
	Derivatives         DerivativesState `json:"derivatives"`
	Toxicity            ToxicityState    `json:"toxicity"`
	Execution           ExecutionState   `json:"execution"`
	DirectionalBias     DirectionalBias  `json:"directional_bias"`
	CVDSlopeSign        TrendSign        `json:"cvd_slope_sign"`
	OIDirection         TrendSign        `json:"oi_direction"`
	StateConfidence     float64          `json:"state_confidence"`
	VolatilityPercentile float64         `json:"volatility_percentile"`
	SpreadBps           float64          `json:"spread_bps"`
	ExpectedSlippageBps float64          `json:"expected_slippage_bps"`
}

// ————————————————————————————————————————————————————————————————————————
// Orchestrator decision output
// ————————————————————————————————————————————————————————————————————————

// OrderIntent is a single order the orchestrator wants placed this tick.
// It is emitted to the external FillSink; this core never submits it
// on-venue itself.
type OrderIntent struct {
	Label    OrderLabel      `json:"label"`
	Kind     OrderKind       `json:"kind"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	NotionalPct float64      `json:"notional_pct,omitempty"`
}

// GateResult records the pass/fail of gates A/B/C plus readiness for one
// tick, used both for the Decision subtree and for telemetry.
type GateResult struct {
	Ready      bool     `json:"ready"`
	ReadyReasons []string `json:"ready_reasons,omitempty"`
	GateA      bool     `json:"gate_a"`
	GateB      bool     `json:"gate_b"`
	GateC      bool     `json:"gate_c"`
	AllRaw     bool     `json:"all_gates_raw"`
	AllEffective bool   `json:"all_gates_effective"`
	EntryConfirmCount int `json:"entry_confirm_count"`
}

// ChaseStatus mirrors the entry-chase state machine (spec §4.5.7).
type ChaseStatus struct {
	State         string `json:"state"` // IDLE|CHASING|TIMED_OUT
	Active        bool   `json:"active"`
	ChaseStartTs  int64  `json:"chase_start_ts"`
	RepricesUsed  int    `json:"reprices_used"`
	TimedOutCount int    `json:"timed_out_count"`
}

// PositionView is the orchestrator's view of the symbol's position,
// synced each tick from the external FillSink.
type PositionView struct {
	Side      Side            `json:"side"`
	Qty       decimal.Decimal `json:"qty"`
	EntryVWAP decimal.Decimal `json:"entry_vwap"`
	BaseQty   decimal.Decimal `json:"base_qty"`
	AddsUsed  int             `json:"adds_used"`
}

// AddStatus reports the add-ladder state for telemetry.
type AddStatus struct {
	Triggered bool `json:"triggered"`
	Step      int  `json:"step,omitempty"`
}

// ExitStatus reports which exit path (if any) fired this tick.
type ExitStatus struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// Telemetry carries monotonic counters surfaced for observability.
type Telemetry struct {
	ChaseTimedOutCount   int `json:"chase_timed_out_count"`
	InvalidLLMResponses  int `json:"invalid_llm_responses"`
	CrossMarketVetoCount int `json:"cross_market_veto_count"`
	SideFlipCount        int `json:"side_flip_count"`
}

// Decision is the orchestrator's per-tick output.
type Decision struct {
	Intent    IntentType     `json:"intent"`
	Side      Side           `json:"side"`
	Gates     GateResult     `json:"gates"`
	Add       AddStatus      `json:"add"`
	ExitRisk  ExitStatus     `json:"exit_risk"`
	Position  PositionView   `json:"position"`
	Orders    []OrderIntent  `json:"orders"`
	Chase     ChaseStatus    `json:"chase"`
	Telemetry Telemetry      `json:"telemetry"`
	Reasons   []string       `json:"reasons,omitempty"`
}

// GovernedDecision is the RiskGovernor's rewrite of a Decision.
type GovernedDecision struct {
	Decision      Decision `json:"decision"`
	RiskMultiplier float64 `json:"risk_multiplier"`
	Reasons       []string `json:"reasons,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Policy advisor contract (spec §4.7)
// ————————————————————————————————————————————————————————————————————————

// AdvisorRequest is what the core sends the external PolicyAdvisor.
type AdvisorRequest struct {
	Symbol   string             `json:"symbol"`
	State    DeterministicState `json:"state"`
	Position PositionView       `json:"position"`
}

// AdvisorPolicy is the advisor's (possibly malformed) response, validated
// against this schema after lenient JSON repair.
type AdvisorPolicy struct {
	Intent         IntentType `json:"intent"`
	Side           Side       `json:"side"`
	RiskMultiplier float64    `json:"riskMultiplier"`
	Confidence     float64    `json:"confidence"`
}

// ————————————————————————————————————————————————————————————————————————
// Subscriber fan-out contract (spec §4.8 / §6)
// ————————————————————————————————————————————————————————————————————————

// MetricsSnapshot is the per-tick, per-symbol message published to
// subscribers.
type MetricsSnapshot struct {
	Type          string              `json:"type"` // always "metrics"
	Symbol        string              `json:"symbol"`
	State         UIState             `json:"state"`
	TimeAndSales  TimeAndSalesView    `json:"timeAndSales"`
	CVD           CVDView             `json:"cvd"`
	Absorption    int                 `json:"absorption"`
	OpenInterest  DerivativeMetricView `json:"openInterest"`
	Funding       DerivativeMetricView `json:"funding"`
	LegacyMetrics LegacyMetricsView   `json:"legacyMetrics"`
	Bids          []CumulativeLevel   `json:"bids"`
	Asks          []CumulativeLevel   `json:"asks"`
	MidPrice      decimal.Decimal     `json:"midPrice"`
	LastUpdateID  uint64              `json:"lastUpdateId"`
	DeterministicState DeterministicState `json:"deterministicState"`
	Decision      Decision            `json:"decision"`
}

// TimeAndSalesView is the TAS aggregator's per-tick public view.
type TimeAndSalesView struct {
	BuyCount       int     `json:"buyCount"`
	SellCount      int     `json:"sellCount"`
	AggressiveBuyVolume  decimal.Decimal `json:"aggressiveBuyVolume"`
	AggressiveSellVolume decimal.Decimal `json:"aggressiveSellVolume"`
	PrintsPerSecond float64 `json:"printsPerSecond"`
	BurstDetected   bool    `json:"burstDetected"`
	BurstSide       TradeSide `json:"burstSide"`
	AvgLatencyMs    float64 `json:"avgLatencyMs"`
}

// CVDView is the multi-timeframe CVD public view.
type CVDView struct {
	CVD1m     decimal.Decimal `json:"cvd1m"`
	CVD5m     decimal.Decimal `json:"cvd5m"`
	CVD15m    decimal.Decimal `json:"cvd15m"`
	Slope1m   float64         `json:"slope1m"`
	Slope5m   float64         `json:"slope5m"`
	Slope15m  float64         `json:"slope15m"`
	SessionCVD decimal.Decimal `json:"sessionCvd"`
}

// DerivativeMetricView is the common shape for OI/funding readings.
type DerivativeMetricView struct {
	Value float64 `json:"value"`
	Delta float64 `json:"delta"`
}

// LegacyMetricsView is the legacy metrics bundle (spec §3).
type LegacyMetricsView struct {
	OBIWeighted decimal.Decimal `json:"obiWeighted"`
	OBIDeep     decimal.Decimal `json:"obiDeep"`
	Delta1s     decimal.Decimal `json:"delta1s"`
	Delta5s     decimal.Decimal `json:"delta5s"`
	DeltaZ      float64         `json:"deltaZ"`
	SessionCVD  decimal.Decimal `json:"sessionCvd"`
	CVDSlope    float64         `json:"cvdSlope"`
	VWAP        decimal.Decimal `json:"vwap"`
	Mid         decimal.Decimal `json:"mid"`
}

// ————————————————————————————————————————————————————————————————————————
// HTTP contract (spec §6)
// ————————————————————————————————————————————————————————————————————————

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	OK              bool     `json:"ok"`
	UptimeSeconds   float64  `json:"uptime_s"`
	WSClients       int      `json:"ws_clients"`
	UpstreamWSState string   `json:"upstream_ws_state"`
	CacheSize       int      `json:"cache_size"`
	ActiveSymbols   []string `json:"active_symbols"`
}

// DepthResponse is the GET /api/depth/:symbol payload.
type DepthResponse struct {
	LastUpdateID uint64            `json:"lastUpdateId"`
	Bids         []CumulativeLevel `json:"bids"`
	Asks         []CumulativeLevel `json:"asks"`
	CachedAt     int64             `json:"cachedAt"`
	Source       DepthSource       `json:"source"`
}

// SubscribeControlMessage is the client->server control message:
// `{type:"subscribe"|"unsubscribe", symbols:[...]}`.
type SubscribeControlMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}
