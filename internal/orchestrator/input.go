package orchestrator

import (
	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

// HTFContext carries the higher-timeframe structure the HTF filter and
// readiness check consume (spec §4.5.1, §4.5.10).
type HTFContext struct {
	H1BarStartPresent bool
	H4BarStartPresent bool
	SwingLow          decimal.Decimal
	SwingHigh         decimal.Decimal
	StructureBreakUp  bool
	StructureBreakDn  bool
}

// AnchorContext carries the cross-market bias inputs (spec §4.5.11).
type AnchorContext struct {
	IsAnchorSymbol bool // true when this symbol IS the anchor (e.g. BTC); anchor never vetoes itself
	BTCH1Up        bool
	BTCH4Up        bool
	BTCH1Dn        bool
	BTCH4Dn        bool
	BTCHasPosition bool
	BTCPositionSide types.Side
}

// Input bundles one tick's market snapshot, deterministic state, and
// context needed to evaluate the orchestrator (spec §4.5).
type Input struct {
	NowMs int64

	// Readiness (§4.5.1)
	BackfillDone     bool
	BarsLoaded       int
	SessionVWAPSet   bool
	HTF              HTFContext

	// Position (§4.5.2)
	Position    types.PositionView
	HasPosition bool

	// Market data
	BestBid, BestAsk, Mid decimal.Decimal
	SpreadPct             float64
	SessionVWAP           decimal.Decimal
	RealizedVol1m         float64
	ATR3m                 decimal.Decimal
	OrderbookIntegrityLevel float64

	// Raw regime readings behind Gate A's numeric thresholds (the
	// DeterministicState.Regime field is only the stabilized category).
	Trendiness float64
	Chop       float64
	VolOfVol   float64

	State    types.DeterministicState
	TAS      types.TimeAndSalesView
	CVD      types.CVDView
	Legacy   types.LegacyMetricsView
	OI       types.DerivativeMetricView

	Anchor AnchorContext
}
