// Package config defines all configuration for the orderflow execution
// core. Config is loaded from a YAML file (default: configs/config.yaml)
// with overrides via CORE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun       bool               `mapstructure:"dry_run"`
	Venue        VenueConfig        `mapstructure:"venue"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Advisor      AdvisorConfig      `mapstructure:"advisor"`
	Store        StoreConfig        `mapstructure:"store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
}

// VenueConfig holds the exchange's market-data endpoints.
type VenueConfig struct {
	WSBaseURL      string   `mapstructure:"ws_base_url"`
	RESTBaseURL    string   `mapstructure:"rest_base_url"`
	Symbols        []string `mapstructure:"symbols"`
	DepthLimit     int      `mapstructure:"depth_limit"`
	OIPollInterval time.Duration `mapstructure:"oi_poll_interval"`
	FundingPollInterval time.Duration `mapstructure:"funding_poll_interval"`
}

// OrchestratorConfig carries every threshold named in spec §6 that gates
// readiness, gates A/B/C, the chase state machine, the add ladder, and
// hysteresis. Values here are defaults; the micro-side score weights are
// explicitly configuration per spec §9, not compiled-in invariants.
type OrchestratorConfig struct {
	BarIntervalMs              int64   `mapstructure:"bar_interval_ms"`
	MinBarsLoaded              int     `mapstructure:"min_bars_loaded"`
	MinPrintsPerSecond         float64 `mapstructure:"min_prints_per_second"`
	StateConfidenceThreshold   float64 `mapstructure:"state_confidence_threshold"`
	DirectionLockCooldownMs    int64   `mapstructure:"direction_lock_cooldown_ms"`
	DirectionLockConfirmTTLMs  int64   `mapstructure:"direction_lock_confirm_ttl_ms"`
	ReentryCooldownBars        int     `mapstructure:"reentry_cooldown_bars"`

	// Smoothing (§4.5.3)
	DeltaZAlpha        float64 `mapstructure:"delta_z_alpha"`
	ObiWeightedAlpha   float64 `mapstructure:"obi_weighted_alpha"`
	CvdSlopeMedianWindow int   `mapstructure:"cvd_slope_median_window"`

	// Side selection (§4.5.4) — spec §9 open question: configuration, not invariant.
	SideScoreDeltaZWeight   float64 `mapstructure:"side_score_delta_z_weight"`
	SideScoreCvdSlopeWeight float64 `mapstructure:"side_score_cvd_slope_weight"`
	SideScoreObiDeepWeight  float64 `mapstructure:"side_score_obi_deep_weight"`
	ConsecutiveConfirmations int    `mapstructure:"consecutive_confirmations"`
	MinHoldMs               int64   `mapstructure:"min_hold_ms"`
	MinFlipIntervalMs       int64   `mapstructure:"min_flip_interval_ms"`

	// Gates (§4.5.5)
	GateATrendinessMin float64 `mapstructure:"gate_a_trendiness_min"`
	GateAChopMax       float64 `mapstructure:"gate_a_chop_max"`
	GateAVolOfVolMax   float64 `mapstructure:"gate_a_vol_of_vol_max"`
	GateASpreadPctMax  float64 `mapstructure:"gate_a_spread_pct_max"`
	GateAOIDropThreshold float64 `mapstructure:"gate_a_oi_drop_threshold"`
	GateBMinAbsDeltaZ  float64 `mapstructure:"gate_b_min_abs_delta_z"`
	GateCMaxVwapDistancePct float64 `mapstructure:"gate_c_max_vwap_distance_pct"`
	GateCMaxRealizedVol1m   float64 `mapstructure:"gate_c_max_realized_vol_1m"`
	EntryConfirmations      int     `mapstructure:"entry_confirmations"`

	// Impulse (§4.5.6)
	ImpulseMinPrintsPerSecond float64 `mapstructure:"impulse_min_prints_per_second"`
	ImpulseMinAbsDeltaZ       float64 `mapstructure:"impulse_min_abs_delta_z"`
	ImpulseSpreadMultiplier   float64 `mapstructure:"impulse_spread_multiplier"`

	// Chase (§4.5.7)
	ChaseMaxSeconds     int     `mapstructure:"chase_max_seconds"`
	ChaseRepriceMs      int64   `mapstructure:"chase_reprice_ms"`
	ChaseMaxReprices    int     `mapstructure:"chase_max_reprices"`
	ChaseTTLMs          int64   `mapstructure:"chase_ttl_ms"`
	ChaseLayerSpreadFrac float64 `mapstructure:"chase_layer_spread_frac"`
	MaxFallbackNotionalPct float64 `mapstructure:"max_fallback_notional_pct"`
	CooldownAfterAbortMs   int64  `mapstructure:"cooldown_after_abort_ms"`

	// Add ladder (§4.5.8)
	MaxAdds           int       `mapstructure:"max_adds"`
	AddAtrMultiple    []float64 `mapstructure:"add_atr_multiple"`   // index 0 -> step 1, index 1 -> step 2
	AddQtyFactor      []float64 `mapstructure:"add_qty_factor"`
	AddMinIntervalMs  int64     `mapstructure:"add_min_interval_ms"`

	// Exit (§4.5.9)
	ExitMakerAttempts       int   `mapstructure:"exit_maker_attempts"`
	FlipPersistConfirmations int  `mapstructure:"flip_persist_confirmations"`
	CrossMarketPersistMs    int64 `mapstructure:"cross_market_persist_ms"`
	ExitRiskTrendinessMin   float64 `mapstructure:"exit_risk_trendiness_min"`
	ExitRiskChopMax         float64 `mapstructure:"exit_risk_chop_max"`
	ExitRiskIntegrityThreshold float64 `mapstructure:"exit_risk_integrity_threshold"`

	// HTF / cross-market (§4.5.10, §4.5.11)
	CrossMarketAnchorSymbol string `mapstructure:"cross_market_anchor_symbol"`
	CrossMarketHardVeto     bool   `mapstructure:"cross_market_hard_veto"`
}

// RiskConfig carries the RiskGovernor's 8 ordered rule thresholds.
// Unrealized-PnL-percent inputs are fractions throughout (spec §9 decision 1);
// the *_PCT/*_BPS-named fields below stay in their named scale (percent,
// basis points) and are compared as such; nothing converts them.
type RiskConfig struct {
	SlippageHardBps      float64 `mapstructure:"slippage_hard_bps"`
	VolHardLimitPct      float64 `mapstructure:"vol_hard_limit_pct"`
	HardLiqRiskThreshold float64 `mapstructure:"hard_liq_risk_threshold"`
	ReducePct            float64 `mapstructure:"reduce_pct"`
	DailyLossCapFraction float64 `mapstructure:"daily_loss_cap_fraction"`
	DrawdownReduceFraction float64 `mapstructure:"drawdown_reduce_fraction"`
	MaxPositionNotional  float64 `mapstructure:"max_position_notional"`
	MaxExposureMultiplier float64 `mapstructure:"max_exposure_multiplier"`
	// EntryNotional sizes the two chase-layer orders (spec §4.5.7) and any
	// other emitted order that has neither a Qty nor a NotionalPct; the taker
	// timeout-fallback carries a NotionalPct and is sized off
	// MaxPositionNotional instead. Not named anywhere in spec.md directly — filled in
	// from max_position_notional at load time when left at zero.
	EntryNotional float64 `mapstructure:"entry_notional"`
	CounterTrendTrendinessThreshold float64 `mapstructure:"counter_trend_trendiness_threshold"`
	CounterTrendScoreGap float64 `mapstructure:"counter_trend_score_gap"`
	LoserRealizeBlockEnabled bool `mapstructure:"loser_realize_block_enabled"`
	DCAMaxCount    int `mapstructure:"dca_max_count"`
	PyramidMaxCount int `mapstructure:"pyramid_max_count"`
}

// AdvisorConfig configures the external PolicyAdvisor HTTP client.
type AdvisorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	TimeoutMs      int64         `mapstructure:"timeout_ms"` // POLICY_TIMEOUT_MS, default 2200
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimitPerMin int          `mapstructure:"rate_limit_per_min"`
}

// StoreConfig sets where the day-start equity store is persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the subscriber fan-out HTTP/WS server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with CORE_* env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("CORE_ADVISOR_BASE_URL"); url != "" {
		cfg.Advisor.BaseURL = url
	}
	if os.Getenv("CORE_DRY_RUN") == "true" || os.Getenv("CORE_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zero-valued thresholds with the spec's documented
// defaults so a minimal YAML file (or none at all, in tests) still produces
// a workable configuration.
func (c *Config) applyDefaults() {
	o := &c.Orchestrator
	if o.BarIntervalMs == 0 {
		o.BarIntervalMs = 1000
	}
	if o.MinBarsLoaded == 0 {
		o.MinBarsLoaded = 360
	}
	if o.DeltaZAlpha == 0 {
		o.DeltaZAlpha = 0.4
	}
	if o.ObiWeightedAlpha == 0 {
		o.ObiWeightedAlpha = 0.4
	}
	if o.CvdSlopeMedianWindow == 0 {
		o.CvdSlopeMedianWindow = 5
	}
	if o.SideScoreDeltaZWeight == 0 && o.SideScoreCvdSlopeWeight == 0 && o.SideScoreObiDeepWeight == 0 {
		o.SideScoreDeltaZWeight = 0.65
		o.SideScoreCvdSlopeWeight = 12
		o.SideScoreObiDeepWeight = 0.35
	}
	if o.ConsecutiveConfirmations == 0 {
		o.ConsecutiveConfirmations = 3
	}
	if o.EntryConfirmations == 0 {
		o.EntryConfirmations = 3
	}
	if o.ChaseMaxSeconds == 0 {
		o.ChaseMaxSeconds = 12
	}
	if o.ChaseLayerSpreadFrac == 0 {
		o.ChaseLayerSpreadFrac = 0.25
	}
	if o.MaxFallbackNotionalPct == 0 {
		o.MaxFallbackNotionalPct = 0.25
	}
	if o.CooldownAfterAbortMs == 0 {
		o.CooldownAfterAbortMs = 15_000
	}
	if o.ReentryCooldownBars == 0 {
		o.ReentryCooldownBars = 3
	}
	if o.MaxAdds == 0 {
		o.MaxAdds = 2
	}
	if len(o.AddAtrMultiple) == 0 {
		o.AddAtrMultiple = []float64{0.55, 1.10}
	}
	if len(o.AddQtyFactor) == 0 {
		o.AddQtyFactor = []float64{1.0, 1.0}
	}
	if o.ExitMakerAttempts == 0 {
		o.ExitMakerAttempts = 2
	}
	if o.FlipPersistConfirmations == 0 {
		o.FlipPersistConfirmations = o.EntryConfirmations
	}
	if o.CrossMarketPersistMs == 0 {
		o.CrossMarketPersistMs = 30_000
	}
	if o.CrossMarketAnchorSymbol == "" {
		o.CrossMarketAnchorSymbol = "BTCUSDT"
	}

	r := &c.Risk
	if r.ReducePct == 0 {
		r.ReducePct = 0.5
	}
	if r.MaxExposureMultiplier == 0 {
		r.MaxExposureMultiplier = 1.5
	}
	if r.EntryNotional <= 0 && r.MaxPositionNotional > 0 {
		r.EntryNotional = r.MaxPositionNotional / float64(o.MaxAdds+1)
	}

	a := &c.Advisor
	if a.TimeoutMs == 0 {
		a.TimeoutMs = 2200
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = 2
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Venue.RESTBaseURL == "" {
		return fmt.Errorf("venue.rest_base_url is required")
	}
	if c.Venue.WSBaseURL == "" {
		return fmt.Errorf("venue.ws_base_url is required")
	}
	if len(c.Venue.Symbols) == 0 {
		return fmt.Errorf("venue.symbols must list at least one symbol")
	}
	if c.Risk.MaxPositionNotional <= 0 {
		return fmt.Errorf("risk.max_position_notional must be > 0")
	}
	if c.Orchestrator.MaxAdds < 0 {
		return fmt.Errorf("orchestrator.max_adds must be >= 0")
	}
	if c.Advisor.Enabled && c.Advisor.BaseURL == "" {
		return fmt.Errorf("advisor.base_url is required when advisor.enabled is true")
	}
	return nil
}
