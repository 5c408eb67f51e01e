// Package engine owns the per-symbol processing arena (spec §9 REDESIGN
// FLAG: "use arena+index... to avoid shared-ownership graphs"): a
// symbol->task index where each symbolTask is the sole owner of its book,
// flow aggregators, and orchestrator runtime, touched only by its own
// goroutine. Engine itself only routes venue frames to the right task's
// inbox and answers the read-only snapshot queries the api package needs.
//
// Grounded on the teacher's internal/bot/bot.go (the central struct wiring
// market/risk/dashboard components together, Start/Stop lifecycle,
// SIGINT-driven shutdown) generalized from the teacher's single fixed
// market slice to a dynamic, refcounted symbol set.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"orderflow-core/internal/advisor"
	"orderflow-core/internal/config"
	"orderflow-core/internal/exchange"
	"orderflow-core/internal/fillsink"
	"orderflow-core/internal/orchestrator"
	"orderflow-core/internal/risk"
	"orderflow-core/internal/store"
	"orderflow-core/pkg/types"
)

// symbolEntry pairs a running task with the subscriber refcount that
// governs its lifecycle (spec §3: created on first reference, destroyed
// when unreferenced and flat).
type symbolEntry struct {
	task     *symbolTask
	refCount int
	cancel   context.CancelFunc
}

// anchorState is the small mutex-guarded cell the configured cross-market
// anchor symbol's own task publishes into, and every other symbolTask reads
// through Engine.anchorContext — a capability, not a pointer into another
// task's private state (spec §9 REDESIGN FLAG on mutual cross-market
// references).
type anchorState struct {
	mu          sync.RWMutex
	set         bool
	h1Up, h4Up  bool
	h1Dn, h4Dn  bool
	hasPosition bool
	side        types.Side
}

// Engine is the process's central coordinator: one goroutine per live
// symbol, a shared WS feed and REST/advisor clients, and the fan-out hooks
// wired to the dashboard.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	feed     *exchange.Feed
	rest     *exchange.RESTClient
	governor *risk.Governor
	advisor  *advisor.PolicyAdvisor
	fillSink *fillsink.DryRunFillSink
	equity   *store.DayStartEquity

	mu      sync.Mutex
	symbols map[string]*symbolEntry

	anchor anchorState

	publishMetrics func(types.MetricsSnapshot)
	publishRaw     func(symbol string, payload []byte)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime      time.Time
	lastFrameAtMs  int64
}

// New wires the exchange feed, REST client, risk governor, advisor client,
// fill sink, and equity store from cfg, grounded on the teacher's
// NewBot-style single constructor.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	today := time.Now().UTC().Format("2006-01-02")
	equity, err := store.Open(cfg.Store.DataDir, today)
	if err != nil {
		return nil, fmt.Errorf("open equity store: %w", err)
	}

	rateLimiter := exchange.NewRateLimiter()
	rest := exchange.NewRESTClient(cfg.Venue.RESTBaseURL, rateLimiter, logger)

	eng := &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		feed:     exchange.NewFeed(cfg.Venue.WSBaseURL, logger),
		rest:     rest,
		governor: risk.NewGovernor(cfg.Risk, logger),
		advisor:  advisor.NewPolicyAdvisor(cfg.Advisor, logger),
		fillSink: fillsink.New(),
		equity:   equity,
		symbols:  make(map[string]*symbolEntry),
	}
	return eng, nil
}

// SetBroadcastHooks wires the outgoing metrics/raw-frame fan-out; nil hooks
// (no dashboard configured) are checked for at every call site.
func (e *Engine) SetBroadcastHooks(metrics func(types.MetricsSnapshot), raw func(symbol string, payload []byte)) {
	e.publishMetrics = metrics
	e.publishRaw = raw
}

// Start connects the venue feed, begins routing frames, and establishes
// the permanent "floor" subscriptions: every statically configured
// venue.symbols entry, plus the cross-market anchor symbol, are referenced
// for the engine's entire lifetime and never torn down by refcounting —
// distinct from symbols a dashboard client subscribes to dynamically,
// which are created and retired per spec §3.
func (e *Engine) Start() error {
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.startTime = time.Now()

	for _, symbol := range e.cfg.Venue.Symbols {
		e.EnsureSymbol(symbol)
	}
	if anchor := e.cfg.Orchestrator.CrossMarketAnchorSymbol; anchor != "" {
		e.EnsureSymbol(anchor)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.feed.Run(e.ctx)
	}()

	e.wg.Add(1)
	go e.dispatchLoop()

	return nil
}

// Stop cancels every symbolTask and waits for the feed, dispatcher, and all
// task goroutines to return.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// dispatchLoop routes decoded frames from the shared feed to the matching
// symbol's inbox, generalized from the teacher's routeTrade/routeOrder
// switch-by-channel dispatch. A full inbox drops the frame with a warning
// rather than blocking the shared dispatcher on one slow symbol.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case frame, ok := <-e.feed.Frames():
			if !ok {
				return
			}
			atomic.StoreInt64(&e.lastFrameAtMs, time.Now().UnixMilli())

			e.mu.Lock()
			entry, exists := e.symbols[frame.Symbol]
			e.mu.Unlock()
			if !exists {
				continue
			}
			select {
			case entry.task.inbox <- frame:
			default:
				e.logger.Warn("symbol inbox full, dropping frame", "symbol", frame.Symbol, "event_type", frame.EventType)
			}
		}
	}
}

// EnsureSymbol increments symbol's subscriber refcount, spawning its task
// on first reference (spec §3).
func (e *Engine) EnsureSymbol(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.symbols[symbol]; ok {
		entry.refCount++
		return
	}

	task := newSymbolTask(e, symbol)
	taskCtx, cancel := context.WithCancel(e.ctx)
	e.symbols[symbol] = &symbolEntry{task: task, refCount: 1, cancel: cancel}

	e.wg.Add(1)
	go task.run(taskCtx)
	e.logger.Info("symbol task started", "symbol", symbol)
}

// ReleaseSymbol decrements symbol's subscriber refcount. The task is torn
// down only once unreferenced AND flat (checked via maybeRetireSymbol,
// which also fires from evaluateTick whenever a position closes, catching
// the case where the refcount was already zero before the position flattened).
func (e *Engine) ReleaseSymbol(symbol string) {
	e.mu.Lock()
	entry, ok := e.symbols[symbol]
	if !ok {
		e.mu.Unlock()
		return
	}
	if entry.refCount > 0 {
		entry.refCount--
	}
	e.mu.Unlock()

	e.maybeRetireSymbol(symbol)
}

// maybeRetireSymbol destroys symbol's task if it is both unreferenced and
// flat. Floor symbols (venue.symbols, the anchor) are never unreferenced
// since Start never releases them, so they are never retired by this path.
func (e *Engine) maybeRetireSymbol(symbol string) {
	e.mu.Lock()
	entry, ok := e.symbols[symbol]
	if !ok {
		e.mu.Unlock()
		return
	}
	if entry.refCount > 0 {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if _, hasPosition := e.fillSink.Position(symbol); hasPosition {
		return
	}

	e.mu.Lock()
	entry, ok = e.symbols[symbol]
	if !ok || entry.refCount > 0 {
		e.mu.Unlock()
		return
	}
	delete(e.symbols, symbol)
	e.mu.Unlock()

	entry.cancel()
	e.logger.Info("symbol task retired", "symbol", symbol)
}

// recordHTF publishes symbol's latest higher-timeframe structure into the
// anchor cell, but only takes effect when symbol is the configured
// cross-market anchor — every other caller's update is a no-op so the cell
// never reflects a non-anchor symbol's structure.
func (e *Engine) recordHTF(symbol string, h1Up, h4Up, h1Dn, h4Dn, hasPosition bool, side types.Side) {
	if symbol != e.cfg.Orchestrator.CrossMarketAnchorSymbol {
		return
	}
	e.anchor.mu.Lock()
	defer e.anchor.mu.Unlock()
	e.anchor.set = true
	e.anchor.h1Up, e.anchor.h4Up = h1Up, h4Up
	e.anchor.h1Dn, e.anchor.h4Dn = h1Dn, h4Dn
	e.anchor.hasPosition = hasPosition
	e.anchor.side = side
}

// anchorContext reads the anchor cell for the caller's own symbol. The
// anchor symbol's own task gets IsAnchorSymbol true so the orchestrator's
// cross-market filter short-circuits rather than vetoing itself against
// its own possibly-stale published state.
func (e *Engine) anchorContext(symbol string) orchestrator.AnchorContext {
	if symbol == e.cfg.Orchestrator.CrossMarketAnchorSymbol {
		return orchestrator.AnchorContext{IsAnchorSymbol: true}
	}
	e.anchor.mu.RLock()
	defer e.anchor.mu.RUnlock()
	if !e.anchor.set {
		return orchestrator.AnchorContext{}
	}
	return orchestrator.AnchorContext{
		BTCH1Up:         e.anchor.h1Up,
		BTCH4Up:         e.anchor.h4Up,
		BTCH1Dn:         e.anchor.h1Dn,
		BTCH4Dn:         e.anchor.h4Dn,
		BTCHasPosition:  e.anchor.hasPosition,
		BTCPositionSide: e.anchor.side,
	}
}

// MetricsSnapshot implements api.SnapshotProvider.
func (e *Engine) MetricsSnapshot(symbol string) (types.MetricsSnapshot, bool) {
	e.mu.Lock()
	entry, ok := e.symbols[symbol]
	e.mu.Unlock()
	if !ok {
		return types.MetricsSnapshot{}, false
	}
	entry.task.snapMu.RLock()
	defer entry.task.snapMu.RUnlock()
	if !entry.task.haveSnapshot {
		return types.MetricsSnapshot{}, false
	}
	return entry.task.lastSnapshot, true
}

// Depth implements api.SnapshotProvider: an on-demand book ladder for a
// symbol that need not be streaming to a WS client.
func (e *Engine) Depth(symbol string) (types.DepthResponse, bool) {
	e.mu.Lock()
	entry, ok := e.symbols[symbol]
	e.mu.Unlock()
	if !ok {
		return types.DepthResponse{}, false
	}
	return entry.task.book.DepthSnapshotFor(e.cfg.Venue.DepthLimit, time.Now().UnixMilli(), types.SourceCache), true
}

// Health implements api.SnapshotProvider.
func (e *Engine) Health() types.HealthResponse {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		symbols = append(symbols, s)
	}
	e.mu.Unlock()

	wsState := "disconnected"
	if last := atomic.LoadInt64(&e.lastFrameAtMs); last != 0 && time.Now().UnixMilli()-last < 10_000 {
		wsState = "live"
	}

	return types.HealthResponse{
		OK:              true,
		UptimeSeconds:   time.Since(e.startTime).Seconds(),
		UpstreamWSState: wsState,
		ActiveSymbols:   symbols,
	}
}
