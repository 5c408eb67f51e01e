// Package book reconstructs a per-symbol order book from a REST snapshot
// plus incremental WebSocket diffs, with strict sequence-gap detection and
// a resync protocol.
//
// Grounded on other_examples/16d0391e_BullionBear-sequex's orderbook.go
// (treemap-backed price levels, sequence-gap switch dispatch) and the
// teacher's internal/market/book.go (RWMutex-protected struct shape,
// best-bid/ask/staleness accessor style).
package book

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"
	"sync"

	"orderflow-core/pkg/types"
)

// DiffOutcome is the result of applying an incremental depth diff.
type DiffOutcome int

const (
	// DiffApplied means the diff fell within the applicable window and was merged.
	DiffApplied DiffOutcome = iota
	// DiffStale means the diff's final update id was at or behind the book's
	// current last_update_id — too old, dropped with no resync needed.
	DiffStale
	// DiffGap means updates were missed (U > last_update_id+1); a resync is required.
	DiffGap
	// DiffNoSnapshot means no snapshot has ever been applied; the diff is dropped.
	DiffNoSnapshot
	// DiffDroppedResyncing means the book is mid-resync; diffs are discarded
	// until the pending snapshot fetch completes.
	DiffDroppedResyncing
)

func (o DiffOutcome) String() string {
	switch o {
	case DiffApplied:
		return "applied"
	case DiffStale:
		return "stale"
	case DiffGap:
		return "gap"
	case DiffNoSnapshot:
		return "no_snapshot"
	case DiffDroppedResyncing:
		return "dropped_resyncing"
	default:
		return "unknown"
	}
}

func decimalComparator(a, b interface{}) int {
	da := a.(decimal.Decimal)
	db := b.(decimal.Decimal)
	return da.Cmp(db)
}

// OrderBook is a single symbol's reconstructed book (spec §3, §4.1).
type OrderBook struct {
	mu sync.RWMutex

	Symbol string

	bids *treemap.Map // price -> size, ascending key order; best bid = Max()
	asks *treemap.Map // price -> size, ascending key order; best ask = Min()

	lastUpdateID    uint64
	lastDepthTimeMs int64
	uiState         types.UIState
	resyncPending   bool
}

// New creates an empty OrderBook. It starts RESYNCING: no snapshot has been
// applied yet, so diffs are rejected until one arrives.
func New(symbol string) *OrderBook {
	return &OrderBook{
		Symbol:  symbol,
		bids:    treemap.NewWith(decimalComparator),
		asks:    treemap.NewWith(decimalComparator),
		uiState: types.StateResyncing,
	}
}

// ApplySnapshot clears bids/asks, inserts rows with size > 0, and sets
// last_update_id/ui_state per spec §4.1. A snapshot older than the max-seen
// last_update_id is ignored (spec §4.1 failure semantics).
func (b *OrderBook) ApplySnapshot(snap types.DepthSnapshotWire, nowMs int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if snap.LastUpdateID != 0 && snap.LastUpdateID < b.lastUpdateID {
		return fmt.Errorf("stale snapshot: lastUpdateId %d < current %d", snap.LastUpdateID, b.lastUpdateID)
	}

	b.bids.Clear()
	b.asks.Clear()
	if err := insertLevels(b.bids, snap.Bids); err != nil {
		return fmt.Errorf("invalid snapshot bids: %w", err)
	}
	if err := insertLevels(b.asks, snap.Asks); err != nil {
		return fmt.Errorf("invalid snapshot asks: %w", err)
	}

	b.lastUpdateID = snap.LastUpdateID
	b.lastDepthTimeMs = nowMs
	b.uiState = types.StateLive
	b.resyncPending = false
	return nil
}

// ApplyDiff applies an incremental depth update, enforcing the U..u
// applicability invariant (spec §3c, §4.1).
func (b *OrderBook) ApplyDiff(diff types.DepthDiffFrame, nowMs int64) DiffOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastUpdateID == 0 {
		return DiffNoSnapshot
	}
	if b.uiState == types.StateResyncing {
		return DiffDroppedResyncing
	}
	if diff.FinalUpdateID <= b.lastUpdateID {
		return DiffStale
	}
	if diff.FirstUpdateID > b.lastUpdateID+1 {
		b.uiState = types.StateResyncing
		return DiffGap
	}

	if err := insertLevels(b.bids, diff.Bids); err != nil {
		b.uiState = types.StateResyncing
		return DiffGap
	}
	if err := insertLevels(b.asks, diff.Asks); err != nil {
		b.uiState = types.StateResyncing
		return DiffGap
	}

	b.lastUpdateID = diff.FinalUpdateID
	b.lastDepthTimeMs = nowMs

	if b.isCrossedLocked() {
		// Invariant (a): a crossed book is a protocol error, force resync.
		b.uiState = types.StateResyncing
		return DiffGap
	}

	// A diff landing on a STALE book (one that had gone quiet past the
	// staleness window but never lost its sequence) revives it.
	b.uiState = types.StateLive
	return DiffApplied
}

// RefreshStaleness transitions a LIVE book to STALE once no depth update has
// landed within maxAgeMs of nowMs (spec §4.1/§6 STALE ui_state; §7 "no
// intent is emitted while the book is stale beyond 3s"). OrderBook has no
// internal timer, so callers invoke this once per evaluation tick.
func (b *OrderBook) RefreshStaleness(nowMs, maxAgeMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uiState != types.StateLive {
		return
	}
	if b.lastDepthTimeMs != 0 && nowMs-b.lastDepthTimeMs > maxAgeMs {
		b.uiState = types.StateStale
	}
}

func insertLevels(tree *treemap.Map, levels [][2]string) error {
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl[0])
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", lvl[0], err)
		}
		size, err := decimal.NewFromString(lvl[1])
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", lvl[1], err)
		}
		if size.IsZero() || size.IsNegative() {
			tree.Remove(price)
		} else {
			tree.Put(price, size)
		}
	}
	return nil
}

func (b *OrderBook) isCrossedLocked() bool {
	bidKey, _ := b.bids.Max()
	askKey, _ := b.asks.Min()
	if bidKey == nil || askKey == nil {
		return false
	}
	return bidKey.(decimal.Decimal).GreaterThanOrEqual(askKey.(decimal.Decimal))
}

// BeginResync marks a resync fetch as in-flight, returning false if one is
// already pending (single-flight per spec §4.1 "idempotent via resync_pending").
func (b *OrderBook) BeginResync() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resyncPending {
		return false
	}
	b.resyncPending = true
	b.uiState = types.StateResyncing
	return true
}

// EndResyncAttempt clears the in-flight flag after a fetch attempt
// completes (success or failure), allowing the next retry to proceed.
func (b *OrderBook) EndResyncAttempt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resyncPending = false
}

// ResyncPending reports whether a snapshot fetch is currently in flight.
func (b *OrderBook) ResyncPending() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resyncPending
}

// UIState returns the book's current observability state.
func (b *OrderBook) UIState() types.UIState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.uiState
}

// LastUpdateID returns the book's current sequence id.
func (b *OrderBook) LastUpdateID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// LastDepthTimeMs returns the event time of the last applied mutation.
func (b *OrderBook) LastDepthTimeMs() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastDepthTimeMs
}

// IsStale reports whether the book has not been updated within maxAgeMs,
// measured against nowMs (spec §7: "no intent emitted while the book is
// stale beyond 3s").
func (b *OrderBook) IsStale(nowMs int64, maxAgeMs int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastDepthTimeMs == 0 {
		return true
	}
	return nowMs-b.lastDepthTimeMs > maxAgeMs
}

// BestBid returns the highest bid level, if any.
func (b *OrderBook) BestBid() (types.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	k, v := b.bids.Max()
	if k == nil {
		return types.PriceLevel{}, false
	}
	return types.PriceLevel{Price: k.(decimal.Decimal), Size: v.(decimal.Decimal)}, true
}

// BestAsk returns the lowest ask level, if any.
func (b *OrderBook) BestAsk() (types.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	k, v := b.asks.Min()
	if k == nil {
		return types.PriceLevel{}, false
	}
	return types.PriceLevel{Price: k.(decimal.Decimal), Size: v.(decimal.Decimal)}, true
}

// MidPrice returns (bestBid+bestAsk)/2, or zero if either side is empty.
func (b *OrderBook) MidPrice() decimal.Decimal {
	bid, ok1 := b.BestBid()
	ask, ok2 := b.BestAsk()
	if !ok1 || !ok2 {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
}

// LevelSize returns the resting size at an exact price, on either side.
func (b *OrderBook) LevelSize(price decimal.Decimal) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.bids.Get(price); ok {
		return v.(decimal.Decimal), true
	}
	if v, ok := b.asks.Get(price); ok {
		return v.(decimal.Decimal), true
	}
	return decimal.Zero, false
}

// TopBids returns up to n bid levels in descending price order with
// running cumulative size, for the outgoing MetricsSnapshot ladder.
func (b *OrderBook) TopBids(n int) []types.CumulativeLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return topLevels(b.bids, n, false)
}

// TopAsks returns up to n ask levels in ascending price order with running
// cumulative size.
func (b *OrderBook) TopAsks(n int) []types.CumulativeLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return topLevels(b.asks, n, true)
}

func topLevels(tree *treemap.Map, n int, ascending bool) []types.CumulativeLevel {
	out := make([]types.CumulativeLevel, 0, n)
	cum := decimal.Zero
	it := tree.Iterator()
	if ascending {
		for it.Next() && len(out) < n {
			price := it.Key().(decimal.Decimal)
			size := it.Value().(decimal.Decimal)
			cum = cum.Add(size)
			out = append(out, types.CumulativeLevel{Price: price, Size: size, Cumulative: cum})
		}
		return out
	}
	for it.End(); it.Prev() && len(out) < n; {
		price := it.Key().(decimal.Decimal)
		size := it.Value().(decimal.Decimal)
		cum = cum.Add(size)
		out = append(out, types.CumulativeLevel{Price: price, Size: size, Cumulative: cum})
	}
	return out
}

// SumTopSizes sums the size of the top depth levels on one side, used by
// the OBI formula (top-N weighted imbalance).
func SumTopSizes(levels []types.CumulativeLevel, depth int) decimal.Decimal {
	sum := decimal.Zero
	for i, l := range levels {
		if i >= depth {
			break
		}
		sum = sum.Add(l.Size)
	}
	return sum
}

// DepthSnapshotFor builds the REST-facing DepthResponse view for a book.
func (b *OrderBook) DepthSnapshotFor(limit int, cachedAtMs int64, source types.DepthSource) types.DepthResponse {
	return types.DepthResponse{
		LastUpdateID: b.LastUpdateID(),
		Bids:         b.TopBids(limit),
		Asks:         b.TopAsks(limit),
		CachedAt:     cachedAtMs,
		Source:       source,
	}
}
