package book

import (
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

func snap(lastUpdateID uint64) types.DepthSnapshotWire {
	return types.DepthSnapshotWire{
		LastUpdateID: lastUpdateID,
		Bids:         [][2]string{{"100", "1"}, {"99", "2"}},
		Asks:         [][2]string{{"101", "1"}, {"102", "2"}},
	}
}

func TestApplySnapshotSetsLiveState(t *testing.T) {
	t.Parallel()
	b := New("BTCUSDT")
	if err := b.ApplySnapshot(snap(100), 1); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	if b.UIState() != types.StateLive {
		t.Fatalf("state = %v, want LIVE", b.UIState())
	}
	if b.LastUpdateID() != 100 {
		t.Fatalf("lastUpdateId = %d, want 100", b.LastUpdateID())
	}
	bid, ok := b.BestBid()
	if !ok || !bid.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("bestBid = %+v, ok=%v", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || !ask.Price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("bestAsk = %+v, ok=%v", ask, ok)
	}
}

func TestApplyDiffNoSnapshotRejected(t *testing.T) {
	t.Parallel()
	b := New("BTCUSDT")
	diff := types.DepthDiffFrame{FirstUpdateID: 1, FinalUpdateID: 2}
	if got := b.ApplyDiff(diff, 1); got != DiffNoSnapshot {
		t.Fatalf("outcome = %v, want DiffNoSnapshot", got)
	}
}

func TestApplyDiffStaleRejected(t *testing.T) {
	t.Parallel()
	b := New("BTCUSDT")
	_ = b.ApplySnapshot(snap(100), 1)
	// u == lastUpdateId -> rejected (spec boundary case).
	diff := types.DepthDiffFrame{FirstUpdateID: 90, FinalUpdateID: 100}
	if got := b.ApplyDiff(diff, 2); got != DiffStale {
		t.Fatalf("outcome = %v, want DiffStale", got)
	}
}

func TestApplyDiffGapTriggersResync(t *testing.T) {
	t.Parallel()
	b := New("BTCUSDT")
	_ = b.ApplySnapshot(snap(100), 1)
	// U > lastUpdateId+1 -> missed updates.
	diff := types.DepthDiffFrame{FirstUpdateID: 105, FinalUpdateID: 110}
	if got := b.ApplyDiff(diff, 2); got != DiffGap {
		t.Fatalf("outcome = %v, want DiffGap", got)
	}
	if b.UIState() != types.StateResyncing {
		t.Fatalf("state = %v, want RESYNCING", b.UIState())
	}
}

func TestApplyDiffInSequenceApplies(t *testing.T) {
	t.Parallel()
	b := New("BTCUSDT")
	_ = b.ApplySnapshot(snap(100), 1)
	diff := types.DepthDiffFrame{
		FirstUpdateID: 95,
		FinalUpdateID: 105,
		Bids:          [][2]string{{"100", "5"}},
		Asks:          [][2]string{{"101", "0"}}, // remove level
	}
	if got := b.ApplyDiff(diff, 2); got != DiffApplied {
		t.Fatalf("outcome = %v, want DiffApplied", got)
	}
	if b.LastUpdateID() != 105 {
		t.Fatalf("lastUpdateId = %d, want 105", b.LastUpdateID())
	}
	bid, _ := b.BestBid()
	if !bid.Size.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("bestBid size = %s, want 5", bid.Size)
	}
	ask, ok := b.BestAsk()
	if !ok || !ask.Price.Equal(decimal.NewFromInt(102)) {
		t.Fatalf("bestAsk = %+v, want 102 after removal", ask)
	}
}

func TestCrossedBookForcesResync(t *testing.T) {
	t.Parallel()
	b := New("BTCUSDT")
	_ = b.ApplySnapshot(snap(100), 1)
	// Push a bid above the existing best ask -> crossed book.
	diff := types.DepthDiffFrame{
		FirstUpdateID: 95,
		FinalUpdateID: 105,
		Bids:          [][2]string{{"103", "1"}},
	}
	if got := b.ApplyDiff(diff, 2); got != DiffGap {
		t.Fatalf("outcome = %v, want DiffGap (crossed book)", got)
	}
	if b.UIState() != types.StateResyncing {
		t.Fatalf("state = %v, want RESYNCING after crossed book", b.UIState())
	}
}

func TestResyncSingleFlight(t *testing.T) {
	t.Parallel()
	b := New("BTCUSDT")
	if !b.BeginResync() {
		t.Fatal("first BeginResync should succeed")
	}
	if b.BeginResync() {
		t.Fatal("second BeginResync should be refused while pending")
	}
	b.EndResyncAttempt()
	if !b.BeginResync() {
		t.Fatal("BeginResync after EndResyncAttempt should succeed")
	}
}

func TestSnapshotThenDiffsMatchesDirectSnapshot(t *testing.T) {
	t.Parallel()

	// Applying a snapshot then replaying diffs with U..u ⊇ [lastUpdateId+1]
	// yields the same book as applying the equivalent final state directly.
	viaDiff := New("BTCUSDT")
	_ = viaDiff.ApplySnapshot(snap(100), 1)
	_ = viaDiff.ApplyDiff(types.DepthDiffFrame{
		FirstUpdateID: 101,
		FinalUpdateID: 101,
		Bids:          [][2]string{{"100.5", "3"}},
	}, 2)

	direct := New("BTCUSDT")
	_ = direct.ApplySnapshot(types.DepthSnapshotWire{
		LastUpdateID: 101,
		Bids:         [][2]string{{"100", "1"}, {"99", "2"}, {"100.5", "3"}},
		Asks:         [][2]string{{"101", "1"}, {"102", "2"}},
	}, 2)

	bidA, _ := viaDiff.BestBid()
	bidB, _ := direct.BestBid()
	if !bidA.Price.Equal(bidB.Price) || !bidA.Size.Equal(bidB.Size) {
		t.Fatalf("best bid mismatch: %+v vs %+v", bidA, bidB)
	}
}
