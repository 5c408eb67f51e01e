package exchange

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFeedDispatchRoutesByEventType(t *testing.T) {
	t.Parallel()
	f := NewFeed("wss://example.invalid/ws", testLogger())

	f.dispatch([]byte(`{"e":"aggTrade","s":"BTCUSDT","p":"100.5","q":"2"}`))

	select {
	case frame := <-f.framesCh:
		if frame.EventType != "aggTrade" {
			t.Fatalf("EventType = %q, want aggTrade", frame.EventType)
		}
		if frame.Symbol != "BTCUSDT" {
			t.Fatalf("Symbol = %q, want BTCUSDT", frame.Symbol)
		}
	default:
		t.Fatal("expected a frame on the channel")
	}
}

func TestFeedDispatchDropsUnparseableFrame(t *testing.T) {
	t.Parallel()
	f := NewFeed("wss://example.invalid/ws", testLogger())
	f.dispatch([]byte(`not json`))

	select {
	case frame := <-f.framesCh:
		t.Fatalf("expected no frame, got %+v", frame)
	default:
	}
}
