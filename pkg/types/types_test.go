package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCumulativeLevelMarshalJSON(t *testing.T) {
	t.Parallel()

	lvl := CumulativeLevel{
		Price:      decimal.NewFromFloat(100.5),
		Size:       decimal.NewFromFloat(2),
		Cumulative: decimal.NewFromFloat(2),
	}

	data, err := json.Marshal(lvl)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `["100.5","2","2"]`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestMetricsSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	snap := MetricsSnapshot{
		Type:   "metrics",
		Symbol: "BTCUSDT",
		State:  StateLive,
		Bids: []CumulativeLevel{
			{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1), Cumulative: decimal.NewFromInt(1)},
		},
		MidPrice:     decimal.NewFromFloat(100.5),
		LastUpdateID: 42,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["type"] != "metrics" {
		t.Errorf("type = %v, want metrics", out["type"])
	}
	if out["symbol"] != "BTCUSDT" {
		t.Errorf("symbol = %v, want BTCUSDT", out["symbol"])
	}
}

func TestSideConstants(t *testing.T) {
	t.Parallel()

	if Long == Short || Short == Flat || Flat == Long {
		t.Fatal("Side constants must be distinct")
	}
}
