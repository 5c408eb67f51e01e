package orchestrator

import (
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-core/pkg/types"
)

func TestGateAFailsOnHTFHardVetoAgainstLong(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	in := readyInput(0)
	in.HTF.StructureBreakDn = true

	if r.gateA(in, types.Long) {
		t.Fatalf("expected gate A to fail on a down structure-break against a LONG candidate")
	}
}

func TestGateAPassesWhenThresholdsClear(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	in := readyInput(0)

	if !r.gateA(in, types.Long) {
		t.Fatalf("expected gate A to pass with all thresholds cleared")
	}
}

func TestGateBRequiresSideAlignedFlow(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	r.SmoothedDeltaZ = 1
	r.SmoothedObiDeep = 1
	r.cvdSlopeWindow = []float64{1}

	if !r.gateB(types.Long) {
		t.Fatalf("expected gate B to pass for aligned LONG flow")
	}
	if r.gateB(types.Short) {
		t.Fatalf("expected gate B to fail for SHORT against long-aligned flow")
	}
}

func TestGateCFailsBeyondVwapDistance(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	in := readyInput(0)
	in.SessionVWAP = decimal.NewFromInt(100)
	in.Mid = decimal.NewFromInt(80)

	if r.gateC(in) {
		t.Fatalf("expected gate C to fail when price is far from session VWAP")
	}
}

func TestHTFSoftBiasRequiresExtraConfirmAtSwingLow(t *testing.T) {
	htf := HTFContext{SwingLow: decimal.NewFromInt(100)}
	if !htfSoftBiasRequiresExtraConfirm(htf, types.Long, decimal.NewFromInt(99)) {
		t.Fatalf("expected soft bias extra confirm when price is at/through swing low")
	}
	if htfSoftBiasRequiresExtraConfirm(htf, types.Long, decimal.NewFromInt(101)) {
		t.Fatalf("expected no soft bias above swing low")
	}
}

func TestImpulseRequiresPrintsDeltaZAndTightSpread(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	r.SmoothedDeltaZ = 1
	in := readyInput(0)

	if !r.impulse(in) {
		t.Fatalf("expected impulse true with high prints/sec, deltaZ, tight spread")
	}

	wide := in
	wide.SpreadPct = 1
	if r.impulse(wide) {
		t.Fatalf("expected impulse false once spread blows out")
	}
}
