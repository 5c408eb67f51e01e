package orchestrator

import (
	"testing"

	"orderflow-core/pkg/types"
)

func TestChaseEntersOnAllGatesEffectiveAndSetsStickyStartTs(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	in := readyInput(1000)

	orders, filled := r.evaluateChase(in, true, true, true, types.Long)
	if filled {
		t.Fatalf("first entry into CHASING should not itself be a fallback fill")
	}
	if len(orders) != 2 {
		t.Fatalf("expected two MAKER layers on entering CHASING, got %d", len(orders))
	}
	if r.ChaseState != chaseChasing || r.ChaseStartTsMs != 1000 {
		t.Fatalf("expected CHASING with chaseStartTs=1000, got state=%s startTs=%d", r.ChaseState, r.ChaseStartTsMs)
	}

	// A subsequent tick before the reprice interval elapses must not reset
	// chaseStartTs (sticky: set only on IDLE->CHASING).
	in2 := readyInput(1100)
	r.evaluateChase(in2, true, true, true, types.Long)
	if r.ChaseStartTsMs != 1000 {
		t.Fatalf("chaseStartTs must stay sticky at 1000, got %d", r.ChaseStartTsMs)
	}
}

func TestChaseAbortsWhenGatesDropAndEntersCooldown(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	in := readyInput(1000)
	r.evaluateChase(in, true, true, true, types.Long)

	in2 := readyInput(1100)
	orders, _ := r.evaluateChase(in2, false, false, true, types.Long)

	if len(orders) != 0 {
		t.Fatalf("expected no orders on abort, got %+v", orders)
	}
	if r.ChaseState != chaseIdle || r.ChaseActive {
		t.Fatalf("expected chase aborted back to IDLE, got state=%s active=%v", r.ChaseState, r.ChaseActive)
	}
	if r.CooldownUntilMs <= in2.NowMs {
		t.Fatalf("expected a cooldown window after abort")
	}
}

func TestChaseRepricesAtConfiguredInterval(t *testing.T) {
	r := NewRuntime("BTCUSDT", testConfig())
	in := readyInput(1000)
	r.evaluateChase(in, true, true, true, types.Long)

	in2 := readyInput(1000 + r.cfg.ChaseRepriceMs)
	orders, _ := r.evaluateChase(in2, true, true, true, types.Long)
	if len(orders) != 2 {
		t.Fatalf("expected a new reprice layer at the configured interval, got %+v", orders)
	}
	if r.RepricesUsed != 1 {
		t.Fatalf("expected repricesUsed=1, got %d", r.RepricesUsed)
	}
}
