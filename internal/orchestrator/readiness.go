package orchestrator

import "fmt"

// readiness evaluates spec §4.5.1: every precondition must hold before the
// rest of the pipeline runs.
func (r *Runtime) readiness(in Input) (bool, []string) {
	var reasons []string

	if !in.BackfillDone {
		reasons = append(reasons, "backfill not done")
	}
	minBars := r.cfg.MinBarsLoaded
	if minBars <= 0 {
		minBars = 360
	}
	if in.BarsLoaded < minBars {
		reasons = append(reasons, fmt.Sprintf("bars_loaded=%d < min=%d", in.BarsLoaded, minBars))
	}
	if !in.SessionVWAPSet {
		reasons = append(reasons, "session vwap not present")
	}
	if !in.HTF.H1BarStartPresent {
		reasons = append(reasons, "htf 1h bar-start not present")
	}
	if !in.HTF.H4BarStartPresent {
		reasons = append(reasons, "htf 4h bar-start not present")
	}
	minPPS := r.cfg.MinPrintsPerSecond
	if in.TAS.PrintsPerSecond <= minPPS {
		reasons = append(reasons, fmt.Sprintf("prints_per_second=%.3f <= min=%.3f", in.TAS.PrintsPerSecond, minPPS))
	}

	return len(reasons) == 0, reasons
}
