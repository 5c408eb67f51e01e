package flow

// signedEvent is a single timestamped signed quantity, the common unit fed
// into every rolling window below (buy prints are positive, sell prints
// negative).
type signedEvent struct {
	tsMs int64
	qty  float64
}

// rollingWindow holds signed events within the last windowMs of event time
// and prunes by `event_ts - window_ms` at each insert (spec §4.3).
type rollingWindow struct {
	windowMs int64
	events   []signedEvent
}

func newRollingWindow(windowMs int64) *rollingWindow {
	return &rollingWindow{windowMs: windowMs}
}

func (w *rollingWindow) add(tsMs int64, qty float64) {
	w.events = append(w.events, signedEvent{tsMs: tsMs, qty: qty})
	w.prune(tsMs)
}

func (w *rollingWindow) prune(nowMs int64) {
	cutoff := nowMs - w.windowMs
	i := 0
	for i < len(w.events) && w.events[i].tsMs < cutoff {
		i++
	}
	if i > 0 {
		w.events = w.events[i:]
	}
}

// sum returns the net signed quantity currently in the window.
func (w *rollingWindow) sum() float64 {
	var total float64
	for _, e := range w.events {
		total += e.qty
	}
	return total
}

// count returns the number of events currently in the window.
func (w *rollingWindow) count() int {
	return len(w.events)
}

// countWhere counts events matching a predicate.
func (w *rollingWindow) countWhere(pred func(signedEvent) bool) int {
	n := 0
	for _, e := range w.events {
		if pred(e) {
			n++
		}
	}
	return n
}

// boundedHistory keeps up to maxLen most-recent float64 samples, used for
// the Z-score and OLS-slope inputs (spec §4.3: "history of length ≤ 60").
type boundedHistory struct {
	maxLen int
	values []float64
}

func newBoundedHistory(maxLen int) *boundedHistory {
	return &boundedHistory{maxLen: maxLen}
}

func (h *boundedHistory) push(v float64) {
	h.values = append(h.values, v)
	if len(h.values) > h.maxLen {
		h.values = h.values[len(h.values)-h.maxLen:]
	}
}
