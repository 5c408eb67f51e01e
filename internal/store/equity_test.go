package store

import "testing"

func TestBaselineReseedsOnFirstMiss(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir, "2026-07-29")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := s.Baseline("BTCUSDT", 10_000)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if got != 10_000 {
		t.Fatalf("Baseline = %v, want 10000 (reseeded)", got)
	}
}

func TestBaselineReturnsPersistedValueOnSubsequentRead(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir, "2026-07-29")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Baseline("BTCUSDT", 10_000); err != nil {
		t.Fatalf("Baseline: %v", err)
	}

	// A later equity reading must not overwrite the day-start baseline.
	got, err := s.Baseline("BTCUSDT", 12_000)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if got != 10_000 {
		t.Fatalf("Baseline = %v, want 10000 (unchanged by later reads)", got)
	}
}

func TestBaselineSurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s1, err := Open(dir, "2026-07-29")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s1.Baseline("ETHUSDT", 5_000); err != nil {
		t.Fatalf("Baseline: %v", err)
	}

	s2, err := Open(dir, "2026-07-29")
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	got, err := s2.Baseline("ETHUSDT", 9_999)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if got != 5_000 {
		t.Fatalf("Baseline after reopen = %v, want 5000 (loaded from disk)", got)
	}
}

func TestRotateClearsBaselinesForNewDay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir, "2026-07-29")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Baseline("BTCUSDT", 10_000); err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if err := s.Rotate("2026-07-30"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	got, err := s.Baseline("BTCUSDT", 20_000)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if got != 20_000 {
		t.Fatalf("Baseline after Rotate = %v, want 20000 (reseeded for new day)", got)
	}
}
