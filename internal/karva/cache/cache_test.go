package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRunIDRoundTripsThroughSortKey(t *testing.T) {
	now := time.Unix(1700000000, 0)
	id, err := NewRunID(now)
	if err != nil {
		t.Fatalf("NewRunID: %v", err)
	}
	ts, _, ok := SortKey(id)
	if !ok {
		t.Fatalf("SortKey(%q) failed to parse", id)
	}
	if ts != uint64(now.Unix()) {
		t.Errorf("ts = %d, want %d", ts, now.Unix())
	}
}

func TestSortKeyRejectsMalformed(t *testing.T) {
	if _, _, ok := SortKey("not-a-run-id"); ok {
		t.Error("expected SortKey to reject a malformed id")
	}
}

func TestSanitizeTestPath(t *testing.T) {
	got := SanitizeTestPath(`tests/test_foo.star::test_one`)
	want := "tests__test_foo.star___test_one"
	if got != want {
		t.Errorf("SanitizeTestPath = %q, want %q", got, want)
	}
}

func TestStatsMerge(t *testing.T) {
	a := Stats{Passed: 1, Failed: 2, Skipped: 3}
	b := Stats{Passed: 4, Failed: 5, Skipped: 6}
	got := a.Merge(b)
	want := Stats{Passed: 5, Failed: 7, Skipped: 9}
	if got != want {
		t.Errorf("Merge = %+v, want %+v", got, want)
	}
	if got.IsSuccess() {
		t.Error("expected IsSuccess false when Failed > 0")
	}
	if got.Total() != 21 {
		t.Errorf("Total = %d, want 21", got.Total())
	}
}

func TestWriterAndAggregate(t *testing.T) {
	dir := t.TempDir()
	runID := "run-1-1"

	w0, err := NewWriter(dir, runID, 0)
	if err != nil {
		t.Fatalf("NewWriter(0): %v", err)
	}
	if err := w0.WriteStats(Stats{Passed: 2, Failed: 0, Skipped: 1}); err != nil {
		t.Fatal(err)
	}
	if err := w0.WriteDurations(map[string]int64{"m::a": 100}); err != nil {
		t.Fatal(err)
	}
	if err := w0.WriteDiagnostics("worker 0 diag\n"); err != nil {
		t.Fatal(err)
	}
	if err := w0.WriteDiscoverDiagnostics(""); err != nil {
		t.Fatal(err)
	}

	w1, err := NewWriter(dir, runID, 1)
	if err != nil {
		t.Fatalf("NewWriter(1): %v", err)
	}
	if err := w1.WriteStats(Stats{Passed: 0, Failed: 1, Skipped: 0}); err != nil {
		t.Fatal(err)
	}
	if err := w1.WriteDurations(map[string]int64{"m::b": 200}); err != nil {
		t.Fatal(err)
	}
	if err := w1.WriteDiagnostics("worker 1 diag\n"); err != nil {
		t.Fatal(err)
	}

	agg, err := Aggregate(dir, runID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	wantStats := Stats{Passed: 2, Failed: 1, Skipped: 1}
	if agg.Stats != wantStats {
		t.Errorf("Stats = %+v, want %+v", agg.Stats, wantStats)
	}
	if agg.Diagnostics != "worker 0 diag\nworker 1 diag\n" {
		t.Errorf("Diagnostics = %q, want worker-0-then-worker-1 order", agg.Diagnostics)
	}
	if agg.Durations["m::a"] != 100 || agg.Durations["m::b"] != 200 {
		t.Errorf("Durations = %v, want both unioned", agg.Durations)
	}
	if agg.RunID != runID {
		t.Errorf("RunID = %q, want %q", agg.RunID, runID)
	}
}

func TestReadRecentDurationsPicksLatestRun(t *testing.T) {
	dir := t.TempDir()

	older, _ := NewWriter(dir, "run-100-1", 0)
	_ = older.WriteStats(Stats{})
	_ = older.WriteDurations(map[string]int64{"m::old": 1})

	newer, _ := NewWriter(dir, "run-200-1", 0)
	_ = newer.WriteStats(Stats{})
	_ = newer.WriteDurations(map[string]int64{"m::new": 2})

	durations, err := ReadRecentDurations(dir)
	if err != nil {
		t.Fatalf("ReadRecentDurations: %v", err)
	}
	if _, ok := durations["m::new"]; !ok {
		t.Errorf("expected durations from the newer run, got %v", durations)
	}
	if _, ok := durations["m::old"]; ok {
		t.Errorf("did not expect durations from the older run, got %v", durations)
	}
}

func TestPruneRemovesOtherRuns(t *testing.T) {
	dir := t.TempDir()

	keep, _ := NewWriter(dir, "run-1-1", 0)
	_ = keep.WriteStats(Stats{})
	drop, _ := NewWriter(dir, "run-2-1", 0)
	_ = drop.WriteStats(Stats{})

	if err := Prune(dir, "run-1-1"); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "run-1-1")); err != nil {
		t.Errorf("expected run-1-1 to survive prune: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run-2-1")); !os.IsNotExist(err) {
		t.Errorf("expected run-2-1 to be pruned, stat err = %v", err)
	}
}
