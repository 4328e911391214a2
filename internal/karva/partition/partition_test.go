package partition

import "testing"

func TestPartitionBalancesByWeight(t *testing.T) {
	tests := []TestInfo{
		{Path: "a", DurationMicros: 10, HasDuration: true},
		{Path: "b", DurationMicros: 7, HasDuration: true},
		{Path: "c", DurationMicros: 5, HasDuration: true},
		{Path: "d", DurationMicros: 3, HasDuration: true},
	}
	parts := Partition(tests, 2)
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}
	// LPT: sorted desc [10,7,5,3] -> 10 to p0, 7 to p1, 5 to p1 (min), 3 to p0
	// p0: 10,3 = 13 ; p1: 7,5 = 12
	if parts[0].Weight != 13 || parts[1].Weight != 12 {
		t.Errorf("got weights %d, %d; want 13, 12", parts[0].Weight, parts[1].Weight)
	}
}

func TestPartitionFallsBackToBodyLength(t *testing.T) {
	tests := []TestInfo{
		{Path: "a", BodyLength: 4},
		{Path: "b", BodyLength: 1},
	}
	parts := Partition(tests, 2)
	total := parts[0].Weight + parts[1].Weight
	if total != 5 {
		t.Errorf("total weight = %d, want 5", total)
	}
}

func TestPartitionClampsWorkersToOne(t *testing.T) {
	tests := []TestInfo{{Path: "a", BodyLength: 1}}
	parts := Partition(tests, 0)
	if len(parts) != 1 {
		t.Fatalf("expected 1 partition when numWorkers<1, got %d", len(parts))
	}
}

func TestPartitionEveryTestAssignedExactlyOnce(t *testing.T) {
	var tests []TestInfo
	for i := 0; i < 20; i++ {
		tests = append(tests, TestInfo{Path: string(rune('a' + i)), BodyLength: i + 1})
	}
	parts := Partition(tests, 4)
	seen := map[string]bool{}
	for _, p := range parts {
		for _, path := range p.Tests {
			if seen[path] {
				t.Errorf("path %q assigned more than once", path)
			}
			seen[path] = true
		}
	}
	if len(seen) != len(tests) {
		t.Errorf("expected %d distinct assigned tests, got %d", len(tests), len(seen))
	}
}
