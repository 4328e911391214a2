// Package partition implements Longest-Processing-Time-First bin-packing
// over test paths, grounded directly on karva_runner/src/partition.rs.
package partition

import "sort"

// TestInfo is one test's weight input: a previous run's duration when
// available, else an AST body-length proxy for complexity.
type TestInfo struct {
	Path            string
	BodyLength      int
	DurationMicros  int64
	HasDuration     bool
}

// Weight returns duration_microseconds if present, else body_length, per
// spec §4.8.
func (t TestInfo) Weight() uint64 {
	if t.HasDuration {
		return uint64(t.DurationMicros)
	}
	return uint64(t.BodyLength)
}

// Bin is one worker's assigned slice.
type Bin struct {
	Tests  []string
	Weight uint64
}

func (p *Bin) add(t TestInfo) {
	p.Tests = append(p.Tests, t.Path)
	p.Weight += t.Weight()
}

// Partition runs LPT: sort tests by weight descending, then greedily
// assign each to the partition with the current minimum cumulative
// weight, ties broken by lowest partition index (matching Rust's
// min_by_key first-match-wins semantics exactly). Each assignment scans
// all W partitions, so the cost is O(n log n + n·W), not O((n+W) log n).
func Partition(tests []TestInfo, numWorkers int) []Bin {
	if numWorkers < 1 {
		numWorkers = 1
	}

	sorted := append([]TestInfo{}, tests...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight() > sorted[j].Weight()
	})

	parts := make([]Bin, numWorkers)
	for _, t := range sorted {
		minIdx := 0
		for i := 1; i < len(parts); i++ {
			if parts[i].Weight < parts[minIdx].Weight {
				minIdx = i
			}
		}
		parts[minIdx].add(t)
	}
	return parts
}
