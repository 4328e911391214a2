// Package orchestrator implements the controller side of spec §4.9: run
// identifier generation, partitioning, spawning worker subprocesses, and
// aggregating their per-run cache output. Workers are separate OS
// processes (re-exec of the controller binary in `worker` mode) rather
// than the teacher's in-process goroutine pool, since spec §5 mandates
// OS-process isolation with filesystem-only cross-worker communication.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/albertocavalcante/karva/internal/karva"
	"github.com/albertocavalcante/karva/internal/karva/cache"
	"github.com/albertocavalcante/karva/internal/karva/partition"
)

// Manifest is the per-worker input file the controller writes before spawn
// and the worker reads on startup — spec §6's "per-worker manifest file"
// alternative to passing every setting as flags.
type Manifest struct {
	TestPaths []string       `json:"test_paths"`
	Settings  karva.Settings `json:"settings"`
}

// ExitCode values per spec §6.
const (
	ExitSuccess       = 0
	ExitTestsFailed   = 1
	ExitInternalError = 2
)

// Options configures one orchestrated run.
type Options struct {
	WorkerBinary string // os.Args[0], or an override for tests
	CacheDir     string
	NumWorkers   int
	Logger       *zap.Logger
}

// Run generates a run id, partitions the project's tests, spawns
// NumWorkers subprocesses, waits for them, and aggregates their cache
// output. Returns the aggregated stats and the process exit code.
func Run(proj *karva.Project, tests []partition.TestInfo, opts Options) (*cache.Aggregated, int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	runID, err := cache.NewRunID(nowFunc())
	if err != nil {
		return nil, ExitInternalError, fmt.Errorf("generating run id: %w", err)
	}
	logger.Info("starting run", zap.String("run_id", runID), zap.Int("workers", opts.NumWorkers))

	partitions := partition.Partition(tests, opts.NumWorkers)

	runDir := filepath.Join(opts.CacheDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, ExitInternalError, err
	}

	type workerOutcome struct {
		id  int
		err error
	}
	outcomes := make(chan workerOutcome, len(partitions))

	for i, p := range partitions {
		go func(id int, p partition.Bin) {
			outcomes <- workerOutcome{id: id, err: spawnWorker(opts, proj, runID, id, p.Tests)}
		}(i, p)
	}

	var orchestratorErr error
	for range partitions {
		o := <-outcomes
		if o.err != nil {
			logger.Error("worker failed", zap.Int("worker_id", o.id), zap.Error(o.err))
			orchestratorErr = o.err
		}
	}
	if orchestratorErr != nil {
		return nil, ExitInternalError, orchestratorErr
	}

	agg, err := cache.Aggregate(opts.CacheDir, runID)
	if err != nil {
		return nil, ExitInternalError, err
	}

	code := ExitSuccess
	if !agg.Stats.IsSuccess() {
		code = ExitTestsFailed
	}
	return agg, code, nil
}

func spawnWorker(opts Options, proj *karva.Project, runID string, workerID int, testPaths []string) error {
	workerDir := filepath.Join(opts.CacheDir, runID, fmt.Sprintf("worker-%d", workerID))
	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		return err
	}

	manifest := Manifest{TestPaths: testPaths, Settings: proj.Settings}
	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(workerDir, "manifest.json")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return err
	}

	binary := opts.WorkerBinary
	if binary == "" {
		binary = os.Args[0]
	}
	cmd := exec.Command(binary, "worker",
		"--cache-dir="+opts.CacheDir,
		"--run-id="+runID,
		"--worker-id="+fmt.Sprint(workerID),
		"--root="+proj.Root,
		"--manifest="+manifestPath,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// nowFunc is a seam for deterministic testing of run-id generation.
var nowFunc = time.Now

// Prune removes every run-* directory under cacheDir except agg's own run,
// a thin wrapper the CLI calls once a run has completed and aggregated.
func Prune(cacheDir string, agg *cache.Aggregated) error {
	return cache.Prune(cacheDir, agg.RunID)
}
