package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/albertocavalcante/karva/internal/karva/orchestrator"
)

// runWorkerCommand handles re-invocation as `karva worker --cache-dir=... --run-id=...
// --worker-id=... --root=... --manifest=...`, the controller's own spawn
// shape for one worker subprocess (spec §4.9).
func runWorkerCommand(args []string) int {
	var opts orchestrator.WorkerOptions
	var workerID string

	fs := flag.NewFlagSet("karva worker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&opts.CacheDir, "cache-dir", "", "cache directory")
	fs.StringVar(&opts.RunID, "run-id", "", "run identifier")
	fs.StringVar(&workerID, "worker-id", "0", "worker index")
	fs.StringVar(&opts.Root, "root", "", "project root")
	fs.StringVar(&opts.ManifestPath, "manifest", "", "path to this worker's manifest.json")

	if err := fs.Parse(args); err != nil {
		return orchestrator.ExitInternalError
	}

	id, err := strconv.Atoi(workerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "karva worker: invalid --worker-id %q: %v\n", workerID, err)
		return orchestrator.ExitInternalError
	}
	opts.WorkerID = id

	return orchestrator.RunWorker(opts)
}
