package orchestrator

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/albertocavalcante/karva/internal/karva"
	"github.com/albertocavalcante/karva/internal/karva/builtin"
	"github.com/albertocavalcante/karva/internal/karva/cache"
	"github.com/albertocavalcante/karva/internal/karva/collect"
	"github.com/albertocavalcante/karva/internal/karva/diagnostic"
	"github.com/albertocavalcante/karva/internal/karva/pyenv"
	"github.com/albertocavalcante/karva/internal/karva/runner"
	"github.com/albertocavalcante/karva/internal/karva/runtime"
)

// WorkerOptions configures one worker subprocess invocation.
type WorkerOptions struct {
	CacheDir     string
	RunID        string
	WorkerID     int
	Root         string
	ManifestPath string
}

// RunWorker implements spec §4.9's worker responsibilities: load its
// manifest, discover within its assigned paths, run, write results to its
// worker folder, exit 0 regardless of test outcome (a worker's own non-zero
// exit is reserved for an orchestrator-level failure, per spec §4.9 step 4).
// Discovery diagnostics are written right after collection; stats,
// diagnostics and durations are written once, after the whole run, so a
// worker killed mid-run leaves only the discovery diagnostics.
func RunWorker(opts WorkerOptions) int {
	data, err := os.ReadFile(opts.ManifestPath)
	if err != nil {
		return ExitInternalError
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ExitInternalError
	}

	proj := &karva.Project{
		Root:      opts.Root,
		Settings:  manifest.Settings,
		TestPaths: toTestPaths(manifest.TestPaths),
	}

	writer, err := cache.NewWriter(opts.CacheDir, opts.RunID, opts.WorkerID)
	if err != nil {
		return ExitInternalError
	}

	result, err := collect.Collect(proj)
	if err != nil {
		return ExitInternalError
	}
	_ = writer.WriteDiscoverDiagnostics(renderDiagnostics(result.Diagnostics, false))

	scope := pyenv.Acquire("worker", proj.Settings.ShowOutput, pyenv.DefaultStdout)
	sess := &runner.Session{
		Thread:     scope.Thread,
		Fixtures:   runtime.NewFixtureCache(),
		Finalizers: runtime.NewFinalizerCache(),
		TmpDirFor: func(testName string) (string, error) {
			return builtin.NewTmpDirFactory(os.TempDir()).Dir(testName)
		},
	}

	r := runner.New(sess, proj.Settings.FailFast)
	_ = r.Run(result.Root)
	res := r.Result()

	_ = writer.WriteStats(cache.Stats{Passed: res.Stats.Passed, Failed: res.Stats.Failed, Skipped: res.Stats.Skipped})
	_ = writer.WriteDurations(res.Durations)
	_ = writer.WriteDiagnostics(renderDiagnostics(res.Diagnostics, proj.Settings.ShowTraceback))

	return ExitSuccess
}

func toTestPaths(raw []string) []karva.TestPath {
	out := make([]karva.TestPath, 0, len(raw))
	for _, r := range raw {
		out = append(out, karva.ParseTestPath(r))
	}
	return out
}

func renderDiagnostics(diags []diagnostic.Diagnostic, full bool) string {
	var b strings.Builder
	for _, d := range diags {
		if full {
			b.WriteString(d.Full())
		} else {
			b.WriteString(d.Concise())
			b.WriteString("\n")
		}
	}
	return b.String()
}
