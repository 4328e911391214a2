// Command karva is the controller entrypoint: it parses CLI flags,
// resolves config-file settings, discovers and partitions tests, spawns
// worker subprocesses, and renders the aggregated result. Re-invoked as
// `karva worker ...` it instead runs as a worker subprocess (see worker.go),
// adapted from the teacher's cmd/skytest/main.go flag-parsing shape.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/albertocavalcante/karva/internal/karva"
	"github.com/albertocavalcante/karva/internal/karva/orchestrator"
	"github.com/albertocavalcante/karva/internal/karva/report"
	"github.com/albertocavalcante/karva/internal/karva/watch"
	"github.com/albertocavalcante/karva/internal/karvaconfig"
	"github.com/albertocavalcante/karva/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "worker" {
		os.Exit(runWorkerCommand(os.Args[2:]))
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		jsonFlag     bool
		junitFlag    bool
		markdownFlag bool
		versionFlag  bool
		verboseFlag  bool
		failFastFlag bool
		watchFlag    bool
		prefixFlag   string
		workersFlag  string
		cacheDirFlag string
		configFlag   string
	)

	fs := newFlagSet(stderr)
	fs.BoolVar(&jsonFlag, "json", false, "output results as JSON")
	fs.BoolVar(&junitFlag, "junit", false, "output results as JUnit XML")
	fs.BoolVar(&markdownFlag, "markdown", false, "output results as Markdown")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")
	fs.BoolVar(&verboseFlag, "v", false, "verbose logging")
	fs.BoolVar(&failFastFlag, "x", false, "stop after the first failure")
	fs.BoolVar(&watchFlag, "watch", false, "watch for *.star changes and re-run")
	fs.BoolVar(&watchFlag, "w", false, "watch mode (short for --watch)")
	fs.StringVar(&prefixFlag, "prefix", "", "test function prefix (default from config, else \"test\")")
	fs.StringVar(&workersFlag, "workers", "", "number of worker processes (\"auto\" or an integer)")
	fs.StringVar(&cacheDirFlag, "cache-dir", "", "on-disk result cache directory (default .karva_cache)")
	fs.StringVar(&configFlag, "config", "", "path to karva.toml or karva.star")

	if err := fs.Parse(args); err != nil {
		if err == flagErrHelp {
			return 0
		}
		return 2
	}

	if versionFlag {
		fmt.Fprintf(stdout, "karva %s\n", version.String())
		return 0
	}

	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "karva: %v\n", err)
		return 2
	}

	cfg := karvaconfig.DefaultConfig()
	configPath := configFlag
	if configPath == "" {
		if p, ok := karvaconfig.DiscoverConfig(root); ok {
			configPath = p
		}
	}
	if configPath != "" {
		loaded, err := karvaconfig.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(stderr, "karva: loading config %s: %v\n", configPath, err)
			return 2
		}
		cfg = loaded
	}

	settings := karva.DefaultSettings()
	settings.TestFunctionPrefix = cfg.Karva.TestPrefix
	settings.FailFast = cfg.Karva.FailFast
	settings.RespectIgnoreFiles = cfg.Karva.RespectIgnoreFiles
	settings.ShowOutput = cfg.Karva.ShowOutput
	settings.OutputFormat = cfg.Karva.OutputFormat
	settings.NumWorkers = karvaconfig.ParseNumWorkers(cfg.Karva.NumWorkers)

	// CLI flags override config-file values, which override defaults.
	if prefixFlag != "" {
		settings.TestFunctionPrefix = prefixFlag
	}
	if failFastFlag {
		settings.FailFast = true
	}
	if workersFlag != "" {
		settings.NumWorkers = karvaconfig.ParseNumWorkers(workersFlag)
	}
	switch {
	case jsonFlag:
		settings.OutputFormat = "json"
	case junitFlag:
		settings.OutputFormat = "junit"
	case markdownFlag:
		settings.OutputFormat = "markdown"
	}

	rawPaths := fs.Args()
	if len(rawPaths) == 0 {
		rawPaths = []string{"."}
	}
	var paths []karva.TestPath
	for _, raw := range rawPaths {
		paths = append(paths, karva.ParseTestPath(raw))
	}
	paths = karva.DeduplicateNestedPaths(paths)

	proj := &karva.Project{Root: root, TestPaths: paths, Settings: settings}

	cacheDir := cacheDirFlag
	if cacheDir == "" {
		cacheDir = filepath.Join(root, ".karva_cache")
	}

	logger := zap.NewNop()
	if verboseFlag {
		logger, _ = zap.NewDevelopment()
	}

	if !watchFlag {
		code, err := executeOnce(proj, cacheDir, logger, stdout, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "karva: %v\n", err)
			return 2
		}
		return code
	}

	return runWatchMode(proj, cacheDir, logger, stdout, stderr)
}

// executeOnce runs one full collect-partition-spawn-aggregate-report cycle.
func executeOnce(proj *karva.Project, cacheDir string, logger *zap.Logger, stdout, stderr io.Writer) (int, error) {
	infos, err := orchestrator.CollectTestInfos(proj, cacheDir)
	if err != nil {
		return 2, err
	}

	agg, code, err := orchestrator.Run(proj, infos, orchestrator.Options{
		CacheDir:   cacheDir,
		NumWorkers: proj.Settings.NumWorkers,
		Logger:     logger,
	})
	if err != nil {
		return 2, err
	}
	_ = orchestrator.Prune(cacheDir, agg)

	reporter := selectReporter(proj.Settings.OutputFormat, stdout)
	if agg.DiscoveryDiagnostics != "" {
		fmt.Fprint(stderr, agg.DiscoveryDiagnostics)
	}
	if agg.Diagnostics != "" {
		fmt.Fprint(stdout, agg.Diagnostics)
	}
	reporter.ReportSummary(agg)

	return code, nil
}

// runWatchMode re-runs executeOnce on every *.star change under the
// project root until interrupted, adapted from the teacher's
// runWatchMode (simplified to whole-tree re-run; see internal/karva/watch).
func runWatchMode(proj *karva.Project, cacheDir string, logger *zap.Logger, stdout, stderr io.Writer) int {
	w, err := watch.New(proj.Root)
	if err != nil {
		fmt.Fprintf(stderr, "karva: watch: %v\n", err)
		return 2
	}
	defer w.Close()

	fmt.Fprintf(stdout, "watch mode active, watching %s for *.star changes (ctrl-c to stop)\n\n", proj.Root)
	executeOnce(proj, cacheDir, logger, stdout, stderr)

	for {
		select {
		case ev := <-w.Events:
			fmt.Fprintf(stdout, "\nfile changed: %s\n\n", ev.File)
			executeOnce(proj, cacheDir, logger, stdout, stderr)
			fmt.Fprintln(stdout, "\nwatching for changes...")
		case err := <-w.Errors:
			fmt.Fprintf(stderr, "karva: watch error: %v\n", err)
		}
	}
}

func selectReporter(format string, out io.Writer) report.Reporter {
	switch format {
	case "json":
		return &report.JSONReporter{Out: out}
	case "junit":
		return &report.JUnitReporter{Out: out}
	case "markdown":
		return &report.MarkdownReporter{Out: out}
	default:
		return &report.TextReporter{Out: out}
	}
}
