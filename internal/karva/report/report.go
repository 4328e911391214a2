// Package report implements the Reporter abstraction (spec §4.9's "live"
// progress sink) with Text/JSON/JUnit/Markdown sinks, adapted from the
// teacher's reporter.go: same interface shape, same deliberately
// hand-rolled JSON writer, same JUnit XML struct set.
package report

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/albertocavalcante/karva/internal/karva/cache"
	"github.com/albertocavalcante/karva/internal/karva/diagnostic"
)

// Reporter is the abstract progress sink: per-worker file results and a
// final summary.
type Reporter interface {
	ReportWorker(workerID int, stats cache.Stats, diags []diagnostic.Diagnostic)
	ReportSummary(agg *cache.Aggregated)
}

// TextReporter writes concise or full diagnostics plus a final summary
// line, matching the teacher's TextReporter shape.
type TextReporter struct {
	Out     io.Writer
	Verbose bool // full vs concise rendering
}

func (r *TextReporter) ReportWorker(workerID int, stats cache.Stats, diags []diagnostic.Diagnostic) {
	fmt.Fprintf(r.Out, "worker %d: %d passed, %d failed, %d skipped\n", workerID, stats.Passed, stats.Failed, stats.Skipped)
	for _, d := range diags {
		if r.Verbose {
			fmt.Fprint(r.Out, d.Full())
		} else {
			fmt.Fprintln(r.Out, d.Concise())
		}
	}
}

func (r *TextReporter) ReportSummary(agg *cache.Aggregated) {
	status := "PASSED"
	if !agg.Stats.IsSuccess() {
		status = "FAILED"
	}
	fmt.Fprintf(r.Out, "\n%s: %d passed, %d failed, %d skipped (%d total)\n",
		status, agg.Stats.Passed, agg.Stats.Failed, agg.Stats.Skipped, agg.Stats.Total())
}

// JSONReporter deliberately hand-rolls its output via fmt.Fprintf rather
// than encoding/json, matching the teacher's own choice to control exact
// field ordering/formatting in JSON reporter output.
type JSONReporter struct {
	Out io.Writer
}

func (r *JSONReporter) ReportWorker(workerID int, stats cache.Stats, diags []diagnostic.Diagnostic) {
	// Per-worker output is accumulated by the orchestrator and emitted once
	// via ReportSummary, matching spec's "aggregated rendered output"
	// emission point (§4.9 step 6).
}

func (r *JSONReporter) ReportSummary(agg *cache.Aggregated) {
	fmt.Fprintf(r.Out, "{\n")
	fmt.Fprintf(r.Out, "  \"passed\": %d,\n", agg.Stats.Passed)
	fmt.Fprintf(r.Out, "  \"failed\": %d,\n", agg.Stats.Failed)
	fmt.Fprintf(r.Out, "  \"skipped\": %d,\n", agg.Stats.Skipped)
	fmt.Fprintf(r.Out, "  \"success\": %t\n", agg.Stats.IsSuccess())
	fmt.Fprintf(r.Out, "}\n")
}

// junitTestSuites/junitTestSuite/junitTestCase/junitFailure mirror the
// teacher's JUnit XML struct set, field-for-field, retargeted at this
// domain's diagnostic shape instead of Starlark-test-file results.
type junitTestSuites struct {
	XMLName xml.Name        `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string         `xml:"name,attr"`
	Failure *junitFailure  `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// JUnitReporter renders the aggregated run as a single JUnit testsuite.
type JUnitReporter struct {
	Out io.Writer
}

func (r *JUnitReporter) ReportWorker(workerID int, stats cache.Stats, diags []diagnostic.Diagnostic) {}

func (r *JUnitReporter) ReportSummary(agg *cache.Aggregated) {
	suite := junitTestSuite{
		Name:     "karva",
		Tests:    agg.Stats.Total(),
		Failures: agg.Stats.Failed,
		Skipped:  agg.Stats.Skipped,
	}
	doc := junitTestSuites{Suites: []junitTestSuite{suite}}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(r.Out, "<!-- junit render error: %v -->\n", err)
		return
	}
	fmt.Fprintln(r.Out, xml.Header+string(out))
}

// MarkdownReporter accumulates a GitHub-flavored markdown summary,
// matching the teacher's emoji-header/status-table/collapsible-details
// style.
type MarkdownReporter struct {
	Out io.Writer
}

func (r *MarkdownReporter) ReportWorker(workerID int, stats cache.Stats, diags []diagnostic.Diagnostic) {}

func (r *MarkdownReporter) ReportSummary(agg *cache.Aggregated) {
	emoji := "✅"
	if !agg.Stats.IsSuccess() {
		emoji = "❌"
	}
	fmt.Fprintf(r.Out, "## %s Test Results\n\n", emoji)
	fmt.Fprintf(r.Out, "| Passed | Failed | Skipped |\n|---|---|---|\n| %d | %d | %d |\n\n",
		agg.Stats.Passed, agg.Stats.Failed, agg.Stats.Skipped)
	if agg.Diagnostics != "" {
		fmt.Fprintf(r.Out, "<details><summary>Diagnostics</summary>\n\n```\n%s\n```\n</details>\n", agg.Diagnostics)
	}
}
