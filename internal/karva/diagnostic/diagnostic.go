// Package diagnostic implements the taxonomy of non-success events, plus
// traceback cleaning and missing-fixture message repair, grounded on
// karva's diagnostic/traceback.rs.
package diagnostic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind is the outer diagnostic taxonomy.
type Kind int

const (
	KindTestFailure Kind = iota
	KindFixtureFailure
	KindInvalidFixture
	KindInvalidPath
	KindFailedToImport
	KindWarning
)

func (k Kind) String() string {
	switch k {
	case KindTestFailure:
		return "test_failure"
	case KindFixtureFailure:
		return "fixture_failure"
	case KindInvalidFixture:
		return "invalid_fixture"
	case KindInvalidPath:
		return "invalid_path"
	case KindFailedToImport:
		return "failed_to_import"
	case KindWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// TestFailureReason subdivides KindTestFailure.
type TestFailureReason int

const (
	ReasonRunFailure TestFailureReason = iota
	ReasonMissingFixtures
	ReasonPassOnExpectFailure
)

// Location is a source position a diagnostic points at.
type Location struct {
	Path string
	Line int
}

func (l Location) String() string {
	if l.Line <= 0 {
		return l.Path
	}
	return fmt.Sprintf("%s:%d", l.Path, l.Line)
}

// Diagnostic is one non-success event.
type Diagnostic struct {
	Kind            Kind
	TestFailureKind TestFailureReason
	TestName        string // qualified test name, when applicable
	Location        Location
	Message         string
	Traceback       string // already cleaned
	MissingFixtures []string
}

// Concise renders a one-line form.
func (d Diagnostic) Concise() string {
	name := d.TestName
	if name == "" {
		name = d.Location.String()
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, name, d.Message)
}

// Full renders a multi-line form with location and traceback.
func (d Diagnostic) Full() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.Concise())
	fmt.Fprintf(&b, "  --> %s\n", d.Location)
	if d.Traceback != "" {
		b.WriteString(d.Traceback)
		b.WriteString("\n")
	}
	return b.String()
}

// SortByLocation sorts diagnostics by source location, the final
// presentation order spec §3 requires.
func SortByLocation(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Location.Path != ds[j].Location.Path {
			return ds[i].Location.Path < ds[j].Location.Path
		}
		return ds[i].Location.Line < ds[j].Location.Line
	})
}

const tracebackHeader = "Traceback (most recent call last):"

// CleanTraceback strips the interpreter-framing header line, two-space
// continuation indentation, and a trailing caret line from a raw
// go.starlark.net backtrace string, matching karva's filter_traceback.
func CleanTraceback(raw string) string {
	lines := strings.Split(raw, "\n")
	var out []string
	for _, ln := range lines {
		if strings.TrimSpace(ln) == tracebackHeader {
			continue
		}
		ln = strings.TrimPrefix(ln, "  ")
		out = append(out, ln)
	}
	// strip trailing blank/caret-only lines
	for len(out) > 0 {
		last := strings.TrimSpace(out[len(out)-1])
		if last == "" || isCaretLine(last) {
			out = out[:len(out)-1]
			continue
		}
		break
	}
	return strings.Join(out, "\n")
}

func isCaretLine(s string) bool {
	for _, r := range s {
		if r != '^' {
			return false
		}
	}
	return s != ""
}

var fileLineRe = regexp.MustCompile(`File "([^"]+)", line (\d+)`)

// ExtractLocation extracts "filename:line" from the second-to-last `File "...",
// line N` frame in a raw backtrace, per karva's get_location.
func ExtractLocation(raw string) (Location, bool) {
	matches := fileLineRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return Location{}, false
	}
	idx := len(matches) - 1
	if len(matches) >= 2 {
		idx = len(matches) - 2
	}
	m := matches[idx]
	var line int
	fmt.Sscanf(m[2], "%d", &line)
	return Location{Path: m[1], Line: line}, true
}

var missingArgRe = regexp.MustCompile(`missing \d+ (?:required )?(?:positional )?argument[s]?[:(]?\s*(.*)`)
var argNameRe = regexp.MustCompile(`['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?`)

// RepairMissingFixtures implements spec §4.7's missing-fixture repair step:
// when a test raises a missing-argument error, parse the named parameters
// out of the message and intersect them with the diagnostic's
// pre-computed MissingFixtures. If at least one intersects, the
// diagnostic is rewritten to list only the confirmed names.
func RepairMissingFixtures(d *Diagnostic, errMessage string) {
	m := missingArgRe.FindStringSubmatch(errMessage)
	if m == nil {
		return
	}
	names := argNameRe.FindAllStringSubmatch(m[1], -1)
	if names == nil {
		return
	}
	named := make(map[string]bool, len(names))
	for _, n := range names {
		named[n[1]] = true
	}

	var confirmed []string
	for _, f := range d.MissingFixtures {
		if named[f] {
			confirmed = append(confirmed, f)
		}
	}
	if len(confirmed) > 0 {
		d.MissingFixtures = confirmed
	}
}
