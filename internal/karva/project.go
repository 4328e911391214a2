// Package karva holds the shared data model for the test-runner engine:
// projects, test paths, qualified names and the settings surface the CLI,
// config loader and orchestrator all read from.
package karva

import (
	"fmt"
	"sort"
	"strings"
)

// TestPath is the sum type describing one resolved input path.
type TestPath interface {
	isTestPath()
	String() string
}

// DirectoryPath selects every test under a directory.
type DirectoryPath struct{ Path string }

// FilePath selects every test in one file.
type FilePath struct{ Path string }

// FunctionPath selects one named function within one file.
type FunctionPath struct {
	Path         string
	FunctionName string
}

// ErrorPath records a path that failed to resolve.
type ErrorPath struct{ Reason string }

func (DirectoryPath) isTestPath() {}
func (FilePath) isTestPath()      {}
func (FunctionPath) isTestPath()  {}
func (ErrorPath) isTestPath()     {}

func (p DirectoryPath) String() string { return p.Path }
func (p FilePath) String() string      { return p.Path }
func (p FunctionPath) String() string  { return p.Path + "::" + p.FunctionName }
func (p ErrorPath) String() string     { return "<error: " + p.Reason + ">" }

// pathString returns the raw filesystem path a TestPath addresses, for
// dedup purposes; ErrorPath has none and always sorts/dedups independently.
func pathString(p TestPath) (string, bool) {
	switch v := p.(type) {
	case DirectoryPath:
		return v.Path, true
	case FilePath:
		return v.Path, true
	case FunctionPath:
		return v.Path, true
	default:
		return "", false
	}
}

// ParseTestPath parses a CLI-supplied path, handling the `file::function`
// selector syntax. Existence/type checking is the caller's job (a
// non-existent path becomes an InvalidPath discovery diagnostic later, not
// an ErrorPath here — ErrorPath is reserved for syntactically malformed
// input, e.g. an empty function name after `::`).
func ParseTestPath(raw string) TestPath {
	if idx := strings.Index(raw, "::"); idx >= 0 {
		path := raw[:idx]
		fn := raw[idx+2:]
		if fn == "" {
			return ErrorPath{Reason: fmt.Sprintf("empty function name in selector %q", raw)}
		}
		return FunctionPath{Path: path, FunctionName: fn}
	}
	if strings.HasSuffix(raw, "/") || raw == "." {
		return DirectoryPath{Path: strings.TrimSuffix(raw, "/")}
	}
	return FilePath{Path: raw}
}

// DeduplicateNestedPaths sorts paths lexicographically by their raw path
// string and drops any path whose string has an already-kept path as a raw
// string prefix. This matches karva's deduplicate_nested_paths exactly: a
// raw string-prefix check, not a path-segment-boundary check.
func DeduplicateNestedPaths(paths []TestPath) []TestPath {
	type entry struct {
		path TestPath
		key  string
		ok   bool
	}
	entries := make([]entry, len(paths))
	for i, p := range paths {
		key, ok := pathString(p)
		entries[i] = entry{path: p, key: key, ok: ok}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ok != entries[j].ok {
			return entries[i].ok // keyed entries sort before unkeyed
		}
		return entries[i].key < entries[j].key
	})

	var out []TestPath
	var lastKey string
	haveLast := false
	for _, e := range entries {
		if !e.ok {
			out = append(out, e.path)
			continue
		}
		if haveLast && strings.HasPrefix(e.key, lastKey) {
			continue
		}
		out = append(out, e.path)
		lastKey = e.key
		haveLast = true
	}
	return out
}

// QualifiedFunctionName names a function within a module.
type QualifiedFunctionName struct {
	ModulePath   string
	FunctionName string
}

func (q QualifiedFunctionName) String() string {
	return q.ModulePath + "::" + q.FunctionName
}

// QualifiedTestName adds an optional rendered parametrize variant suffix.
type QualifiedTestName struct {
	QualifiedFunctionName
	Variant string // e.g. "[x=1]", empty when not parametrized
}

func (q QualifiedTestName) String() string {
	return q.QualifiedFunctionName.String() + q.Variant
}

// Settings is the configuration surface the engine consumes, per spec §6.
type Settings struct {
	TestFunctionPrefix  string
	FailFast            bool
	RespectIgnoreFiles  bool
	ShowOutput          bool
	TryImportFixtures   bool
	PythonVersion       string // accepted, unused (no version axis for Starlark)
	NumWorkers          int
	OutputFormat        string
	ShowTraceback       bool
}

// DefaultSettings mirrors spec §6's stated defaults.
func DefaultSettings() Settings {
	return Settings{
		TestFunctionPrefix: "test",
		FailFast:           false,
		RespectIgnoreFiles: true,
		ShowOutput:         false,
		TryImportFixtures:  false,
		NumWorkers:         1,
		OutputFormat:       "text",
		ShowTraceback:      true,
	}
}

// Project bundles the root directory, resolved test paths, and settings.
type Project struct {
	Root      string
	TestPaths []TestPath
	Settings  Settings
}
